package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipwise/clipwise/internal/models"
	"github.com/clipwise/clipwise/internal/utils"
)

type fakeSessionService struct {
	sessions map[string]*models.Session
	recorded map[string]string
}

func newFakeSessionService(sessions ...*models.Session) *fakeSessionService {
	s := &fakeSessionService{
		sessions: map[string]*models.Session{},
		recorded: map[string]string{},
	}
	for _, ss := range sessions {
		s.sessions[ss.SessionID] = ss
	}
	return s
}

func (s *fakeSessionService) Start(_ context.Context, userID, workflow string, md models.SessionMetadata) (*models.Session, error) {
	sess := &models.Session{
		SessionID: "sess-new",
		UserID:    userID,
		Workflow:  workflow,
		Status:    models.SessionStatusLive,
		Metadata:  md,
		StartedAt: time.Unix(1700000000, 0).UTC(),
	}
	s.sessions[sess.SessionID] = sess
	return sess, nil
}

func (s *fakeSessionService) Get(_ context.Context, sessionID string) (*models.Session, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, utils.E(utils.CodeNotFound, "SessionService.Get", "session not found", nil)
	}
	return sess, nil
}

func (s *fakeSessionService) End(_ context.Context, sessionID string) (*models.Session, error) {
	return s.Get(context.Background(), sessionID)
}

func (s *fakeSessionService) SetRecordingPath(_ context.Context, sessionID, path string) error {
	if _, ok := s.sessions[sessionID]; !ok {
		return utils.E(utils.CodeNotFound, "SessionService.SetRecordingPath", "session not found", nil)
	}
	s.recorded[sessionID] = path
	s.sessions[sessionID].RecordingPath = path
	return nil
}

func (s *fakeSessionService) Transcript(context.Context, string, int64) ([]models.TranscriptDoc, error) {
	return nil, nil
}

type fakeLiveService struct {
	started []string
}

func (l *fakeLiveService) StartPipeline(_ context.Context, sessionID string) error {
	l.started = append(l.started, sessionID)
	return nil
}
func (l *fakeLiveService) SendAudio(string, []byte) error { return nil }
func (l *fakeLiveService) EndPipeline(string) error       { return nil }
func (l *fakeLiveService) Running(string) bool            { return true }

func newSessionTestRouter(svc *fakeSessionService, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("user_id", userID) })

	h := NewSessionHandler(svc, &fakeLiveService{})
	r.POST("/session/start", h.Start)
	r.PUT("/session/:session_id/recording", h.SetRecording)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func liveSession(sessionID, userID string) *models.Session {
	return &models.Session{
		SessionID: sessionID,
		UserID:    userID,
		Workflow:  models.WorkflowPodcast,
		Status:    models.SessionStatusLive,
		StartedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestSetRecordingStoresPath(t *testing.T) {
	svc := newFakeSessionService(liveSession("sess-1", "user-1"))
	r := newSessionTestRouter(svc, "user-1")

	w := doJSON(t, r, http.MethodPut, "/session/sess-1/recording",
		gin.H{"recording_path": "/var/buf/sess-1.mp4"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/var/buf/sess-1.mp4", svc.recorded["sess-1"])

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "sess-1", resp["session_id"])
	assert.Equal(t, "/var/buf/sess-1.mp4", resp["recording_path"])
}

func TestSetRecordingForbiddenForOtherUser(t *testing.T) {
	svc := newFakeSessionService(liveSession("sess-1", "user-1"))
	r := newSessionTestRouter(svc, "user-2")

	w := doJSON(t, r, http.MethodPut, "/session/sess-1/recording",
		gin.H{"recording_path": "/var/buf/sess-1.mp4"})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, svc.recorded)
}

func TestSetRecordingRequiresPath(t *testing.T) {
	svc := newFakeSessionService(liveSession("sess-1", "user-1"))
	r := newSessionTestRouter(svc, "user-1")

	w := doJSON(t, r, http.MethodPut, "/session/sess-1/recording", gin.H{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.recorded)
}

func TestStartSessionAcceptsRecordingPath(t *testing.T) {
	svc := newFakeSessionService()
	r := newSessionTestRouter(svc, "user-1")

	w := doJSON(t, r, http.MethodPost, "/session/start",
		gin.H{"workflow": models.WorkflowPodcast, "recording_path": "/var/buf/live.mp4"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/var/buf/live.mp4", svc.recorded["sess-new"])
}
