package services

import (
	"context"
	"errors"
	"time"

	"github.com/clipwise/clipwise/internal/models"
	mongorepo "github.com/clipwise/clipwise/internal/repositories/mongo"
	"github.com/clipwise/clipwise/internal/utils"

	"github.com/google/uuid"
)

type SessionService interface {
	Start(ctx context.Context, userID, workflow string, md models.SessionMetadata) (*models.Session, error)
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	End(ctx context.Context, sessionID string) (*models.Session, error)
	SetRecordingPath(ctx context.Context, sessionID, path string) error
	Transcript(ctx context.Context, sessionID string, limit int64) ([]models.TranscriptDoc, error)
}

type sessionService struct {
	sessions    mongorepo.SessionRepository
	transcripts mongorepo.TranscriptRepository
}

func NewSessionService(sessions mongorepo.SessionRepository, transcripts mongorepo.TranscriptRepository) SessionService {
	return &sessionService{sessions: sessions, transcripts: transcripts}
}

func (s *sessionService) Start(ctx context.Context, userID, workflow string, md models.SessionMetadata) (*models.Session, error) {
	const op = "SessionService.Start"

	if userID == "" || workflow == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and workflow are required", nil)
	}
	if !models.ValidWorkflow(workflow) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "unknown workflow", nil)
	}

	now := time.Now().UTC()
	session := &models.Session{
		SessionID: uuid.NewString(),
		UserID:    userID,
		Workflow:  workflow,
		Status:    models.SessionStatusLive,
		Metadata:  md,
		StartedAt: now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create session", err)
	}
	return session, nil
}

func (s *sessionService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	const op = "SessionService.Get"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	out, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}
	return out, nil
}

func (s *sessionService) End(ctx context.Context, sessionID string) (*models.Session, error) {
	const op = "SessionService.End"

	ss, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ss.Status == models.SessionStatusEnded {
		return ss, nil
	}

	now := time.Now().UTC()
	dur := int64(now.Sub(ss.StartedAt).Seconds())
	if dur < 0 {
		dur = 0
	}

	if err := s.sessions.End(ctx, sessionID, now, dur); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to end session", err)
	}

	ss.Status = models.SessionStatusEnded
	ss.EndedAt = &now
	ss.DurationSeconds = dur
	return ss, nil
}

func (s *sessionService) SetRecordingPath(ctx context.Context, sessionID, path string) error {
	const op = "SessionService.SetRecordingPath"

	if sessionID == "" || path == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id and path are required", nil)
	}
	if err := s.sessions.SetRecordingPath(ctx, sessionID, path); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to set recording path", err)
	}
	return nil
}

func (s *sessionService) Transcript(ctx context.Context, sessionID string, limit int64) ([]models.TranscriptDoc, error) {
	const op = "SessionService.Transcript"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	out, err := s.transcripts.ListBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list transcript", err)
	}
	return out, nil
}
