package clips

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/clipwise/clipwise/internal/events"
	"github.com/clipwise/clipwise/internal/models"
	"github.com/clipwise/clipwise/internal/providers/media"
	"github.com/clipwise/clipwise/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memQueue mimics the conditional-update claim semantics of the Mongo repo.
type memQueue struct {
	mu     sync.Mutex
	items  []*models.ClipQueueItem
	claims int
}

func (q *memQueue) add(item *models.ClipQueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

func (q *memQueue) ClaimOldestPending(context.Context) (*models.ClipQueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.claims++

	var oldest *models.ClipQueueItem
	for _, it := range q.items {
		if it.Status != models.QueueStatusPending {
			continue
		}
		if oldest == nil || it.CreatedAt.Before(oldest.CreatedAt) {
			oldest = it
		}
	}
	if oldest == nil {
		return nil, utils.ErrNotFound
	}
	oldest.Status = models.QueueStatusProcessing
	cp := *oldest
	return &cp, nil
}

func (q *memQueue) ClaimByItemID(_ context.Context, itemID string, from []string) (*models.ClipQueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, it := range q.items {
		if it.ItemID != itemID {
			continue
		}
		for _, s := range from {
			if it.Status == s {
				it.Status = models.QueueStatusProcessing
				it.ErrorMessage = nil
				cp := *it
				return &cp, nil
			}
		}
		return nil, utils.ErrNotFound
	}
	return nil, utils.ErrNotFound
}

func (q *memQueue) MarkCompleted(_ context.Context, itemID, clipID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.ItemID == itemID && it.Status == models.QueueStatusProcessing {
			it.Status = models.QueueStatusCompleted
			it.ClipID = &clipID
			return nil
		}
	}
	return utils.ErrNotFound
}

func (q *memQueue) MarkFailed(_ context.Context, itemID, errorMessage string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.ItemID == itemID && it.Status == models.QueueStatusProcessing {
			it.Status = models.QueueStatusFailed
			it.ErrorMessage = &errorMessage
			return nil
		}
	}
	return utils.ErrNotFound
}

func (q *memQueue) GetByItemID(_ context.Context, itemID string) (*models.ClipQueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.ItemID == itemID {
			cp := *it
			return &cp, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (q *memQueue) status(itemID string) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.ItemID == itemID {
			return it.Status
		}
	}
	return ""
}

func (q *memQueue) errorMessage(itemID string) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.ItemID == itemID && it.ErrorMessage != nil {
			return *it.ErrorMessage
		}
	}
	return ""
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func (s *memSessions) GetBySessionID(_ context.Context, sessionID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ss, ok := s.sessions[sessionID]; ok {
		cp := *ss
		return &cp, nil
	}
	return nil, utils.ErrNotFound
}

type memClips struct {
	mu    sync.Mutex
	clips []models.Clip
}

func (c *memClips) Insert(_ context.Context, clip *models.Clip) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clips = append(c.clips, *clip)
	return nil
}

func (c *memClips) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clips)
}

// fakeTrimmer returns a fixed result; when gate is set, Trim blocks until it
// is closed.
type fakeTrimmer struct {
	gate chan struct{}
}

func (f *fakeTrimmer) Trim(_ context.Context, sourcePath string, start, end float64) (*media.TrimResult, error) {
	if f.gate != nil {
		<-f.gate
	}
	return &media.TrimResult{
		ClipPath:      sourcePath + ".clip.mp4",
		ThumbnailPath: sourcePath + ".jpg",
		Duration:      end - start,
	}, nil
}

type capturingPublisher struct {
	mu   sync.Mutex
	envs []events.Envelope
}

func (p *capturingPublisher) Publish(_ context.Context, env events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	return nil
}

func (p *capturingPublisher) countByType(typ string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.envs {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func tempRecording(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.mp4")
	require.NoError(t, os.WriteFile(path, []byte("fake media"), 0o644))
	return path
}

func queueItem(itemID string, start float64, createdAt time.Time) *models.ClipQueueItem {
	return &models.ClipQueueItem{
		ItemID:        itemID,
		SessionID:     "sess-1",
		TriggerType:   "clip please",
		TriggerSource: models.TriggerSourcePhrase,
		Start:         start,
		Status:        models.QueueStatusPending,
		CreatedAt:     createdAt,
	}
}

func newTestProcessor(t *testing.T, q *memQueue, recordingPath string, trimmer media.Trimmer, pub events.Publisher, opts Options) (*Processor, *memClips) {
	t.Helper()
	sessions := &memSessions{sessions: map[string]*models.Session{
		"sess-1": {
			SessionID:     "sess-1",
			Workflow:      models.WorkflowPodcast,
			Status:        models.SessionStatusLive,
			RecordingPath: recordingPath,
		},
	}}
	clipsRepo := &memClips{}
	if trimmer == nil {
		trimmer = &fakeTrimmer{}
	}
	return NewProcessor(q, sessions, clipsRepo, trimmer, nil, pub, nil, opts), clipsRepo
}

func TestPollProcessesOldestPendingFirst(t *testing.T) {
	q := &memQueue{}
	base := time.Unix(1700000000, 0)
	q.add(queueItem("newer", 50, base.Add(time.Minute)))
	q.add(queueItem("older", 10, base))

	p, clipsRepo := newTestProcessor(t, q, tempRecording(t), nil, nil, Options{})

	p.Poll(context.Background())
	require.Eventually(t, func() bool { return q.status("older") == models.QueueStatusCompleted },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, models.QueueStatusPending, q.status("newer"))
	assert.Equal(t, 1, clipsRepo.count())

	clip := clipsRepo.clips[0]
	assert.InDelta(t, 10.0, clip.Start, 0.001)
	assert.InDelta(t, 40.0, clip.End, 0.001) // default 30s window
	assert.Equal(t, "clip please", clip.TriggerType)
}

func TestMissingSourceRecordingMarksFailed(t *testing.T) {
	q := &memQueue{}
	q.add(queueItem("item-1", 10, time.Unix(1700000000, 0)))

	pub := &capturingPublisher{}
	p, clipsRepo := newTestProcessor(t, q, "/nonexistent/recording.mp4", nil, pub, Options{})

	p.Poll(context.Background())
	require.Eventually(t, func() bool { return q.status("item-1") == models.QueueStatusFailed },
		2*time.Second, 5*time.Millisecond)

	assert.NotEmpty(t, q.errorMessage("item-1"))
	assert.Contains(t, q.errorMessage("item-1"), "source recording missing")
	assert.Equal(t, 0, clipsRepo.count())
	assert.Equal(t, 0, pub.countByType(events.TypeClipCreated))

	// the loop keeps working after a failure
	q.add(queueItem("item-2", 20, time.Unix(1700000100, 0)))
	require.Eventually(t, func() bool { return p.InFlight() == 0 }, 2*time.Second, 5*time.Millisecond)
	p.Poll(context.Background())
	require.Eventually(t, func() bool { return q.status("item-2") == models.QueueStatusFailed },
		2*time.Second, 5*time.Millisecond)
}

func TestConcurrencyCeiling(t *testing.T) {
	q := &memQueue{}
	base := time.Unix(1700000000, 0)
	q.add(queueItem("item-1", 10, base))
	q.add(queueItem("item-2", 20, base.Add(time.Second)))

	gate := make(chan struct{})
	p, _ := newTestProcessor(t, q, tempRecording(t), &fakeTrimmer{gate: gate}, nil, Options{Concurrency: 1})

	p.Poll(context.Background())
	require.Eventually(t, func() bool { return p.InFlight() == 1 }, 2*time.Second, 5*time.Millisecond)

	claimsBefore := func() int {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.claims
	}()

	// ceiling reached: further polls do not even hit the queue
	p.Poll(context.Background())
	p.Poll(context.Background())
	assert.Equal(t, claimsBefore, func() int {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.claims
	}())
	assert.Equal(t, models.QueueStatusPending, q.status("item-2"))

	close(gate)
	require.Eventually(t, func() bool { return q.status("item-1") == models.QueueStatusCompleted },
		2*time.Second, 5*time.Millisecond)
}

func TestStopWaitsForInFlightJob(t *testing.T) {
	q := &memQueue{}
	q.add(queueItem("item-1", 10, time.Unix(1700000000, 0)))

	gate := make(chan struct{})
	p, _ := newTestProcessor(t, q, tempRecording(t), &fakeTrimmer{gate: gate}, nil, Options{})

	p.Start()
	p.Poll(context.Background())
	require.Eventually(t, func() bool { return p.InFlight() == 1 }, 2*time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the job finished")
	}
	assert.Equal(t, models.QueueStatusCompleted, q.status("item-1"))
}

func TestProcessByID(t *testing.T) {
	q := &memQueue{}
	q.add(queueItem("item-1", 10, time.Unix(1700000000, 0)))
	p, _ := newTestProcessor(t, q, tempRecording(t), nil, nil, Options{})

	require.NoError(t, p.ProcessByID(context.Background(), "item-1"))
	assert.Equal(t, models.QueueStatusCompleted, q.status("item-1"))
}

func TestProcessByIDRetriesFailedItem(t *testing.T) {
	q := &memQueue{}
	item := queueItem("item-1", 10, time.Unix(1700000000, 0))
	item.Status = models.QueueStatusFailed
	msg := "trim failed"
	item.ErrorMessage = &msg
	q.add(item)

	p, _ := newTestProcessor(t, q, tempRecording(t), nil, nil, Options{})

	require.NoError(t, p.ProcessByID(context.Background(), "item-1"))
	assert.Equal(t, models.QueueStatusCompleted, q.status("item-1"))
	assert.Empty(t, q.errorMessage("item-1"))
}

func TestProcessByIDConflictsAndNotFound(t *testing.T) {
	q := &memQueue{}
	busy := queueItem("busy", 10, time.Unix(1700000000, 0))
	busy.Status = models.QueueStatusProcessing
	done := queueItem("done", 20, time.Unix(1700000000, 0))
	done.Status = models.QueueStatusCompleted
	q.add(busy)
	q.add(done)

	p, _ := newTestProcessor(t, q, tempRecording(t), nil, nil, Options{})

	err := p.ProcessByID(context.Background(), "busy")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeConflict))

	err = p.ProcessByID(context.Background(), "done")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeConflict))

	err = p.ProcessByID(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
}

func TestEndMarkerAndPreRoll(t *testing.T) {
	q := &memQueue{}
	item := queueItem("item-1", 100, time.Unix(1700000000, 0))
	end := 130.5
	item.End = &end
	q.add(item)

	pub := &capturingPublisher{}
	p, clipsRepo := newTestProcessor(t, q, tempRecording(t), nil, pub, Options{PreRollSeconds: 5})

	require.NoError(t, p.ProcessByID(context.Background(), "item-1"))
	require.Equal(t, 1, clipsRepo.count())

	clip := clipsRepo.clips[0]
	assert.InDelta(t, 95.0, clip.Start, 0.001) // 100 minus 5s pre-roll
	assert.InDelta(t, 130.5, clip.End, 0.001)
	assert.Equal(t, 1, pub.countByType(events.TypeClipCreated))
	assert.GreaterOrEqual(t, pub.countByType(events.TypeQueueUpdated), 2)
}
