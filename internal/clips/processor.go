package clips

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/clipwise/clipwise/internal/events"
	"github.com/clipwise/clipwise/internal/models"
	"github.com/clipwise/clipwise/internal/providers/media"
	"github.com/clipwise/clipwise/internal/storage"
	"github.com/clipwise/clipwise/internal/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Queue is the persistence contract the processor claims work through.
// Claim methods are single conditional updates; at most one processor ever
// works a given item.
type Queue interface {
	ClaimOldestPending(ctx context.Context) (*models.ClipQueueItem, error)
	ClaimByItemID(ctx context.Context, itemID string, from []string) (*models.ClipQueueItem, error)
	MarkCompleted(ctx context.Context, itemID, clipID string) error
	MarkFailed(ctx context.Context, itemID, errorMessage string) error
	GetByItemID(ctx context.Context, itemID string) (*models.ClipQueueItem, error)
}

// Sessions resolves the session a queue item belongs to.
type Sessions interface {
	GetBySessionID(ctx context.Context, sessionID string) (*models.Session, error)
}

// Clips persists finished clip records.
type Clips interface {
	Insert(ctx context.Context, clip *models.Clip) error
}

type Options struct {
	Concurrency  int           // max in-flight jobs, default 1
	PollInterval time.Duration // default 5s
	// DefaultClipSeconds is used when an item has no resolved end marker.
	DefaultClipSeconds float64
	// PreRollSeconds is subtracted from the trigger timestamp so the clip
	// captures the moment leading up to the phrase.
	PreRollSeconds float64
}

func (o *Options) defaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.DefaultClipSeconds <= 0 {
		o.DefaultClipSeconds = 30
	}
	if o.PreRollSeconds < 0 {
		o.PreRollSeconds = 0
	}
}

// Processor converts pending clip queue items into finished clip artifacts:
// it polls the queue, claims at most Concurrency jobs at a time, trims the
// session's source recording, uploads the artifacts, and records the clip.
type Processor struct {
	queue    Queue
	sessions Sessions
	clips    Clips
	trimmer  media.Trimmer
	uploader storage.Uploader
	pub      events.Publisher
	log      *logrus.Entry
	opts     Options

	mu       sync.Mutex
	inFlight int
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewProcessor(queue Queue, sessions Sessions, clips Clips, trimmer media.Trimmer, uploader storage.Uploader, pub events.Publisher, log *logrus.Logger, opts Options) *Processor {
	opts.defaults()
	if log == nil {
		log = logrus.New()
	}
	return &Processor{
		queue:    queue,
		sessions: sessions,
		clips:    clips,
		trimmer:  trimmer,
		uploader: uploader,
		pub:      pub,
		log:      log.WithField("component", "clip_processor"),
		opts:     opts,
	}
}

// Start launches the polling loop. No-op if already running.
func (p *Processor) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop halts polling and waits for in-flight jobs to finish. Jobs are not
// canceled mid-trim; anything stranded in processing by a crash is re-run
// through an explicit ProcessByID.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

func (p *Processor) loop(ctx context.Context) {
	defer p.wg.Done()

	t := time.NewTicker(p.opts.PollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Poll(ctx)
		}
	}
}

// Poll claims and dispatches at most one pending item, respecting the
// concurrency ceiling. Exported so a tick can be driven directly in tests
// and by the manual-kick endpoint.
func (p *Processor) Poll(ctx context.Context) {
	p.mu.Lock()
	if p.inFlight >= p.opts.Concurrency {
		p.mu.Unlock()
		return
	}
	p.inFlight++
	p.mu.Unlock()

	item, err := p.queue.ClaimOldestPending(ctx)
	if err != nil {
		p.release()
		if !errors.Is(err, utils.ErrNotFound) {
			p.log.WithError(err).Error("queue claim failed")
		}
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.release()
		p.process(context.Background(), item)
	}()
}

// ProcessByID force-processes a specific item, bypassing the poll loop.
// Allowed only from pending or failed; a claim conflict is reported as such.
func (p *Processor) ProcessByID(ctx context.Context, itemID string) error {
	const op = "Processor.ProcessByID"

	item, err := p.queue.ClaimByItemID(ctx, itemID,
		[]string{models.QueueStatusPending, models.QueueStatusFailed})
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			if existing, gerr := p.queue.GetByItemID(ctx, itemID); gerr == nil {
				return utils.E(utils.CodeConflict, op,
					fmt.Sprintf("item is %s, only pending or failed items can be processed", existing.Status), nil)
			}
			return utils.E(utils.CodeNotFound, op, "queue item not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to claim queue item", err)
	}

	p.mu.Lock()
	p.inFlight++
	p.mu.Unlock()
	defer p.release()

	p.process(ctx, item)
	return nil
}

func (p *Processor) release() {
	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
}

// InFlight reports the number of jobs currently being worked.
func (p *Processor) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

func (p *Processor) process(ctx context.Context, item *models.ClipQueueItem) {
	log := p.log.WithFields(logrus.Fields{
		"item_id":    item.ItemID,
		"session_id": item.SessionID,
	})
	log.Info("processing clip job")

	p.publishQueue(ctx, item.SessionID, item.ItemID, models.QueueStatusProcessing, nil)

	clip, err := p.produce(ctx, item)
	if err != nil {
		log.WithError(err).Error("clip job failed")
		if merr := p.queue.MarkFailed(ctx, item.ItemID, err.Error()); merr != nil {
			log.WithError(merr).Error("failed to mark job failed")
		}
		msg := err.Error()
		p.publishQueue(ctx, item.SessionID, item.ItemID, models.QueueStatusFailed, &msg)
		return
	}

	if err := p.queue.MarkCompleted(ctx, item.ItemID, clip.ID); err != nil {
		log.WithError(err).Error("failed to mark job completed")
		return
	}

	log.WithField("clip_id", clip.ID).Info("clip created")
	p.publishQueue(ctx, item.SessionID, item.ItemID, models.QueueStatusCompleted, nil)
	if p.pub != nil {
		_ = p.pub.Publish(ctx, events.New(item.SessionID, events.TypeClipCreated, clip))
	}
}

func (p *Processor) produce(ctx context.Context, item *models.ClipQueueItem) (*models.Clip, error) {
	sess, err := p.sessions.GetBySessionID(ctx, item.SessionID)
	if err != nil {
		return nil, fmt.Errorf("session lookup failed: %w", err)
	}
	if sess.RecordingPath == "" {
		return nil, errors.New("session has no source recording")
	}
	if _, err := os.Stat(sess.RecordingPath); err != nil {
		return nil, fmt.Errorf("source recording missing: %s", filepath.Base(sess.RecordingPath))
	}

	start := item.Start - p.opts.PreRollSeconds
	if start < 0 {
		start = 0
	}
	end := item.Start + p.opts.DefaultClipSeconds
	if item.End != nil {
		end = *item.End
	}
	if end <= start {
		return nil, fmt.Errorf("unresolvable clip range: start=%.2f end=%.2f", start, end)
	}

	res, err := p.trimmer.Trim(ctx, sess.RecordingPath, start, end)
	if err != nil {
		return nil, fmt.Errorf("trim failed: %w", err)
	}

	clipURL, thumbURL := res.ClipPath, res.ThumbnailPath
	if p.uploader != nil {
		if clipURL, err = p.uploadFile(ctx, item.SessionID, res.ClipPath, "video/mp4"); err != nil {
			return nil, fmt.Errorf("clip upload failed: %w", err)
		}
		if thumbURL, err = p.uploadFile(ctx, item.SessionID, res.ThumbnailPath, "image/jpeg"); err != nil {
			return nil, fmt.Errorf("thumbnail upload failed: %w", err)
		}
	}

	clip := &models.Clip{
		ID:            uuid.NewString(),
		SessionID:     item.SessionID,
		SourcePath:    sess.RecordingPath,
		ClipURL:       clipURL,
		ThumbnailURL:  thumbURL,
		Start:         start,
		End:           end,
		Duration:      res.Duration,
		TriggerType:   item.TriggerType,
		TriggerSource: item.TriggerSource,
		CreatedAt:     time.Now().UTC(),
	}
	if err := p.clips.Insert(ctx, clip); err != nil {
		return nil, fmt.Errorf("clip insert failed: %w", err)
	}
	return clip, nil
}

func (p *Processor) uploadFile(ctx context.Context, sessionID, path, contentType string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return p.uploader.Upload(ctx, storage.ArtifactName(sessionID, filepath.Base(path)), contentType, f)
}

func (p *Processor) publishQueue(ctx context.Context, sessionID, itemID, status string, errMsg *string) {
	if p.pub == nil {
		return
	}
	payload := map[string]any{"item_id": itemID, "status": status}
	if errMsg != nil {
		payload["error_message"] = *errMsg
	}
	if err := p.pub.Publish(ctx, events.New(sessionID, events.TypeQueueUpdated, payload)); err != nil {
		p.log.WithError(err).Warn("queue event publish failed")
	}
}
