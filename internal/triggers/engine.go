package triggers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/clipwise/clipwise/internal/clock"
	"github.com/clipwise/clipwise/internal/events"
	"github.com/clipwise/clipwise/internal/models"
	"github.com/clipwise/clipwise/internal/stream"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ConfigSource loads the enabled triggers for a workflow.
type ConfigSource interface {
	Enabled(ctx context.Context, workflow string) ([]models.AudioTrigger, error)
}

// QueueSink accepts newly created clip queue items.
type QueueSink interface {
	Enqueue(ctx context.Context, item *models.ClipQueueItem) error
}

// Engine scans final transcript segments for configured phrases and enqueues
// cooldown-gated clip jobs. One engine per live session; segments arrive
// sequentially from the session's connection manager.
type Engine struct {
	triggers ConfigSource
	queue    QueueSink
	pub      events.Publisher
	clk      clock.Clock
	log      *logrus.Entry

	// Cooldown is the minimum gap between two firings of the same trigger.
	Cooldown time.Duration

	mu       sync.Mutex
	loaded   []models.AudioTrigger
	lastFire map[string]time.Time
	unsub    func()
	done     chan struct{}
}

func NewEngine(triggers ConfigSource, queue QueueSink, pub events.Publisher, clk clock.Clock, log *logrus.Logger) *Engine {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		triggers: triggers,
		queue:    queue,
		pub:      pub,
		clk:      clk,
		log:      log.WithField("component", "trigger_engine"),
		Cooldown: 30 * time.Second,
		lastFire: make(map[string]time.Time),
	}
}

// Start loads the workflow's enabled triggers and subscribes to the
// connection manager. A configuration load failure disables detection for
// the session (logged) instead of aborting it.
func (e *Engine) Start(ctx context.Context, sessionID, workflow string, mgr *stream.Manager) {
	log := e.log.WithFields(logrus.Fields{"session_id": sessionID, "workflow": workflow})

	loaded, err := e.triggers.Enabled(ctx, workflow)
	if err != nil {
		log.WithError(err).Error("trigger config load failed, detection disabled")
		loaded = nil
	}

	e.mu.Lock()
	e.loaded = loaded
	e.lastFire = make(map[string]time.Time)
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()

	ch, unsub := mgr.Subscribe()
	e.mu.Lock()
	e.unsub = unsub
	e.mu.Unlock()

	go func() {
		defer close(done)
		for ev := range ch {
			if ev.Type != stream.EventTranscript || ev.Segment == nil || !ev.Segment.IsFinal {
				continue
			}
			e.scan(context.Background(), sessionID, ev.Segment, log)
		}
	}()
}

// Stop unsubscribes from the manager and clears cooldown state.
func (e *Engine) Stop() {
	e.mu.Lock()
	unsub := e.unsub
	e.unsub = nil
	done := e.done
	e.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if done != nil {
		<-done
	}

	e.mu.Lock()
	e.lastFire = make(map[string]time.Time)
	e.loaded = nil
	e.mu.Unlock()
}

func (e *Engine) scan(ctx context.Context, sessionID string, seg *models.TranscriptSegment, log *logrus.Entry) {
	e.mu.Lock()
	loaded := e.loaded
	e.mu.Unlock()

	for i := range loaded {
		t := &loaded[i]
		if !t.Enabled {
			continue
		}

		match, ok := matchSegment(t, seg)
		if !ok {
			continue
		}

		if !e.tryFire(t.ID) {
			log.WithFields(logrus.Fields{"trigger_id": t.ID, "phrase": t.Phrase}).
				Debug("trigger match suppressed by cooldown")
			continue
		}

		e.fire(ctx, sessionID, t, match, log)
	}
}

// tryFire consults and updates the cooldown map atomically so a burst of
// segments cannot double-fire the same trigger.
func (e *Engine) tryFire(triggerID string) bool {
	now := e.clk.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	if last, ok := e.lastFire[triggerID]; ok && now.Sub(last) < e.Cooldown {
		return false
	}
	e.lastFire[triggerID] = now
	return true
}

func (e *Engine) fire(ctx context.Context, sessionID string, t *models.AudioTrigger, match models.TriggerMatch, log *logrus.Entry) {
	log = log.WithFields(logrus.Fields{
		"trigger_id": t.ID,
		"phrase":     t.Phrase,
		"timestamp":  match.Timestamp,
	})
	log.Info("trigger fired")

	item := &models.ClipQueueItem{
		ItemID:        uuid.NewString(),
		SessionID:     sessionID,
		TriggerType:   t.Phrase,
		TriggerSource: models.TriggerSourcePhrase,
		Start:         match.Timestamp,
		Status:        models.QueueStatusPending,
		CreatedAt:     e.clk.Now().UTC(),
	}
	if err := e.queue.Enqueue(ctx, item); err != nil {
		log.WithError(err).Error("failed to enqueue clip job")
		return
	}

	if e.pub != nil {
		env := events.New(sessionID, events.TypeTriggerDetected, match)
		if err := e.pub.Publish(ctx, env); err != nil {
			log.WithError(err).Warn("trigger event publish failed")
		}
	}
}

// matchSegment tests one trigger against one segment and, on a hit, refines
// the timestamp and confidence from per-word timing when available.
func matchSegment(t *models.AudioTrigger, seg *models.TranscriptSegment) (models.TriggerMatch, bool) {
	text := seg.Text
	phrase := t.Phrase
	if !t.CaseSensitive {
		text = strings.ToLower(text)
		phrase = strings.ToLower(phrase)
	}
	if phrase == "" || !strings.Contains(text, phrase) {
		return models.TriggerMatch{}, false
	}

	match := models.TriggerMatch{
		TriggerID:   t.ID,
		Phrase:      t.Phrase,
		MatchedText: seg.Text,
		Confidence:  seg.Confidence,
		Timestamp:   seg.Start,
	}

	if ts, conf, ok := alignWords(phrase, seg.Words, t.CaseSensitive); ok {
		match.Timestamp = ts
		match.Confidence = conf
	}
	return match, true
}

// alignWords slides the phrase's words over the segment's word timings,
// comparing punctuation-stripped tokens, and returns the aligned window's
// start time and average word confidence.
func alignWords(phrase string, words []models.WordTiming, caseSensitive bool) (float64, float64, bool) {
	want := tokenize(phrase, caseSensitive)
	if len(want) == 0 || len(words) < len(want) {
		return 0, 0, false
	}

	for i := 0; i+len(want) <= len(words); i++ {
		ok := true
		for j, w := range want {
			if normalizeWord(words[i+j].Word, caseSensitive) != w {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}

		var sum float64
		for j := range want {
			sum += words[i+j].Confidence
		}
		return words[i].Start, sum / float64(len(want)), true
	}
	return 0, 0, false
}

func tokenize(s string, caseSensitive bool) []string {
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if w := normalizeWord(f, caseSensitive); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func normalizeWord(w string, caseSensitive bool) string {
	w = strings.TrimFunc(w, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9')
	})
	if !caseSensitive {
		w = strings.ToLower(w)
	}
	return w
}
