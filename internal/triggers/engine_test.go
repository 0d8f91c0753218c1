package triggers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clipwise/clipwise/internal/clock"
	"github.com/clipwise/clipwise/internal/events"
	"github.com/clipwise/clipwise/internal/models"
	"github.com/clipwise/clipwise/internal/providers/stt"
	"github.com/clipwise/clipwise/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfig struct {
	triggers []models.AudioTrigger
	err      error
}

func (f *fakeConfig) Enabled(context.Context, string) ([]models.AudioTrigger, error) {
	return f.triggers, f.err
}

type fakeQueue struct {
	mu    sync.Mutex
	items []models.ClipQueueItem
}

func (q *fakeQueue) Enqueue(_ context.Context, item *models.ClipQueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, *item)
	return nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
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

func clipTrigger() models.AudioTrigger {
	return models.AudioTrigger{
		ID:       "trig-1",
		Workflow: models.WorkflowPodcast,
		Phrase:   "clip please",
		Enabled:  true,
	}
}

func finalSegment(text string, start float64) *models.TranscriptSegment {
	return &models.TranscriptSegment{
		SessionID:  "sess-1",
		Text:       text,
		Start:      start,
		End:        start + 2,
		Confidence: 0.9,
		IsFinal:    true,
	}
}

func newTestEngine(cfg ConfigSource, q QueueSink, pub events.Publisher) (*Engine, *clock.Fake) {
	clk := clock.NewFake(time.Unix(1700000000, 0))
	return NewEngine(cfg, q, pub, clk, nil), clk
}

func TestEngineFiresOnPhrase(t *testing.T) {
	q := &fakeQueue{}
	pub := &capturingPublisher{}
	e, _ := newTestEngine(&fakeConfig{triggers: []models.AudioTrigger{clipTrigger()}}, q, pub)
	e.loaded = []models.AudioTrigger{clipTrigger()}

	e.scan(context.Background(), "sess-1", finalSegment("okay CLIP PLEASE everyone", 42.0), e.log)

	require.Equal(t, 1, q.count())
	item := q.items[0]
	assert.Equal(t, "sess-1", item.SessionID)
	assert.Equal(t, "clip please", item.TriggerType)
	assert.Equal(t, models.TriggerSourcePhrase, item.TriggerSource)
	assert.Equal(t, models.QueueStatusPending, item.Status)
	assert.InDelta(t, 42.0, item.Start, 0.001)
	assert.Equal(t, 1, pub.countByType(events.TypeTriggerDetected))
}

func TestEngineCaseSensitiveMatch(t *testing.T) {
	trig := clipTrigger()
	trig.CaseSensitive = true
	q := &fakeQueue{}
	e, _ := newTestEngine(&fakeConfig{}, q, nil)
	e.loaded = []models.AudioTrigger{trig}

	e.scan(context.Background(), "sess-1", finalSegment("CLIP PLEASE", 1.0), e.log)
	assert.Equal(t, 0, q.count())

	e.scan(context.Background(), "sess-1", finalSegment("clip please", 2.0), e.log)
	assert.Equal(t, 1, q.count())
}

func TestEngineCooldown(t *testing.T) {
	q := &fakeQueue{}
	e, clk := newTestEngine(&fakeConfig{}, q, nil)
	e.loaded = []models.AudioTrigger{clipTrigger()}

	e.scan(context.Background(), "sess-1", finalSegment("clip please", 0), e.log)
	require.Equal(t, 1, q.count())

	// 10s later: inside the 30s cooldown, suppressed
	clk.Advance(10 * time.Second)
	e.scan(context.Background(), "sess-1", finalSegment("clip please again", 10), e.log)
	assert.Equal(t, 1, q.count())

	// 31s after the first firing: allowed again
	clk.Advance(21 * time.Second)
	e.scan(context.Background(), "sess-1", finalSegment("clip please once more", 31), e.log)
	assert.Equal(t, 2, q.count())
}

func TestEngineCooldownIsPerTrigger(t *testing.T) {
	second := models.AudioTrigger{ID: "trig-2", Phrase: "mark that", Enabled: true}
	q := &fakeQueue{}
	e, _ := newTestEngine(&fakeConfig{}, q, nil)
	e.loaded = []models.AudioTrigger{clipTrigger(), second}

	e.scan(context.Background(), "sess-1", finalSegment("clip please", 0), e.log)
	e.scan(context.Background(), "sess-1", finalSegment("mark that", 1), e.log)
	assert.Equal(t, 2, q.count())
}

func TestEngineSkipsDisabledTriggers(t *testing.T) {
	trig := clipTrigger()
	trig.Enabled = false
	q := &fakeQueue{}
	e, _ := newTestEngine(&fakeConfig{}, q, nil)
	e.loaded = []models.AudioTrigger{trig}

	e.scan(context.Background(), "sess-1", finalSegment("clip please", 0), e.log)
	assert.Equal(t, 0, q.count())
}

func TestAlignWordsRefinesTimestamp(t *testing.T) {
	seg := finalSegment("so anyway clip please thanks", 100.0)
	seg.Words = []models.WordTiming{
		{Word: "so", Start: 100.0, End: 100.3, Confidence: 0.9},
		{Word: "anyway", Start: 100.3, End: 100.9, Confidence: 0.8},
		{Word: "Clip", Start: 101.0, End: 101.4, Confidence: 0.95},
		{Word: "please,", Start: 101.4, End: 101.9, Confidence: 0.85},
		{Word: "thanks", Start: 102.0, End: 102.4, Confidence: 0.7},
	}

	trig := clipTrigger()
	match, ok := matchSegment(&trig, seg)
	require.True(t, ok)
	assert.InDelta(t, 101.0, match.Timestamp, 0.001)
	assert.InDelta(t, 0.9, match.Confidence, 0.001) // avg of 0.95 and 0.85
}

func TestAlignWordsFallsBackToSegmentStart(t *testing.T) {
	seg := finalSegment("clip please", 55.5) // no word timings
	trig := clipTrigger()

	match, ok := matchSegment(&trig, seg)
	require.True(t, ok)
	assert.InDelta(t, 55.5, match.Timestamp, 0.001)
	assert.InDelta(t, 0.9, match.Confidence, 0.001)
}

// Integration through a real connection manager: only final segments reach
// the engine, and a config load failure disables detection entirely.

type scriptedStream struct {
	events chan stt.Event
	once   sync.Once
}

func newScriptedStream() *scriptedStream {
	return &scriptedStream{events: make(chan stt.Event, 16)}
}

func (s *scriptedStream) Send(context.Context, []byte) error { return nil }
func (s *scriptedStream) KeepAlive(context.Context) error    { return nil }
func (s *scriptedStream) Events() <-chan stt.Event           { return s.events }
func (s *scriptedStream) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

type scriptedProvider struct{ s *scriptedStream }

func (p *scriptedProvider) Connect(context.Context, stt.StreamConfig) (stt.Stream, error) {
	return p.s, nil
}
func (p *scriptedProvider) Close() error { return nil }

func startManager(t *testing.T) (*stream.Manager, *scriptedStream) {
	t.Helper()
	s := newScriptedStream()
	m := stream.NewManager("sess-1", &scriptedProvider{s: s}, nil, nil, nil, stream.Options{
		Clock: clock.NewFake(time.Unix(1700000000, 0)),
	})
	require.NoError(t, m.Start(context.Background(), stt.StreamConfig{}))
	t.Cleanup(func() { _ = m.Stop() })
	return m, s
}

func TestEngineIgnoresInterimSegments(t *testing.T) {
	mgr, s := startManager(t)

	q := &fakeQueue{}
	e, _ := newTestEngine(&fakeConfig{triggers: []models.AudioTrigger{clipTrigger()}}, q, nil)
	e.Start(context.Background(), "sess-1", models.WorkflowPodcast, mgr)
	defer e.Stop()

	s.events <- stt.Event{Kind: stt.KindTranscript, Result: &stt.Result{Text: "clip please", IsFinal: false}}
	s.events <- stt.Event{Kind: stt.KindTranscript, Result: &stt.Result{Text: "clip please", IsFinal: true}}

	require.Eventually(t, func() bool { return q.count() == 1 },
		2*time.Second, 5*time.Millisecond)
}

func TestEngineConfigLoadFailureDisablesDetection(t *testing.T) {
	mgr, s := startManager(t)

	q := &fakeQueue{}
	e, _ := newTestEngine(&fakeConfig{err: errors.New("db down")}, q, nil)
	e.Start(context.Background(), "sess-1", models.WorkflowPodcast, mgr)
	defer e.Stop()

	s.events <- stt.Event{Kind: stt.KindTranscript, Result: &stt.Result{Text: "clip please", IsFinal: true}}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, q.count())
}
