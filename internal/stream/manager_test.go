package stream

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
	mongorepo "github.com/clipwise/clipwise/internal/repositories/mongo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	mu     sync.Mutex
	sent   [][]byte
	events chan stt.Event
	closed bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan stt.Event, 16)}
}

func (s *fakeStream) Send(_ context.Context, audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, audio)
	return nil
}

func (s *fakeStream) KeepAlive(context.Context) error { return nil }

func (s *fakeStream) Events() <-chan stt.Event { return s.events }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

func (s *fakeStream) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// fakeProvider hands out scripted connect outcomes: one entry per Connect
// call, nil meaning failure.
type fakeProvider struct {
	mu       sync.Mutex
	script   []*fakeStream
	connects int
}

func (p *fakeProvider) Connect(context.Context, stt.StreamConfig) (stt.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.connects
	p.connects++
	if i >= len(p.script) || p.script[i] == nil {
		return nil, errors.New("connect refused")
	}
	return p.script[i], nil
}

func (p *fakeProvider) Close() error { return nil }

func (p *fakeProvider) connectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects
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

func (p *capturingPublisher) byType(typ string) []events.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Envelope
	for _, e := range p.envs {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type capturingTranscripts struct {
	mu   sync.Mutex
	docs []models.TranscriptDoc
}

func (r *capturingTranscripts) Insert(_ context.Context, doc *models.TranscriptDoc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, *doc)
	return nil
}

func (r *capturingTranscripts) ListBySession(context.Context, string, int64) ([]models.TranscriptDoc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TranscriptDoc(nil), r.docs...), nil
}

func newTestManager(provider stt.Provider, pub events.Publisher, transcripts *capturingTranscripts) (*Manager, *clock.Fake) {
	clk := clock.NewFake(time.Unix(1700000000, 0))
	var repo mongorepo.TranscriptRepository
	if transcripts != nil {
		repo = transcripts
	}
	return NewManager("sess-1", provider, pub, repo, nil, Options{Clock: clk}), clk
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want },
		2*time.Second, 5*time.Millisecond, "state never reached %s", want)
}

func TestManagerStartConnects(t *testing.T) {
	provider := &fakeProvider{script: []*fakeStream{newFakeStream()}}
	m, _ := newTestManager(provider, nil, nil)

	require.NoError(t, m.Start(context.Background(), stt.StreamConfig{}))
	assert.Equal(t, StateConnected, m.State())

	// second Start is a no-op
	require.NoError(t, m.Start(context.Background(), stt.StreamConfig{}))
	assert.Equal(t, 1, provider.connectCount())
}

func TestManagerSpeechStartedMovesToTranscribing(t *testing.T) {
	s := newFakeStream()
	provider := &fakeProvider{script: []*fakeStream{s}}
	m, _ := newTestManager(provider, nil, nil)

	require.NoError(t, m.Start(context.Background(), stt.StreamConfig{}))
	s.events <- stt.Event{Kind: stt.KindSpeechStarted}
	waitForState(t, m, StateTranscribing)
}

func TestManagerSendAudioDroppedWhenNotConnected(t *testing.T) {
	s := newFakeStream()
	provider := &fakeProvider{script: []*fakeStream{s}}
	m, _ := newTestManager(provider, nil, nil)

	m.SendAudio([]byte("early")) // idle: dropped
	assert.Equal(t, 0, s.sentCount())

	require.NoError(t, m.Start(context.Background(), stt.StreamConfig{}))
	m.SendAudio([]byte("audio"))
	assert.Equal(t, 1, s.sentCount())
}

func TestManagerStopIsIdempotent(t *testing.T) {
	s := newFakeStream()
	provider := &fakeProvider{script: []*fakeStream{s}}
	m, _ := newTestManager(provider, nil, nil)

	require.NoError(t, m.Start(context.Background(), stt.StreamConfig{}))
	require.NoError(t, m.Stop())
	assert.Equal(t, StateIdle, m.State())

	require.NoError(t, m.Stop())
	assert.Equal(t, StateIdle, m.State())

	// audio after stop is dropped
	m.SendAudio([]byte("late"))
	assert.Equal(t, 0, s.sentCount())
}

func TestManagerReconnectsAfterStreamLoss(t *testing.T) {
	first := newFakeStream()
	second := newFakeStream()
	provider := &fakeProvider{script: []*fakeStream{first, second}}
	m, clk := newTestManager(provider, nil, nil)

	require.NoError(t, m.Start(context.Background(), stt.StreamConfig{}))

	first.events <- stt.Event{Kind: stt.KindError, Err: errors.New("stream reset")}
	first.Close()

	require.Eventually(t, func() bool { return provider.connectCount() == 2 },
		2*time.Second, 5*time.Millisecond)
	waitForState(t, m, StateConnected)
	assert.Equal(t, 2, provider.connectCount())
	assert.Equal(t, []time.Duration{1 * time.Second}, clk.Sleeps())
}

func TestManagerBackoffDelaysGrow(t *testing.T) {
	// two failed connects before the third succeeds
	provider := &fakeProvider{script: []*fakeStream{newFakeStream(), nil, nil, newFakeStream()}}
	m, clk := newTestManager(provider, nil, nil)

	require.NoError(t, m.Start(context.Background(), stt.StreamConfig{}))
	provider.script[0].Close()

	require.Eventually(t, func() bool { return provider.connectCount() == 4 },
		2*time.Second, 5*time.Millisecond)
	waitForState(t, m, StateConnected)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}, clk.Sleeps())
}

func TestManagerGivesUpAfterMaxAttempts(t *testing.T) {
	// every connect after the first fails
	provider := &fakeProvider{script: []*fakeStream{newFakeStream()}}
	pub := &capturingPublisher{}
	m, clk := newTestManager(provider, pub, nil)

	require.NoError(t, m.Start(context.Background(), stt.StreamConfig{}))

	ch, unsub := m.Subscribe()
	defer unsub()

	provider.script[0].Close()
	waitForState(t, m, StateError)

	// 5 retries: 1s 2s 4s 8s 16s, then permanent failure
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
	}, clk.Sleeps())

	var terminal *Event
	deadline := time.After(2 * time.Second)
	for terminal == nil {
		select {
		case ev := <-ch:
			if ev.Type == EventError && !ev.Recoverable {
				e := ev
				terminal = &e
			}
		case <-deadline:
			t.Fatal("no terminal error event")
		}
	}
	assert.ErrorIs(t, terminal.Err, ErrMaxReconnects)

	require.Eventually(t, func() bool { return len(pub.byType(events.TypeError)) == 1 },
		2*time.Second, 5*time.Millisecond)
}

func TestManagerAttemptCounterResetsOnSuccess(t *testing.T) {
	// first stream dies, one failed retry, second stream connects, dies
	// again: the delay sequence must restart from the base.
	provider := &fakeProvider{script: []*fakeStream{newFakeStream(), nil, newFakeStream(), newFakeStream()}}
	m, clk := newTestManager(provider, nil, nil)

	require.NoError(t, m.Start(context.Background(), stt.StreamConfig{}))
	provider.script[0].Close()

	require.Eventually(t, func() bool { return provider.connectCount() == 3 },
		2*time.Second, 5*time.Millisecond)
	waitForState(t, m, StateConnected)
	require.Equal(t, 3, provider.connectCount())

	provider.script[2].Close()
	require.Eventually(t, func() bool { return provider.connectCount() == 4 },
		2*time.Second, 5*time.Millisecond)
	waitForState(t, m, StateConnected)

	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, // first outage, one failed retry
		1 * time.Second, // second outage starts over
	}, clk.Sleeps())
}

func TestManagerPublishesAndArchivesFinalSegmentsOnly(t *testing.T) {
	s := newFakeStream()
	provider := &fakeProvider{script: []*fakeStream{s}}
	pub := &capturingPublisher{}
	transcripts := &capturingTranscripts{}
	m, _ := newTestManager(provider, pub, transcripts)

	require.NoError(t, m.Start(context.Background(), stt.StreamConfig{}))

	ch, unsub := m.Subscribe()
	defer unsub()

	s.events <- stt.Event{Kind: stt.KindTranscript, Result: &stt.Result{Text: "hello wor", IsFinal: false}}
	s.events <- stt.Event{Kind: stt.KindTranscript, Result: &stt.Result{Text: "hello world", Start: 1.2, End: 2.5, IsFinal: true}}

	// local subscriber sees both, interim first
	var seen []Event
	for len(seen) < 2 {
		select {
		case ev := <-ch:
			if ev.Type == EventTranscript {
				seen = append(seen, ev)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("transcript events not delivered")
		}
	}
	assert.False(t, seen[0].Segment.IsFinal)
	assert.True(t, seen[1].Segment.IsFinal)

	require.Eventually(t, func() bool { return len(pub.byType(events.TypeTranscript)) == 1 },
		2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		docs, _ := transcripts.ListBySession(context.Background(), "sess-1", 0)
		return len(docs) == 1
	}, 2*time.Second, 5*time.Millisecond)

	docs, _ := transcripts.ListBySession(context.Background(), "sess-1", 0)
	assert.Equal(t, "hello world", docs[0].Text)
	assert.Equal(t, int64(1), docs[0].Seq)
	assert.InDelta(t, 1.2, docs[0].Start, 0.001)
}
