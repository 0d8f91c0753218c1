package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/clipwise/clipwise/internal/clock"
	"github.com/clipwise/clipwise/internal/events"
	"github.com/clipwise/clipwise/internal/models"
	"github.com/clipwise/clipwise/internal/providers/stt"
	mongorepo "github.com/clipwise/clipwise/internal/repositories/mongo"
	"github.com/sirupsen/logrus"
)

// ErrMaxReconnects is reported once the backoff budget is used up; the
// session's transcription is not recoverable past this point.
var ErrMaxReconnects = errors.New("maximum reconnection attempts reached")

// State of a session's upstream transcription connection.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateTranscribing State = "transcribing"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
	StateStopped      State = "stopped"
)

type EventType string

const (
	EventStatusChange     EventType = "status_change"
	EventTranscript       EventType = "transcript"
	EventError            EventType = "error"
	EventConnectionOpened EventType = "connection_opened"
	EventConnectionClosed EventType = "connection_closed"
)

// Event is delivered to local subscribers. Transcript events carry interim
// and final segments; only final segments are broadcast to the session
// fan-out.
type Event struct {
	Type        EventType
	State       State
	Segment     *models.TranscriptSegment
	Err         error
	Recoverable bool
}

type Options struct {
	Backoff           Backoff
	Clock             clock.Clock
	ConnectTimeout    time.Duration
	KeepAliveInterval time.Duration
}

func (o *Options) defaults() {
	if o.Backoff == (Backoff{}) {
		o.Backoff = DefaultBackoff()
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.KeepAliveInterval <= 0 {
		o.KeepAliveInterval = 15 * time.Second
	}
}

// Manager owns one upstream recognition connection for one session and
// translates vendor events into canonical segments. The state only walks
// the defined edges:
// idle -> connecting -> connected -> transcribing <-> reconnecting -> idle|error.
type Manager struct {
	sessionID   string
	provider    stt.Provider
	pub         events.Publisher
	transcripts mongorepo.TranscriptRepository // optional archive of final segments
	log         *logrus.Entry
	opts        Options

	mu           sync.Mutex
	state        State
	stream       stt.Stream
	cfg          stt.StreamConfig
	attempts     int
	seq          int64
	baseOffset   float64
	sessionStart time.Time
	keepalive    bool
	runCtx       context.Context
	cancel       context.CancelFunc

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

func NewManager(sessionID string, provider stt.Provider, pub events.Publisher, transcripts mongorepo.TranscriptRepository, log *logrus.Logger, opts Options) *Manager {
	opts.defaults()
	if log == nil {
		log = logrus.New()
	}
	return &Manager{
		sessionID:   sessionID,
		provider:    provider,
		pub:         pub,
		transcripts: transcripts,
		log:         log.WithField("session_id", sessionID),
		opts:        opts,
		state:       StateIdle,
		subs:        make(map[int]chan Event),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a local listener. The returned channel receives every
// manager event (interim transcripts included) until unsubscribed; a slow
// listener has events dropped rather than stalling the session.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Event, 64)
	m.subs[id] = ch

	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// Start opens the upstream stream. It is a no-op when already started. A
// failed first connect does not fail the session: the manager moves to
// reconnecting and retries under the backoff policy, reporting progress
// through its event channel.
func (m *Manager) Start(ctx context.Context, cfg stt.StreamConfig) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected, StateTranscribing, StateConnecting, StateReconnecting:
		m.mu.Unlock()
		return nil
	}
	m.cfg = cfg
	m.attempts = 0
	m.sessionStart = m.opts.Clock.Now()
	m.runCtx, m.cancel = context.WithCancel(context.Background())
	runCtx := m.runCtx
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	if err := m.connect(runCtx); err != nil {
		m.log.WithError(err).Warn("initial connect failed")
		m.beginReconnect(runCtx, err)
	}
	return nil
}

// Stop tears the connection down: pending reconnects and the keep-alive
// timer are canceled, the upstream stream is closed if open, and the state
// is forced to idle. Safe to call any number of times.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.state == StateIdle && m.cancel == nil {
		m.mu.Unlock()
		return nil
	}
	m.setStateLocked(StateStopped)
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	s := m.stream
	m.stream = nil
	m.keepalive = false
	m.mu.Unlock()

	if s != nil {
		_ = s.Close()
	}

	m.mu.Lock()
	m.setStateLocked(StateIdle)
	m.mu.Unlock()
	return nil
}

// SendAudio forwards raw audio upstream. Dropped silently unless the
// connection is connected or transcribing.
func (m *Manager) SendAudio(audio []byte) {
	m.mu.Lock()
	if (m.state != StateConnected && m.state != StateTranscribing) || m.stream == nil {
		m.mu.Unlock()
		return
	}
	s := m.stream
	ctx := m.runCtx
	m.mu.Unlock()

	if err := s.Send(ctx, audio); err != nil {
		m.log.WithError(err).Debug("audio send failed")
	}
}

func (m *Manager) connect(runCtx context.Context) error {
	ctx, cancel := context.WithTimeout(runCtx, m.opts.ConnectTimeout)
	defer cancel()

	s, err := m.provider.Connect(ctx, m.cfg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.state == StateStopped || m.state == StateIdle {
		// Stop() won the race; this connect's result is discarded.
		m.mu.Unlock()
		_ = s.Close()
		return nil
	}
	m.stream = s
	m.attempts = 0
	m.baseOffset = m.opts.Clock.Now().Sub(m.sessionStart).Seconds()
	m.setStateLocked(StateConnected)
	startKeepalive := !m.keepalive
	m.keepalive = true
	m.mu.Unlock()

	m.emit(Event{Type: EventConnectionOpened, State: StateConnected})
	m.publish(events.TypeConnectionOpened, nil)

	go m.readLoop(runCtx, s)
	if startKeepalive {
		go m.keepaliveLoop(runCtx)
	}
	return nil
}

func (m *Manager) readLoop(runCtx context.Context, s stt.Stream) {
	var streamErr error
	for ev := range s.Events() {
		switch ev.Kind {
		case stt.KindSpeechStarted:
			m.mu.Lock()
			if m.state == StateConnected {
				m.setStateLocked(StateTranscribing)
			}
			m.mu.Unlock()
		case stt.KindTranscript:
			m.handleResult(runCtx, ev.Result)
		case stt.KindError:
			streamErr = ev.Err
		case stt.KindClosed:
		}
	}

	m.mu.Lock()
	stale := m.stream != s || m.state == StateStopped || m.state == StateIdle
	m.mu.Unlock()
	if stale {
		return
	}

	m.emit(Event{Type: EventConnectionClosed, Err: streamErr})
	m.publish(events.TypeConnectionClosed, nil)
	m.beginReconnect(runCtx, streamErr)
}

func (m *Manager) beginReconnect(runCtx context.Context, cause error) {
	m.mu.Lock()
	if m.state == StateStopped || m.state == StateIdle || m.state == StateError {
		m.mu.Unlock()
		return
	}
	m.stream = nil
	m.setStateLocked(StateReconnecting)
	m.mu.Unlock()

	if cause != nil {
		m.emit(Event{Type: EventError, Err: cause, Recoverable: true})
	}

	go m.reconnectLoop(runCtx)
}

func (m *Manager) reconnectLoop(runCtx context.Context) {
	for {
		m.mu.Lock()
		if m.state != StateReconnecting {
			m.mu.Unlock()
			return
		}
		attempts := m.attempts
		exhausted := m.opts.Backoff.Exhausted(attempts)
		if exhausted {
			m.setStateLocked(StateError)
		}
		m.mu.Unlock()

		if exhausted {
			m.log.Error("reconnect attempts exhausted")
			m.emit(Event{Type: EventError, Err: ErrMaxReconnects, Recoverable: false})
			m.publish(events.TypeError, map[string]any{
				"message":     "transcription connection lost",
				"recoverable": false,
			})
			return
		}

		delay := m.opts.Backoff.Delay(attempts)
		m.log.WithFields(logrus.Fields{"attempt": attempts + 1, "delay_ms": delay.Milliseconds()}).
			Info("reconnecting to transcription stream")
		if err := m.opts.Clock.Sleep(runCtx, delay); err != nil {
			return // stopped
		}

		m.mu.Lock()
		if m.state != StateReconnecting {
			m.mu.Unlock()
			return
		}
		m.attempts++
		m.mu.Unlock()

		err := m.connect(runCtx)
		if err == nil {
			return
		}
		m.log.WithError(err).Warn("reconnect attempt failed")
	}
}

func (m *Manager) keepaliveLoop(runCtx context.Context) {
	t := time.NewTicker(m.opts.KeepAliveInterval)
	defer t.Stop()
	for {
		select {
		case <-runCtx.Done():
			return
		case <-t.C:
			m.mu.Lock()
			s := m.stream
			ok := m.state == StateConnected || m.state == StateTranscribing
			m.mu.Unlock()
			if ok && s != nil {
				if err := s.KeepAlive(runCtx); err != nil {
					m.log.WithError(err).Debug("keepalive failed")
				}
			}
		}
	}
}

func (m *Manager) handleResult(runCtx context.Context, res *stt.Result) {
	if res == nil {
		return
	}

	m.mu.Lock()
	base := m.baseOffset
	m.mu.Unlock()

	seg := &models.TranscriptSegment{
		SessionID:  m.sessionID,
		SpeakerID:  res.SpeakerID,
		Text:       res.Text,
		Start:      base + res.Start,
		End:        base + res.End,
		Confidence: res.Confidence,
		IsFinal:    res.IsFinal,
	}
	for _, w := range res.Words {
		seg.Words = append(seg.Words, models.WordTiming{
			Word:       w.Word,
			Start:      base + w.Start,
			End:        base + w.End,
			Confidence: w.Confidence,
		})
	}

	m.emit(Event{Type: EventTranscript, Segment: seg})

	if !seg.IsFinal {
		return
	}

	// Final segments are broadcast and archived; interim ones stay local.
	m.publish(events.TypeTranscript, seg)

	if m.transcripts != nil {
		m.mu.Lock()
		m.seq++
		seq := m.seq
		m.mu.Unlock()

		doc := &models.TranscriptDoc{
			SessionID:  seg.SessionID,
			Seq:        seq,
			SpeakerID:  seg.SpeakerID,
			Text:       seg.Text,
			Start:      seg.Start,
			End:        seg.End,
			Confidence: seg.Confidence,
			Words:      seg.Words,
			Timestamp:  m.opts.Clock.Now().UTC(),
			ExpiresAt:  m.opts.Clock.Now().UTC().Add(24 * time.Hour),
		}
		if err := m.transcripts.Insert(runCtx, doc); err != nil {
			m.log.WithError(err).Warn("transcript archive insert failed")
		}
	}
}

// setStateLocked mutates the state and notifies subscribers. Callers hold
// m.mu; subscriber delivery uses its own lock so this does not re-enter.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.emit(Event{Type: EventStatusChange, State: s})
	if s != StateStopped {
		go m.publish(events.TypeStatusChange, map[string]string{"state": string(s)})
	}
}

func (m *Manager) emit(ev Event) {
	m.subMu.Lock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	m.subMu.Unlock()
}

func (m *Manager) publish(typ string, payload any) {
	if m.pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.pub.Publish(ctx, events.New(m.sessionID, typ, payload)); err != nil {
		m.log.WithError(err).Warn("event publish failed")
	}
}
