package services

import (
	"context"
	"sync"

	"github.com/clipwise/clipwise/internal/agents"
	"github.com/clipwise/clipwise/internal/clock"
	"github.com/clipwise/clipwise/internal/events"
	"github.com/clipwise/clipwise/internal/models"
	"github.com/clipwise/clipwise/internal/providers/llm"
	"github.com/clipwise/clipwise/internal/providers/stt"
	mongorepo "github.com/clipwise/clipwise/internal/repositories/mongo"
	"github.com/clipwise/clipwise/internal/stream"
	"github.com/clipwise/clipwise/internal/triggers"
	"github.com/clipwise/clipwise/internal/utils"

	"github.com/sirupsen/logrus"
)

// LiveService owns the per-session runtime: one connection manager, one
// trigger engine, and the agent router subscription. A session has at most
// one running pipeline.
type LiveService interface {
	StartPipeline(ctx context.Context, sessionID string) error
	SendAudio(sessionID string, audio []byte) error
	EndPipeline(sessionID string) error
	Running(sessionID string) bool
}

type pipeline struct {
	manager *stream.Manager
	engine  *triggers.Engine
	cancel  context.CancelFunc
	unsub   func()
	done    chan struct{}
}

type liveService struct {
	sessions    SessionService
	triggers    TriggerService
	queue       QueueService
	transcripts mongorepo.TranscriptRepository
	stt         stt.Provider
	llm         llm.Provider
	bus         *events.Bus
	router      *agents.Router
	clk         clock.Clock
	log         *logrus.Logger

	mu         sync.Mutex
	running    map[string]*pipeline
	streamOpts stream.Options
}

func NewLiveService(
	sessions SessionService,
	trigs TriggerService,
	queue QueueService,
	transcripts mongorepo.TranscriptRepository,
	sttProvider stt.Provider,
	llmProvider llm.Provider,
	bus *events.Bus,
	router *agents.Router,
	clk clock.Clock,
	log *logrus.Logger,
) LiveService {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = logrus.New()
	}
	return &liveService{
		sessions:    sessions,
		triggers:    trigs,
		queue:       queue,
		transcripts: transcripts,
		stt:         sttProvider,
		llm:         llmProvider,
		bus:         bus,
		router:      router,
		clk:         clk,
		log:         log,
		running:     make(map[string]*pipeline),
		streamOpts:  stream.Options{Clock: clk},
	}
}

func (s *liveService) StartPipeline(ctx context.Context, sessionID string) error {
	const op = "LiveService.StartPipeline"

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != models.SessionStatusLive {
		return utils.E(utils.CodeConflict, op, "session already ended", nil)
	}

	s.mu.Lock()
	if _, ok := s.running[sessionID]; ok {
		s.mu.Unlock()
		return utils.E(utils.CodeConflict, op, "pipeline already running", nil)
	}
	// Reserve the slot before any blocking work.
	s.running[sessionID] = nil
	s.mu.Unlock()

	mgr := stream.NewManager(sessionID, s.stt, s.bus, s.transcripts, s.log, s.streamOpts)
	engine := triggers.NewEngine(s.triggers, s.queue, s.bus, s.clk, s.log)

	runCtx, cancel := context.WithCancel(context.Background())

	s.router.StartSession(sessionID, session.Workflow, agents.ForWorkflow(session.Workflow, s.llm))
	ch, unsub := s.bus.Subscribe(sessionID)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for env := range ch {
			s.router.HandleEvent(runCtx, env)
		}
	}()

	engine.Start(runCtx, sessionID, session.Workflow, mgr)

	lang := session.Metadata.Language
	if lang == "" {
		lang = "en-US"
	}
	cfg := stt.StreamConfig{
		LanguageCode:   lang,
		SampleRateHz:   16000,
		Diarization:    true,
		InterimResults: true,
	}
	if err := mgr.Start(runCtx, cfg); err != nil {
		engine.Stop()
		unsub()
		cancel()
		s.router.EndSession(sessionID)
		s.mu.Lock()
		delete(s.running, sessionID)
		s.mu.Unlock()
		return utils.E(utils.CodeUnavailable, op, "failed to start transcription", err)
	}

	s.mu.Lock()
	s.running[sessionID] = &pipeline{manager: mgr, engine: engine, cancel: cancel, unsub: unsub, done: done}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"workflow":   session.Workflow,
	}).Info("pipeline started")
	return nil
}

func (s *liveService) SendAudio(sessionID string, audio []byte) error {
	const op = "LiveService.SendAudio"

	s.mu.Lock()
	p := s.running[sessionID]
	s.mu.Unlock()
	if p == nil {
		return utils.E(utils.CodeNotFound, op, "no running pipeline for session", nil)
	}
	p.manager.SendAudio(audio)
	return nil
}

// EndPipeline tears the runtime down. Clip jobs already claimed keep
// running; pending ones stay in the queue for the processor's next poll.
func (s *liveService) EndPipeline(sessionID string) error {
	const op = "LiveService.EndPipeline"

	s.mu.Lock()
	p, ok := s.running[sessionID]
	if ok && p == nil {
		s.mu.Unlock()
		return utils.E(utils.CodeConflict, op, "pipeline is still starting", nil)
	}
	delete(s.running, sessionID)
	s.mu.Unlock()
	if p == nil {
		return utils.E(utils.CodeNotFound, op, "no running pipeline for session", nil)
	}

	p.engine.Stop()
	if err := p.manager.Stop(); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("manager stop failed")
	}
	p.unsub()
	<-p.done
	p.cancel()
	s.router.EndSession(sessionID)

	s.log.WithField("session_id", sessionID).Info("pipeline stopped")
	return nil
}

func (s *liveService) Running(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[sessionID] != nil
}
