package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/clipwise/clipwise/internal/events"
	"github.com/clipwise/clipwise/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	maxTranscriptSegments = 10
	maxBufferedEvents     = 20
	minTranscriptChars    = 100
)

// DraftSink persists validated agent outputs.
type DraftSink interface {
	Persist(ctx context.Context, sessionID, agent string, out Output, status string, issues []models.ValidationIssue) (*models.Draft, error)
}

type sessionState struct {
	workflow string
	agents   []Agent
	segments []string // rendered "speaker: text" lines, newest last
	events   []events.Envelope
}

func (s *sessionState) transcript() string {
	return strings.Join(s.segments, "\n")
}

// Router keeps rolling per-session context and dispatches it to the
// workflow's agents, validating and persisting whatever they draft. Buffers
// are owned exclusively by the router; the trigger engine never sees them.
type Router struct {
	validator *Validator
	drafts    DraftSink
	pub       events.Publisher
	log       *logrus.Entry

	mu       sync.Mutex
	sessions map[string]*sessionState
}

func NewRouter(validator *Validator, drafts DraftSink, pub events.Publisher, log *logrus.Logger) *Router {
	if log == nil {
		log = logrus.New()
	}
	return &Router{
		validator: validator,
		drafts:    drafts,
		pub:       pub,
		log:       log.WithField("component", "agent_router"),
		sessions:  make(map[string]*sessionState),
	}
}

// StartSession resolves the workflow's agent set and allocates buffers.
func (r *Router) StartSession(sessionID, workflow string, agentSet []Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = &sessionState{workflow: workflow, agents: agentSet}
}

// EndSession drops the session's buffers.
func (r *Router) EndSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// TranscriptLen returns the buffered transcript length for a session.
func (r *Router) TranscriptLen(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		return len(s.transcript())
	}
	return 0
}

// HandleEvent buffers ev and, when eligible, dispatches the buffered
// context to every willing agent. Transcript events are held back until
// enough text has accumulated to be worth an agent call.
func (r *Router) HandleEvent(ctx context.Context, ev events.Envelope) {
	r.mu.Lock()
	state, ok := r.sessions[ev.SessionID]
	if !ok {
		r.mu.Unlock()
		return
	}

	if ev.Type == events.TypeTranscript {
		if line := renderSegment(ev.Payload); line != "" {
			state.segments = append(state.segments, line)
			if len(state.segments) > maxTranscriptSegments {
				state.segments = state.segments[len(state.segments)-maxTranscriptSegments:]
			}
		}
	} else {
		state.events = append(state.events, ev)
		if len(state.events) > maxBufferedEvents {
			state.events = state.events[len(state.events)-maxBufferedEvents:]
		}
	}

	actx := Context{
		SessionID:  ev.SessionID,
		Workflow:   state.workflow,
		Transcript: state.transcript(),
		Events:     append([]events.Envelope(nil), state.events...),
	}
	agentSet := state.agents
	r.mu.Unlock()

	if ev.Type == events.TypeTranscript && len(actx.Transcript) < minTranscriptChars {
		return
	}

	results := r.dispatch(ctx, ev, actx, agentSet)

	spent := false
	for _, res := range results {
		if res != nil && len(res.Outputs) > 0 {
			spent = true
		}
	}
	if spent {
		// Content has been drafted from this transcript; don't feed the
		// same text to the next dispatch. Event buffer stays.
		r.mu.Lock()
		if s, ok := r.sessions[ev.SessionID]; ok {
			s.segments = nil
		}
		r.mu.Unlock()
	}

	for _, res := range results {
		if res == nil {
			continue
		}
		if res.Err != nil {
			r.reportFailure(ctx, ev.SessionID, res)
			continue
		}
		for _, out := range res.Outputs {
			r.persist(ctx, ev.SessionID, res.Agent, out)
		}
	}
}

// reportFailure surfaces a failed agent run to session subscribers. Agent
// failures never abort the dispatch, so they are always recoverable.
func (r *Router) reportFailure(ctx context.Context, sessionID string, res *Result) {
	if r.pub == nil {
		return
	}
	payload := map[string]any{
		"component":   "agent",
		"agent":       res.Agent,
		"error":       res.Err.Error(),
		"recoverable": true,
	}
	if err := r.pub.Publish(ctx, events.New(sessionID, events.TypeError, payload)); err != nil {
		r.log.WithError(err).Warn("agent failure event publish failed")
	}
}

// dispatch runs every willing agent concurrently; one agent's failure or
// panic is isolated from its siblings.
func (r *Router) dispatch(ctx context.Context, ev events.Envelope, actx Context, agentSet []Agent) []*Result {
	results := make([]*Result, len(agentSet))
	var wg sync.WaitGroup

	for i, ag := range agentSet {
		if !ag.ShouldProcess(ev, actx) {
			continue
		}
		wg.Add(1)
		go func(i int, ag Agent) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.log.WithFields(logrus.Fields{
						"agent":      ag.Name(),
						"session_id": actx.SessionID,
					}).Error(fmt.Sprintf("agent panicked: %v", rec))
					results[i] = &Result{Agent: ag.Name(), Err: fmt.Errorf("agent panicked: %v", rec)}
				}
			}()

			res, err := ag.Process(ctx, ev, actx)
			if err != nil {
				r.log.WithError(err).WithFields(logrus.Fields{
					"agent":      ag.Name(),
					"session_id": actx.SessionID,
				}).Warn("agent failed")
				results[i] = &Result{Agent: ag.Name(), Err: err}
				return
			}
			results[i] = res
		}(i, ag)
	}

	wg.Wait()
	return results
}

func (r *Router) persist(ctx context.Context, sessionID, agent string, out Output) {
	log := r.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"agent":      agent,
		"category":   out.Category,
	})

	status, finalText, issues := models.ValidationSkipped, out.Text, []models.ValidationIssue(nil)
	if r.validator != nil {
		status, finalText, issues = r.validator.Validate(ctx, out)
	}
	out.Text = finalText

	draft, err := r.drafts.Persist(ctx, sessionID, agent, out, status, issues)
	if err != nil {
		// Draft loss is logged, never fatal to the agent run.
		log.WithError(err).Error("draft persist failed")
		return
	}
	log.WithField("validation_status", status).Info("draft persisted")

	if r.pub != nil {
		if err := r.pub.Publish(ctx, events.New(sessionID, events.TypeDraftCreated, draft)); err != nil {
			log.WithError(err).Warn("draft event publish failed")
		}
	}
}

// renderSegment turns a transcript envelope payload into a "speaker: text"
// line.
func renderSegment(payload json.RawMessage) string {
	var seg models.TranscriptSegment
	if err := json.Unmarshal(payload, &seg); err != nil || seg.Text == "" {
		return ""
	}
	speaker := "speaker"
	if seg.SpeakerID != nil {
		speaker = fmt.Sprintf("speaker-%d", *seg.SpeakerID)
	}
	return speaker + ": " + seg.Text
}
