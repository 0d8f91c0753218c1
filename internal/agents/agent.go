package agents

import (
	"context"

	"github.com/clipwise/clipwise/internal/events"
	"github.com/clipwise/clipwise/internal/models"
	"github.com/clipwise/clipwise/internal/providers/llm"
)

// Output is one piece of content drafted by an agent, pre-validation.
type Output struct {
	Category string // models.OutputSocialPost, OutputQuote, OutputChapter
	Title    string
	Text     string
	Refs     []string
	Meta     map[string]string
}

// Result is the outcome of one agent invocation. A failed invocation
// carries Err and no outputs; the router reports it without touching
// sibling results.
type Result struct {
	Agent   string
	Outputs []Output
	Err     error
}

// Context is the rolling session context handed to agents on dispatch.
type Context struct {
	SessionID  string
	Workflow   string
	Transcript string // buffered "speaker: text" lines
	Events     []events.Envelope
}

// Agent drafts content from buffered session context. Implementations must
// be safe for concurrent invocation across sessions.
type Agent interface {
	Name() string
	ShouldProcess(ev events.Envelope, actx Context) bool
	Process(ctx context.Context, ev events.Envelope, actx Context) (*Result, error)
}

// ForWorkflow resolves the closed set of agents for a workflow. Resolution
// happens once at session start; unknown workflows get no agents.
func ForWorkflow(workflow string, provider llm.Provider) []Agent {
	switch workflow {
	case models.WorkflowPodcast:
		return []Agent{
			NewSocialPostAgent(provider),
			NewQuoteAgent(provider),
			NewChapterAgent(provider),
		}
	case models.WorkflowWebinar:
		return []Agent{
			NewSocialPostAgent(provider),
			NewChapterAgent(provider),
		}
	case models.WorkflowLivestream:
		return []Agent{
			NewSocialPostAgent(provider),
			NewQuoteAgent(provider),
		}
	}
	return nil
}
