package agents

import (
	"context"
	"testing"

	"github.com/clipwise/clipwise/internal/events"
	"github.com/clipwise/clipwise/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForWorkflowClosedSet(t *testing.T) {
	provider := &fakeLLM{}

	names := func(set []Agent) []string {
		var out []string
		for _, a := range set {
			out = append(out, a.Name())
		}
		return out
	}

	assert.Equal(t, []string{"social_post", "quote", "chapter"}, names(ForWorkflow(models.WorkflowPodcast, provider)))
	assert.Equal(t, []string{"social_post", "chapter"}, names(ForWorkflow(models.WorkflowWebinar, provider)))
	assert.Equal(t, []string{"social_post", "quote"}, names(ForWorkflow(models.WorkflowLivestream, provider)))
	assert.Empty(t, ForWorkflow("karaoke", provider))
}

func TestQuoteAgentSplitsAttribution(t *testing.T) {
	a := NewQuoteAgent(&fakeLLM{reply: "Ship early, learn fast.\nspeaker-1"})

	res, err := a.Process(context.Background(), events.Envelope{}, Context{Transcript: "speaker-1: ship early"})
	require.NoError(t, err)
	require.Len(t, res.Outputs, 1)

	out := res.Outputs[0]
	assert.Equal(t, models.OutputQuote, out.Category)
	assert.Equal(t, "Ship early, learn fast.", out.Text)
	assert.Equal(t, "speaker-1", out.Meta["attribution"])
}

func TestQuoteAgentNoAttributionLine(t *testing.T) {
	a := NewQuoteAgent(&fakeLLM{reply: "Ship early, learn fast."})

	res, err := a.Process(context.Background(), events.Envelope{}, Context{Transcript: "t"})
	require.NoError(t, err)
	assert.Empty(t, res.Outputs[0].Meta["attribution"])
}

func TestChapterAgentSummaryFallsBackToTitle(t *testing.T) {
	a := NewChapterAgent(&fakeLLM{reply: "The Big Reveal"})

	res, err := a.Process(context.Background(), events.Envelope{ID: "ev-1"}, Context{Workflow: models.WorkflowPodcast})
	require.NoError(t, err)
	require.Len(t, res.Outputs, 1)

	out := res.Outputs[0]
	assert.Equal(t, "The Big Reveal", out.Title)
	assert.Equal(t, "The Big Reveal", out.Text)
	assert.Equal(t, []string{"ev-1"}, out.Refs)
}

func TestChapterAgentReactsToClipEvents(t *testing.T) {
	a := NewChapterAgent(&fakeLLM{})

	assert.True(t, a.ShouldProcess(events.Envelope{Type: events.TypeClipCreated}, Context{}))
	assert.True(t, a.ShouldProcess(events.Envelope{Type: events.TypeTriggerDetected}, Context{}))
	assert.False(t, a.ShouldProcess(events.Envelope{Type: events.TypeTranscript}, Context{}))
}

func TestSocialPostAgentNeedsTranscript(t *testing.T) {
	a := NewSocialPostAgent(&fakeLLM{})

	assert.False(t, a.ShouldProcess(events.Envelope{Type: events.TypeTranscript}, Context{}))
	assert.True(t, a.ShouldProcess(events.Envelope{Type: events.TypeTranscript}, Context{Transcript: "text"}))
}
