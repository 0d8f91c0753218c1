package agents

import (
	"context"
	"strings"

	"github.com/clipwise/clipwise/internal/events"
	"github.com/clipwise/clipwise/internal/models"
	"github.com/clipwise/clipwise/internal/providers/llm"
)

// SocialPostAgent drafts a short social post from the buffered transcript.
type SocialPostAgent struct {
	llm llm.Provider
}

func NewSocialPostAgent(p llm.Provider) *SocialPostAgent { return &SocialPostAgent{llm: p} }

func (a *SocialPostAgent) Name() string { return "social_post" }

func (a *SocialPostAgent) ShouldProcess(ev events.Envelope, actx Context) bool {
	return ev.Type == events.TypeTranscript && actx.Transcript != ""
}

func (a *SocialPostAgent) Process(ctx context.Context, _ events.Envelope, actx Context) (*Result, error) {
	prompt := "You write social media posts promoting a live " + actx.Workflow + ".\n" +
		"Draft one short post (max 280 characters, no hashtags beyond two) from this transcript excerpt.\n" +
		"Reply with the post text only.\n\nTranscript:\n" + actx.Transcript

	text, err := a.llm.Complete(ctx, prompt, llm.CompleteOptions{MaxTokens: 200, Temperature: 0.8})
	if err != nil {
		return nil, err
	}
	return &Result{
		Agent:   a.Name(),
		Outputs: []Output{{Category: models.OutputSocialPost, Text: strings.TrimSpace(text)}},
	}, nil
}

// QuoteAgent pulls a compelling attributed quote out of the transcript.
type QuoteAgent struct {
	llm llm.Provider
}

func NewQuoteAgent(p llm.Provider) *QuoteAgent { return &QuoteAgent{llm: p} }

func (a *QuoteAgent) Name() string { return "quote" }

func (a *QuoteAgent) ShouldProcess(ev events.Envelope, actx Context) bool {
	return ev.Type == events.TypeTranscript && actx.Transcript != ""
}

func (a *QuoteAgent) Process(ctx context.Context, _ events.Envelope, actx Context) (*Result, error) {
	prompt := "Extract the single most quotable line from this transcript excerpt.\n" +
		"Reply with two lines: the quote, then the speaker label it belongs to.\n\nTranscript:\n" +
		actx.Transcript

	text, err := a.llm.Complete(ctx, prompt, llm.CompleteOptions{MaxTokens: 120, Temperature: 0.4})
	if err != nil {
		return nil, err
	}

	quote, attribution := text, ""
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		quote = strings.TrimSpace(text[:i])
		attribution = strings.TrimSpace(text[i+1:])
	}
	out := Output{
		Category: models.OutputQuote,
		Text:     quote,
		Meta:     map[string]string{},
	}
	if attribution != "" {
		out.Meta["attribution"] = attribution
	}
	return &Result{Agent: a.Name(), Outputs: []Output{out}}, nil
}

// ChapterAgent titles a chapter marker whenever a clip lands.
type ChapterAgent struct {
	llm llm.Provider
}

func NewChapterAgent(p llm.Provider) *ChapterAgent { return &ChapterAgent{llm: p} }

func (a *ChapterAgent) Name() string { return "chapter" }

func (a *ChapterAgent) ShouldProcess(ev events.Envelope, _ Context) bool {
	return ev.Type == events.TypeClipCreated || ev.Type == events.TypeTriggerDetected
}

func (a *ChapterAgent) Process(ctx context.Context, ev events.Envelope, actx Context) (*Result, error) {
	prompt := "A highlight was just clipped from a live " + actx.Workflow + ".\n" +
		"Write a chapter title (max 8 words) and a one-sentence summary, separated by a newline.\n\n" +
		"Recent transcript:\n" + actx.Transcript

	text, err := a.llm.Complete(ctx, prompt, llm.CompleteOptions{MaxTokens: 120, Temperature: 0.5})
	if err != nil {
		return nil, err
	}

	title, summary := text, ""
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		title = strings.TrimSpace(text[:i])
		summary = strings.TrimSpace(text[i+1:])
	}
	if summary == "" {
		summary = title
	}
	return &Result{
		Agent: a.Name(),
		Outputs: []Output{{
			Category: models.OutputChapter,
			Title:    title,
			Text:     summary,
			Refs:     []string{ev.ID},
		}},
	}, nil
}
