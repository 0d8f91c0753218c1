package agents

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/clipwise/clipwise/internal/models"
	"github.com/clipwise/clipwise/internal/providers/llm"
)

// Issue codes.
const (
	CodeLengthOverflow  = "length_overflow"
	CodeTooManyHashtags = "too_many_hashtags"
	CodeTooManyEmoji    = "too_many_emoji"
	CodeProfanity       = "profanity"
	CodeBlockedMention  = "blocked_mention"
	CodeExternalLink    = "external_link"
	CodeNoAttribution   = "missing_attribution"
	CodeAvoidedWord     = "avoided_word"
	CodeEmptyText       = "empty_text"
	CodeTooShort        = "too_short"
	CodeAllCaps         = "all_caps"
	CodeExcessivePunct  = "excessive_punctuation"
)

// fixableCodes is the subset of error codes auto-fix is attempted for.
var fixableCodes = map[string]bool{
	CodeLengthOverflow: true,
	CodeAllCaps:        true,
	CodeExcessivePunct: true,
}

var (
	punctRunRe = regexp.MustCompile(`[!?]{3,}|\.{4,}`)
	linkRe     = regexp.MustCompile(`https?://\S+`)
	mentionRe  = regexp.MustCompile(`@[A-Za-z0-9_]+`)
)

type ValidatorConfig struct {
	// MaxChars per output category; 0 means unlimited.
	MaxChars    map[string]int
	MaxHashtags int
	MaxEmoji    int
	MinChars    int

	Profanity       []string
	BlockedMentions []string
	AllowLinks      bool

	AvoidedWords []string
	AllowEmoji   bool
}

func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxChars: map[string]int{
			models.OutputSocialPost: 280,
			models.OutputQuote:      500,
			models.OutputChapter:    200,
		},
		MaxHashtags: 3,
		MaxEmoji:    4,
		MinChars:    8,
		AllowEmoji:  true,
	}
}

// Validator runs content checks over agent outputs and attempts an
// AI-assisted rewrite for a fixed subset of failures.
type Validator struct {
	llm llm.Provider // nil disables auto-fix
	cfg ValidatorConfig
}

func NewValidator(provider llm.Provider, cfg ValidatorConfig) *Validator {
	if cfg.MaxChars == nil {
		cfg = DefaultValidatorConfig()
	}
	return &Validator{llm: provider, cfg: cfg}
}

// Validate checks out and returns the validation status, the final text
// (rewritten when auto-fix succeeded), and every issue found. The output is
// never rejected outright: a failed status still yields a persistable draft.
func (v *Validator) Validate(ctx context.Context, out Output) (string, string, []models.ValidationIssue) {
	issues := v.check(out.Category, out.Text, out.Meta)

	errCount, fixable := 0, 0
	for _, is := range issues {
		if is.Severity != models.SeverityError {
			continue
		}
		errCount++
		if fixableCodes[is.Code] {
			fixable++
		}
	}

	if errCount == 0 {
		return models.ValidationPassed, out.Text, issues
	}

	// Rewrite only when every error is in the fixable subset; content
	// policy violations are not something to paper over with a reword.
	if v.llm == nil || fixable == 0 || fixable != errCount {
		return models.ValidationFailed, out.Text, issues
	}

	fixed, err := v.rewrite(ctx, out, issues)
	if err != nil || strings.TrimSpace(fixed) == "" || fixed == out.Text {
		return models.ValidationFailed, out.Text, issues
	}
	return models.ValidationFixed, fixed, issues
}

func (v *Validator) rewrite(ctx context.Context, out Output, issues []models.ValidationIssue) (string, error) {
	var problems []string
	for _, is := range issues {
		if is.Severity == models.SeverityError {
			problems = append(problems, is.Message)
		}
	}

	limit := v.cfg.MaxChars[out.Category]
	prompt := "Rewrite the following content to fix these problems: " +
		strings.Join(problems, "; ") + ".\n" +
		"Keep the meaning. Use normal sentence casing and punctuation."
	if limit > 0 {
		prompt += " Stay under " + strconv.Itoa(limit) + " characters."
	}
	prompt += "\nReply with the rewritten text only.\n\n" + out.Text

	return v.llm.Complete(ctx, prompt, llm.CompleteOptions{MaxTokens: 300, Temperature: 0.3})
}

func (v *Validator) check(category, text string, meta map[string]string) []models.ValidationIssue {
	var issues []models.ValidationIssue
	add := func(code, severity, cat, msg string) {
		issues = append(issues, models.ValidationIssue{
			Code: code, Severity: severity, Category: cat, Message: msg,
		})
	}

	trimmed := strings.TrimSpace(text)

	// quality
	switch {
	case trimmed == "":
		add(CodeEmptyText, models.SeverityError, models.IssueQuality, "text is empty")
		return issues
	case len(trimmed) < v.cfg.MinChars:
		add(CodeTooShort, models.SeverityWarning, models.IssueQuality, "text is too short")
	}
	if isAllCaps(trimmed) {
		add(CodeAllCaps, models.SeverityError, models.IssueQuality, "text is all caps")
	}
	if punctRunRe.MatchString(trimmed) {
		add(CodeExcessivePunct, models.SeverityError, models.IssueQuality, "excessive punctuation")
	}

	// platform limits
	if limit := v.cfg.MaxChars[category]; limit > 0 && len(trimmed) > limit {
		add(CodeLengthOverflow, models.SeverityError, models.IssuePlatformLimits, "text exceeds platform length limit")
	}
	if v.cfg.MaxHashtags > 0 && strings.Count(trimmed, "#") > v.cfg.MaxHashtags {
		add(CodeTooManyHashtags, models.SeverityWarning, models.IssuePlatformLimits, "too many hashtags")
	}
	if n := countEmoji(trimmed); v.cfg.MaxEmoji > 0 && n > v.cfg.MaxEmoji {
		add(CodeTooManyEmoji, models.SeverityWarning, models.IssuePlatformLimits, "too many emoji")
	} else if n > 0 && !v.cfg.AllowEmoji {
		add(CodeTooManyEmoji, models.SeverityError, models.IssueBrandVoice, "emoji are not allowed for this brand")
	}

	// content policy
	lower := strings.ToLower(trimmed)
	for _, w := range v.cfg.Profanity {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			add(CodeProfanity, models.SeverityError, models.IssueContentPolicy, "contains blocked language")
			break
		}
	}
	for _, m := range mentionRe.FindAllString(trimmed, -1) {
		for _, blocked := range v.cfg.BlockedMentions {
			if strings.EqualFold(m, blocked) {
				add(CodeBlockedMention, models.SeverityError, models.IssueContentPolicy, "mentions a blocked account")
			}
		}
	}
	if !v.cfg.AllowLinks && linkRe.MatchString(trimmed) {
		add(CodeExternalLink, models.SeverityError, models.IssueContentPolicy, "external links are not allowed")
	}
	if category == models.OutputQuote && meta["attribution"] == "" {
		add(CodeNoAttribution, models.SeverityError, models.IssueContentPolicy, "quote has no attribution")
	}

	// brand voice
	for _, w := range v.cfg.AvoidedWords {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			add(CodeAvoidedWord, models.SeverityWarning, models.IssueBrandVoice, "uses an avoided word: "+w)
		}
	}

	return issues
}

// isAllCaps reports whether every letter in s is uppercase (and there are
// at least a few of them, so acronyms alone do not trip it).
func isAllCaps(s string) bool {
	letters, upper := 0, 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	return letters >= 4 && letters == upper
}

func countEmoji(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x1F300 && r <= 0x1FAFF || r >= 0x2600 && r <= 0x27BF {
			n++
		}
	}
	return n
}
