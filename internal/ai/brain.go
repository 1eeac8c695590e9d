// Package ai is the summarization, suggestion, and natural-language parsing
// layer. Every operation carries its own deadline and a deterministic
// fallback; callers never see a transport error.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/DaveXRouz/conductor/internal/logging"
)

// Suggestion is one proposed next action, rendered as an inline button.
type Suggestion struct {
	Label   string `json:"label"`
	Command string `json:"command"`
}

// ParsedCommand is the structured result of natural-language parsing.
// Command is "unknown" when parsing failed or confidence was zero.
type ParsedCommand struct {
	Command       string            `json:"command"`
	Session       string            `json:"session"`
	Args          map[string]string `json:"args"`
	Confidence    float64           `json:"confidence"`
	Clarification string            `json:"clarification"`
}

// Options bound the brain's per-call budgets.
type Options struct {
	Timeout             time.Duration
	SummaryMaxTokens    int
	SuggestionMaxTokens int
	NLPMaxTokens        int
	FallbackLines       int
}

// DefaultOptions mirror the preference-file defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:             10 * time.Second,
		SummaryMaxTokens:    200,
		SuggestionMaxTokens: 300,
		NLPMaxTokens:        150,
		FallbackLines:       20,
	}
}

// Brain wraps a Client with prompt templates, timeouts, token-aware input
// truncation, and fallbacks.
type Brain struct {
	client  Client
	opts    Options
	enc     *tiktoken.Tiktoken
	log     *slog.Logger
	onError func(kind string, err error)
}

// NewBrain creates a brain over the given client. onError, if non-nil,
// receives every transport failure for escalation counting.
func NewBrain(client Client, opts Options, onError func(kind string, err error)) *Brain {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.FallbackLines <= 0 {
		opts.FallbackLines = 20
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		// Tokenizer data missing; length-based truncation still bounds input.
		enc = nil
	}
	return &Brain{
		client:  client,
		opts:    opts,
		enc:     enc,
		log:     logging.ForComponent(logging.CompAI),
		onError: onError,
	}
}

func (b *Brain) call(ctx context.Context, kind, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()
	text, err := b.client.Complete(ctx, prompt, maxTokens)
	if err != nil {
		b.log.Warn("ai call failed", "kind", kind, "error", err)
		if b.onError != nil {
			b.onError(kind, err)
		}
		return "", err
	}
	return text, nil
}

// Summarize condenses terminal output. On any failure it returns the raw
// tail of the output instead.
func (b *Brain) Summarize(ctx context.Context, terminalOutput string) string {
	input := b.truncateTail(terminalOutput, 1500)
	text, err := b.call(ctx, "summarize", fmt.Sprintf(summarizePrompt, input), b.opts.SummaryMaxTokens)
	if err != nil {
		return b.rawFallback(terminalOutput)
	}
	return strings.TrimSpace(text)
}

// Suggest proposes up to three next actions. On any failure it returns an
// empty list.
func (b *Brain) Suggest(ctx context.Context, terminalOutput, alias, sessionType, workingDir string) []Suggestion {
	input := b.truncateTail(terminalOutput, 1000)
	prompt := fmt.Sprintf(suggestPrompt, alias, sessionType, workingDir, input)
	text, err := b.call(ctx, "suggest", prompt, b.opts.SuggestionMaxTokens)
	if err != nil {
		return nil
	}
	var suggestions []Suggestion
	if err := json.Unmarshal([]byte(extractJSON(text)), &suggestions); err != nil {
		b.log.Warn("suggestion parse failed", "error", err)
		return nil
	}
	if len(suggestions) > 3 {
		suggestions = suggestions[:3]
	}
	return suggestions
}

// ParseNL converts a free-text user message into a structured command.
// On any failure the result is the unknown command with zero confidence.
func (b *Brain) ParseNL(ctx context.Context, userMessage, sessionListJSON, lastPromptContext string) ParsedCommand {
	unknown := ParsedCommand{Command: "unknown"}
	if lastPromptContext == "" {
		lastPromptContext = "None"
	}
	prompt := fmt.Sprintf(parseNLPrompt, sessionListJSON, lastPromptContext, userMessage)
	text, err := b.call(ctx, "parse_nl", prompt, b.opts.NLPMaxTokens)
	if err != nil {
		return unknown
	}
	var parsed ParsedCommand
	if err := json.Unmarshal([]byte(extractJSON(text)), &parsed); err != nil {
		b.log.Warn("nlp parse failed", "error", err)
		return unknown
	}
	if parsed.Command == "" {
		return unknown
	}
	return parsed
}

// rawFallback returns the last FallbackLines lines of output as plain text.
func (b *Brain) rawFallback(terminalOutput string) string {
	lines := strings.Split(strings.TrimSpace(terminalOutput), "\n")
	if len(lines) > b.opts.FallbackLines {
		lines = lines[len(lines)-b.opts.FallbackLines:]
	}
	return "📝 Raw output (AI unavailable):\n" + strings.Join(lines, "\n")
}

// truncateTail keeps the last maxTokens tokens of text so prompts stay
// bounded regardless of how much a pane printed.
func (b *Brain) truncateTail(text string, maxTokens int) string {
	if b.enc == nil {
		// Rough 4-bytes-per-token bound.
		limit := maxTokens * 4
		if len(text) > limit {
			return text[len(text)-limit:]
		}
		return text
	}
	toks := b.enc.Encode(text, nil, nil)
	if len(toks) <= maxTokens {
		return text
	}
	return b.enc.Decode(toks[len(toks)-maxTokens:])
}

// extractJSON trims prose or code fences around a JSON payload.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, "[{"); i > 0 {
		text = text[i:]
	}
	if i := strings.LastIndexAny(text, "]}"); i >= 0 && i < len(text)-1 {
		text = text[:i+1]
	}
	return text
}
