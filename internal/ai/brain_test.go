package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClient struct {
	response string
	err      error
	delay    time.Duration
	prompts  []string
}

func (f *fakeClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.response, f.err
}

func TestSummarize(t *testing.T) {
	c := &fakeClient{response: "Build passed, 12 tests green."}
	b := NewBrain(c, DefaultOptions(), nil)
	got := b.Summarize(context.Background(), "long terminal output")
	assert.Equal(t, "Build passed, 12 tests green.", got)
}

func TestSummarize_FallbackOnError(t *testing.T) {
	c := &fakeClient{err: errors.New("connection refused")}
	b := NewBrain(c, DefaultOptions(), nil)
	got := b.Summarize(context.Background(), "line1\nline2\nline3")
	assert.Contains(t, got, "Raw output")
	assert.Contains(t, got, "line3")
}

func TestSummarize_FallbackKeepsLastNLines(t *testing.T) {
	c := &fakeClient{err: errors.New("boom")}
	opts := DefaultOptions()
	opts.FallbackLines = 2
	b := NewBrain(c, opts, nil)

	got := b.Summarize(context.Background(), "one\ntwo\nthree\nfour")
	assert.NotContains(t, got, "two")
	assert.Contains(t, got, "three")
	assert.Contains(t, got, "four")
}

func TestSummarize_FallbackOnTimeout(t *testing.T) {
	c := &fakeClient{response: "too late", delay: 200 * time.Millisecond}
	opts := DefaultOptions()
	opts.Timeout = 20 * time.Millisecond
	b := NewBrain(c, opts, nil)

	got := b.Summarize(context.Background(), "output")
	assert.Contains(t, got, "Raw output")
}

func TestSuggest(t *testing.T) {
	c := &fakeClient{response: `[{"label": "Run tests", "command": "npm test"}]`}
	b := NewBrain(c, DefaultOptions(), nil)
	got := b.Suggest(context.Background(), "build ok", "Proj", "claude-code", "/tmp")
	assert.Len(t, got, 1)
	assert.Equal(t, "Run tests", got[0].Label)
	assert.Equal(t, "npm test", got[0].Command)
}

func TestSuggest_StripsCodeFence(t *testing.T) {
	c := &fakeClient{response: "```json\n[{\"label\": \"a\", \"command\": \"b\"}]\n```"}
	b := NewBrain(c, DefaultOptions(), nil)
	got := b.Suggest(context.Background(), "out", "p", "shell", "/tmp")
	assert.Len(t, got, 1)
}

func TestSuggest_EmptyOnError(t *testing.T) {
	c := &fakeClient{err: errors.New("boom")}
	b := NewBrain(c, DefaultOptions(), nil)
	assert.Empty(t, b.Suggest(context.Background(), "out", "p", "shell", "/tmp"))
}

func TestSuggest_EmptyOnBadJSON(t *testing.T) {
	c := &fakeClient{response: "I think you should run the tests"}
	b := NewBrain(c, DefaultOptions(), nil)
	assert.Empty(t, b.Suggest(context.Background(), "out", "p", "shell", "/tmp"))
}

func TestSuggest_CapsAtThree(t *testing.T) {
	c := &fakeClient{response: `[{"label":"1","command":"a"},{"label":"2","command":"b"},{"label":"3","command":"c"},{"label":"4","command":"d"}]`}
	b := NewBrain(c, DefaultOptions(), nil)
	assert.Len(t, b.Suggest(context.Background(), "o", "p", "shell", "/tmp"), 3)
}

func TestParseNL(t *testing.T) {
	c := &fakeClient{response: `{"command": "kill", "session": "2", "confidence": 0.92}`}
	b := NewBrain(c, DefaultOptions(), nil)
	got := b.ParseNL(context.Background(), "kill session two", "[]", "")
	assert.Equal(t, "kill", got.Command)
	assert.Equal(t, "2", got.Session)
	assert.InDelta(t, 0.92, got.Confidence, 0.001)
}

func TestParseNL_UnknownOnError(t *testing.T) {
	c := &fakeClient{err: errors.New("boom")}
	b := NewBrain(c, DefaultOptions(), nil)
	got := b.ParseNL(context.Background(), "do something", "[]", "")
	assert.Equal(t, "unknown", got.Command)
	assert.Zero(t, got.Confidence)
}

func TestErrorHookInvoked(t *testing.T) {
	var kinds []string
	c := &fakeClient{err: errors.New("boom")}
	b := NewBrain(c, DefaultOptions(), func(kind string, err error) {
		kinds = append(kinds, kind)
	})
	b.Summarize(context.Background(), "x")
	b.Suggest(context.Background(), "x", "p", "shell", "/tmp")
	b.ParseNL(context.Background(), "x", "[]", "")
	assert.Equal(t, []string{"summarize", "suggest", "parse_nl"}, kinds)
}

func TestTruncateTailBoundsPromptSize(t *testing.T) {
	c := &fakeClient{response: "ok"}
	b := NewBrain(c, DefaultOptions(), nil)

	var sb strings.Builder
	for i := 0; i < 5000; i++ {
		fmt.Fprintf(&sb, "line %d with some filler words\n", i)
	}
	b.Summarize(context.Background(), sb.String())

	// The prompt must be far smaller than the raw input.
	assert.Less(t, len(c.prompts[0]), len(sb.String())/2)
	// And must keep the tail, not the head.
	assert.Contains(t, c.prompts[0], "line 4999")
	assert.NotContains(t, c.prompts[0], "line 10 ")
}
