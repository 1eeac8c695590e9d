package tmux

import (
	"strings"
	"testing"
)

func TestClassify_PermissionPrompt(t *testing.T) {
	d := NewDetector()
	cases := []string{
		"Claude wants to run: npm install",
		"Do you want to allow Claude to use Bash?",
		"Allow? (y/n/a)",
		"Do you want to proceed with this change?",
	}
	for _, text := range cases {
		res := d.Classify(text)
		if res.Type != DetectPermissionPrompt {
			t.Errorf("%q classified as %s", text, res.Type)
		}
	}
}

func TestClassify_PermissionBeatsInputPrompt(t *testing.T) {
	// Contains both a '?' (input tier) and a y/n triad, but the
	// authorization phrasing must win.
	d := NewDetector()
	text := "Claude wants to run:\n  rm -rf node_modules\nAllow? (y/n/a)\n"
	res := d.Classify(text)
	if res.Type != DetectPermissionPrompt {
		t.Fatalf("expected permission_prompt, got %s (pattern %q)", res.Type, res.Pattern)
	}
}

func TestClassify_InputPrompt(t *testing.T) {
	d := NewDetector()
	cases := []string{
		"Choose one of the following:",
		"1. First option\n2. Second option",
		"What is your name?",
		"Enter a directory path:",
		"Continue? (Y/n)",
		"Delete all records? (y/n)",
		"> ",
	}
	for _, text := range cases {
		res := d.Classify(text)
		if res.Type != DetectInputPrompt {
			t.Errorf("%q classified as %s", text, res.Type)
		}
	}
}

func TestClassify_RateLimit(t *testing.T) {
	d := NewDetector()
	cases := []string{
		"Error 429: Too Many Requests",
		"You have reached your usage limit",
		"rate limited, try again in 60 seconds",
		"Your limit will reset at 3pm",
	}
	for _, text := range cases {
		res := d.Classify(text)
		// "Error 429" contains an error marker too; rate limit outranks it.
		if res.Type != DetectRateLimit {
			t.Errorf("%q classified as %s", text, res.Type)
		}
	}
}

func TestClassify_Error(t *testing.T) {
	d := NewDetector()
	cases := []string{
		"npm ERR! missing script: build",
		"Traceback (most recent call last):",
		"process exited with code 1",
		"fatal: not a git repository",
		"connection refused",
	}
	for _, text := range cases {
		res := d.Classify(text)
		if res.Type != DetectError {
			t.Errorf("%q classified as %s", text, res.Type)
		}
	}
}

func TestClassify_Completion(t *testing.T) {
	d := NewDetector()
	cases := []string{
		"Build succeeded",
		"all 42 tests passed",
		"✓ compiled successfully",
		"Done in 3.2s",
		"12 passing",
	}
	for _, text := range cases {
		res := d.Classify(text)
		if res.Type != DetectCompletion {
			t.Errorf("%q classified as %s", text, res.Type)
		}
	}
}

func TestClassify_None(t *testing.T) {
	d := NewDetector()
	res := d.Classify("just some ordinary build output scrolling by")
	if res.Type != DetectNone {
		t.Errorf("expected none, got %s (matched %q)", res.Type, res.MatchedText)
	}
}

func TestClassify_MatchedTextPopulated(t *testing.T) {
	d := NewDetector()
	res := d.Classify("some output\nBuild succeeded\nmore output")
	if res.MatchedText == "" || res.Pattern == "" {
		t.Errorf("match metadata missing: %+v", res)
	}
	if !strings.Contains(res.MatchedText, "Build succeeded") {
		t.Errorf("matched text %q", res.MatchedText)
	}
}

func TestHasDestructiveKeyword(t *testing.T) {
	destructive := []string{
		"Delete all records? (y/n)",
		"run rm -rf /tmp/build",
		"FORCE PUSH to main?",
		"deploy to production",
		"rollback the migration",
	}
	for _, text := range destructive {
		if !HasDestructiveKeyword(text) {
			t.Errorf("%q not flagged as destructive", text)
		}
	}

	safe := []string{
		"Continue? (Y/n)",
		"Run the test suite?",
		"open the file in the editor",
	}
	for _, text := range safe {
		if HasDestructiveKeyword(text) {
			t.Errorf("%q wrongly flagged as destructive", text)
		}
	}
}

func TestPaneCaptureWithFakeRunner(t *testing.T) {
	var gotArgs []string
	run := func(args ...string) (string, error) {
		gotArgs = args
		return "line1\nline2\n", nil
	}
	p := &Pane{Session: "conductor-1", ID: "%5", run: run}

	lines, err := p.CaptureRecent(100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 2 || lines[0] != "line1" {
		t.Errorf("got %v", lines)
	}
	if gotArgs[0] != "capture-pane" {
		t.Errorf("wrong command: %v", gotArgs)
	}
}
