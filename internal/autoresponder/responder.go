// Package autoresponder answers a narrow class of safe prompts without user
// involvement. Three hard guards run before any rule is consulted: permission
// prompts are never answered, destructive keywords block unconditionally, and
// a global pause switch turns the whole feature off.
package autoresponder

import (
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/DaveXRouz/conductor/internal/logging"
	"github.com/DaveXRouz/conductor/internal/store"
	"github.com/DaveXRouz/conductor/internal/tmux"
)

// Decision is the outcome of matching a prompt against the rule set.
type Decision struct {
	Respond     bool
	Response    string
	RuleID      int64
	BlockReason string
}

// Responder evaluates prompts against enabled rules.
type Responder struct {
	detector *tmux.Detector
	paused   atomic.Bool
	log      *slog.Logger
}

// NewResponder creates a responder sharing the given detector. When enabled
// is false the responder starts paused.
func NewResponder(detector *tmux.Detector, enabled bool) *Responder {
	r := &Responder{
		detector: detector,
		log:      logging.ForComponent(logging.CompAuto),
	}
	r.paused.Store(!enabled)
	return r
}

// SetPaused flips the global pause switch.
func (r *Responder) SetPaused(paused bool) {
	r.paused.Store(paused)
}

// Paused reports the global pause switch.
func (r *Responder) Paused() bool {
	return r.paused.Load()
}

// Decide checks whether text warrants an autonomous reply. Guards run in a
// fixed order and each is a hard block; only then are rules tried in id
// order, first match winning.
func (r *Responder) Decide(text string, rules []*store.AutoRule) Decision {
	if res := r.detector.Classify(text); res.Type == tmux.DetectPermissionPrompt {
		return Decision{BlockReason: "permission prompt requires manual approval"}
	}
	if tmux.HasDestructiveKeyword(text) {
		return Decision{BlockReason: "destructive keyword detected"}
	}
	if r.paused.Load() {
		return Decision{BlockReason: "auto-responder paused"}
	}

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if r.matches(text, rule) {
			return Decision{Respond: true, Response: rule.Response, RuleID: rule.ID}
		}
	}
	return Decision{BlockReason: "no rule"}
}

func (r *Responder) matches(text string, rule *store.AutoRule) bool {
	switch rule.MatchType {
	case store.MatchExact:
		return strings.TrimSpace(text) == strings.TrimSpace(rule.Pattern)
	case store.MatchRegex:
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			// Insertion validates patterns, so this only happens for rows
			// written by older versions or by hand.
			r.log.Warn("invalid regex in rule", "rule_id", rule.ID, "pattern", rule.Pattern)
			return false
		}
		return re.MatchString(text)
	default: // contains
		return strings.Contains(strings.ToLower(text), strings.ToLower(rule.Pattern))
	}
}
