package tmux

import (
	"regexp"
	"strings"
)

// DetectionType is the event category assigned to a block of pane output.
type DetectionType string

const (
	DetectPermissionPrompt DetectionType = "permission_prompt"
	DetectInputPrompt      DetectionType = "input_prompt"
	DetectRateLimit        DetectionType = "rate_limit"
	DetectError            DetectionType = "error"
	DetectCompletion       DetectionType = "completion"
	DetectNone             DetectionType = "none"
)

// DetectionResult describes the first pattern tier that matched.
type DetectionResult struct {
	Type        DetectionType
	MatchedText string
	Pattern     string
	Confidence  float64
}

type patternGroup struct {
	detectType DetectionType
	regexps    []*regexp.Regexp
}

func compileGroup(t DetectionType, patterns []string) patternGroup {
	g := patternGroup{detectType: t}
	for _, p := range patterns {
		g.regexps = append(g.regexps, regexp.MustCompile(`(?m)`+p))
	}
	return g
}

// Detector classifies terminal output against the built-in pattern tiers.
// It is pure and safe for concurrent use; construct one and share it.
type Detector struct {
	groups []patternGroup
}

// NewDetector compiles the pattern tables once.
func NewDetector() *Detector {
	return &Detector{
		groups: []patternGroup{
			compileGroup(DetectPermissionPrompt, permissionPromptPatterns),
			compileGroup(DetectInputPrompt, inputPromptPatterns),
			compileGroup(DetectRateLimit, rateLimitPatterns),
			compileGroup(DetectError, errorPatterns),
			compileGroup(DetectCompletion, completionPatterns),
		},
	}
}

// Classify tests text against the five tiers in priority order
// (permission > input > rate limit > error > completion) and returns on the
// first match. Returns DetectNone if nothing matched.
func (d *Detector) Classify(text string) DetectionResult {
	for _, g := range d.groups {
		for _, re := range g.regexps {
			if loc := re.FindStringIndex(text); loc != nil {
				return DetectionResult{
					Type:        g.detectType,
					MatchedText: text[loc[0]:loc[1]],
					Pattern:     re.String(),
					Confidence:  1.0,
				}
			}
		}
	}
	return DetectionResult{Type: DetectNone, Confidence: 1.0}
}

// HasDestructiveKeyword reports whether any reserved destructive token
// appears in text, case-insensitively. This is a hard safety gate for the
// auto-responder; it never consults the rule set.
func HasDestructiveKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range destructiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
