// Package redact scrubs credentials from text before it leaves the host.
// Every outbound notification passes through Redact exactly once; the
// function is idempotent so double application is harmless.
package redact

import "regexp"

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Patterns are applied in order. The Anthropic-specific form must precede the
// generic sk- form or the kind label would be wrong.
var rules = []rule{
	{regexp.MustCompile(`sk-ant-api\S+`), "[REDACTED:ANTHROPIC_KEY]"},
	{regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`), "[REDACTED:API_KEY]"},
	{regexp.MustCompile(`key-[a-zA-Z0-9]{20,}`), "[REDACTED:API_KEY]"},
	{regexp.MustCompile(`ghp_[a-zA-Z0-9]{36}`), "[REDACTED:GITHUB_TOKEN]"},
	{regexp.MustCompile(`gho_[a-zA-Z0-9]{36}`), "[REDACTED:GITHUB_TOKEN]"},
	{regexp.MustCompile(`npm_[a-zA-Z0-9]{36}`), "[REDACTED:NPM_TOKEN]"},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "[REDACTED:AWS_KEY]"},
	{regexp.MustCompile(`xox[bpoas]-[a-zA-Z0-9\-]+`), "[REDACTED:SLACK_TOKEN]"},
	{regexp.MustCompile(`-----BEGIN [A-Z ]+KEY-----`), "[REDACTED:PRIVATE_KEY]"},
	{regexp.MustCompile(`(?im)^(Authorization):\s*\S.*$`), "${1}: [REDACTED]"},
	{regexp.MustCompile(`(?i)(password|secret|token|api_key)\s*=\s*\S+`), "${1}=[REDACTED]"},
	{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`), "Bearer [REDACTED]"},
}

// Redact replaces credential-shaped substrings with fixed placeholders.
func Redact(text string) string {
	for _, r := range rules {
		text = r.pattern.ReplaceAllString(text, r.replacement)
	}
	return text
}

// AddCustomPatterns appends user-configured patterns from the security
// preferences. Call once at startup, before any sends. Returns the first
// compile error; earlier valid patterns stay registered.
func AddCustomPatterns(patterns []string) error {
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return err
		}
		rules = append(rules, rule{re, "[REDACTED:CUSTOM]"})
	}
	return nil
}
