package tmux

import (
	"regexp"
	"strings"
)

// Escape sequence forms stripped from captured pane content, tried in order:
// OSC (terminated by BEL or ST), CSI, then single-character ESC sequences.
// OSC and CSI must come first in the alternation because their introducers
// (']' and '[') also fall inside the single-character range.
var ansiPattern = regexp.MustCompile(`\x1b(?:\][^\x07\x1b]*(?:\x07|\x1b\\)?|\[[0-?]*[ -/]*[@-~]|[@-Z\\-_])`)

var ctrlArtifacts = strings.NewReplacer("\r", "", "\b", "")

// StripANSI removes terminal escape sequences plus bare carriage-return and
// backspace artifacts from captured content. Idempotent.
func StripANSI(text string) string {
	if !strings.ContainsAny(text, "\x1b\r\b") {
		return text
	}
	return ctrlArtifacts.Replace(ansiPattern.ReplaceAllString(text, ""))
}
