package tmux

// Built-in detection patterns, grouped by priority tier. Order inside a group
// matters only for which pattern gets reported; order across groups is the
// classification priority itself.

// Tier 1: authorization requests from the assistant CLI. A permission prompt
// often also contains '?' and y/n triads, so this tier must be checked before
// the generic input-prompt tier, otherwise the auto-responder could answer
// "yes" to a tool authorization.
var permissionPromptPatterns = []string{
	`Claude wants to (?:run|edit|use|write|read|delete)`,
	`Do you want to allow Claude to use`,
	`Allow Claude to use`,
	`Allow\?\s*\(?[yna]`,
	`\(y\)es\s*/\s*\(n\)o`,
	`\[y/n(?:/a)?\]`,
	`Yes \(y\)\s*\|\s*No \(n\)`,
	`Do you want to proceed`,
	`Would you like to continue`,
	`Press Enter to continue`,
	`Continue\?\s*\[`,
}

// Tier 2: the program is waiting for free-form or menu input.
var inputPromptPatterns = []string{
	`(?:Choose|Select|Pick)\s+(?:one|an option|from)`,
	`^\s*\d+[\.\)]\s+\w+`,
	`\(\d+\)\s+\w+`,
	`\?\s*$`,
	`(?:Enter|Type|Provide|Input|Specify)\s+(?:a|the|your)`,
	`(?i)\(y(?:es)?/no?\)`,
	`>\s*$`,
	`❯\s*$`,
}

// Tier 3: upstream throttling.
var rateLimitPatterns = []string{
	`(?i)rate\s*limit(?:ed)?`,
	`(?i)usage\s*limit\s*(?:reached|exceeded|hit)`,
	`(?i)too\s*many\s*requests`,
	`(?i)(?:please\s+)?wait\s+(?:\d+\s*(?:second|minute|hour)|\w+\s+before)`,
	`(?i)try\s*again\s*(?:in|after)\s*\d+`,
	`(?i)429\s*(?:error)?`,
	`(?i)capacity\s*(?:limit|exceeded)`,
	`(?i)cooldown`,
	`(?i)quota\s*(?:exceeded|reached)`,
	`(?i)you(?:'ve| have)\s+(?:reached|hit|exceeded)\s+(?:your|the)\s+(?:usage|message|token)\s+limit`,
	`(?i)limit\s+will\s+reset`,
}

// Tier 4: crashes and failures.
var errorPatterns = []string{
	`(?i)(?:error|err!|fatal|panic|exception|traceback|segfault)`,
	`(?i)process\s+exited\s+with\s+(?:code|status)\s+[^0]`,
	`(?i)command\s+(?:failed|not found)`,
	`(?i)killed|terminated|aborted`,
	`SIGTERM|SIGKILL|SIGSEGV`,
	`npm\s+ERR!`,
	`(?i)unhandled\s+(?:promise\s+)?rejection`,
	`(?i)cannot\s+find\s+module`,
	`Traceback \(most recent call last\)`,
	`(?:ModuleNotFoundError|ImportError|SyntaxError|TypeError|ValueError)`,
	`(?i)connection\s+(?:lost|reset|refused|timed?\s*out)`,
	`(?i)authentication\s+(?:failed|error|expired)`,
	`(?i)api\s+(?:error|unavailable)`,
}

// Tier 5: success signals.
var completionPatterns = []string{
	`(?i)(?:task|job|build|test|deployment?)\s+(?:complete[d]?|finish(?:ed)?|done|success(?:ful)?)`,
	`(?i)all\s+(?:\d+\s+)?(?:tests?\s+)?pass(?:ed|ing)?`,
	`✓|✅|☑`,
	`(?i)successfully\s+(?:built|compiled|deployed|installed|created|updated)`,
	`(?i)compiled?\s+(?:successfully|with\s+\d+\s+warning)`,
	`(?i)build\s+succeeded`,
	`Done in \d+`,
	`\d+\s+passing`,
}

// destructiveKeywords disable autonomous replies when any of them appears in
// a prompt, case-insensitively. Presence alone is enough; context is not
// examined.
var destructiveKeywords = []string{
	"delete",
	"remove",
	"drop",
	"truncate",
	"destroy",
	"overwrite",
	"replace all",
	"reset",
	"wipe",
	"purge",
	"force push",
	"hard reset",
	"rm -rf",
	"uninstall",
	"migrate",
	"rollback",
	"production",
	"deploy",
}
