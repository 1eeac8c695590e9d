// Package config loads Conductor's two startup files: a secrets file with
// credentials and a TOML preferences file. Both are read exactly once at
// startup; changes take effect on restart.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Home returns the conductor state directory (~/.conductor).
func Home() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".conductor"
	}
	return filepath.Join(home, ".conductor")
}

// DBPath returns the sqlite database location.
func DBPath() string {
	return filepath.Join(Home(), "conductor.db")
}

// Secrets holds required credentials loaded from ~/.conductor/.env.
// Environment variables of the same name take precedence over the file.
type Secrets struct {
	TelegramBotToken string
	TelegramUserID   int64
	AnthropicAPIKey  string
	LogLevel         string
}

// LoadSecrets reads key=value lines from path, then applies env overrides.
func LoadSecrets(path string) (*Secrets, error) {
	values := map[string]string{}

	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, val, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			values[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(val), `"'`)
		}
		f.Close()
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("open secrets file: %w", err)
	}

	get := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return values[key]
	}

	s := &Secrets{
		TelegramBotToken: get("TELEGRAM_BOT_TOKEN"),
		AnthropicAPIKey:  get("ANTHROPIC_API_KEY"),
		LogLevel:         get("LOG_LEVEL"),
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if raw := get("TELEGRAM_USER_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_USER_ID must be numeric: %w", err)
		}
		s.TelegramUserID = id
	}
	return s, nil
}

// Validate returns the names of missing required secrets.
func (s *Secrets) Validate() []string {
	var missing []string
	if s.TelegramBotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if s.TelegramUserID == 0 {
		missing = append(missing, "TELEGRAM_USER_ID")
	}
	if s.AnthropicAPIKey == "" {
		missing = append(missing, "ANTHROPIC_API_KEY")
	}
	return missing
}

// Preferences is the user-facing TOML configuration.
type Preferences struct {
	Sessions      SessionSettings       `toml:"sessions"`
	Tokens        TokenSettings         `toml:"tokens"`
	Monitor       MonitorSettings       `toml:"monitor"`
	Notifications NotificationSettings  `toml:"notifications"`
	AutoResponder AutoResponderSettings `toml:"auto_responder"`
	AI            AISettings            `toml:"ai"`
	Security      SecuritySettings      `toml:"security"`
	Logging       LoggingSettings       `toml:"logging"`
}

// SessionSettings controls session creation defaults.
type SessionSettings struct {
	// MaxConcurrent caps non-exited sessions.
	MaxConcurrent int `toml:"max_concurrent"`

	// DefaultType is the session type when /new omits one.
	DefaultType string `toml:"default_type"`

	// DefaultDir is the working directory when /new omits one.
	DefaultDir string `toml:"default_dir"`

	// Aliases maps working directories to fixed session labels.
	Aliases map[string]string `toml:"aliases"`
}

// TokenSettings controls the usage estimator.
type TokenSettings struct {
	PlanTier    string `toml:"plan_tier"` // "pro", "max_5x", "max_20x"
	WarningPct  int    `toml:"warning_pct"`
	DangerPct   int    `toml:"danger_pct"`
	CriticalPct int    `toml:"critical_pct"`
	WindowHours int    `toml:"window_hours"`
}

// MonitorSettings controls the per-pane polling loops.
type MonitorSettings struct {
	PollIntervalMs           int `toml:"poll_interval_ms"`
	ActivePollIntervalMs     int `toml:"active_poll_interval_ms"`
	IdlePollIntervalMs       int `toml:"idle_poll_interval_ms"`
	OutputBufferMaxLines     int `toml:"output_buffer_max_lines"`
	CompletionIdleThresholdS int `toml:"completion_idle_threshold_s"`
}

// QuietHours suppresses low-urgency notifications inside a daily window.
type QuietHours struct {
	Enabled  bool   `toml:"enabled"`
	Start    string `toml:"start"` // "23:00"
	End      string `toml:"end"`   // "08:00"
	Timezone string `toml:"timezone"`
}

// SoundSettings toggles notification sounds per event kind.
type SoundSettings struct {
	InputRequired bool `toml:"input_required"`
	TokenWarning  bool `toml:"token_warning"`
	Error         bool `toml:"error"`
	Completed     bool `toml:"completed"`
}

// NotificationSettings controls batching, confirmations, and quiet hours.
type NotificationSettings struct {
	BatchWindowS         int           `toml:"batch_window_s"`
	ConfirmationTimeoutS int           `toml:"confirmation_timeout_s"`
	QuietHours           QuietHours    `toml:"quiet_hours"`
	Sounds               SoundSettings `toml:"sounds"`
}

// DefaultRule is a seed auto-response rule.
type DefaultRule struct {
	Pattern   string `toml:"pattern"`
	Response  string `toml:"response"`
	MatchType string `toml:"match_type"`
}

// AutoResponderSettings controls autonomous replies.
type AutoResponderSettings struct {
	Enabled      bool          `toml:"enabled"`
	DefaultRules []DefaultRule `toml:"default_rules"`
}

// AISettings controls the summarization/suggestion layer.
type AISettings struct {
	Model               string `toml:"model"`
	SummaryMaxTokens    int    `toml:"summary_max_tokens"`
	SuggestionMaxTokens int    `toml:"suggestion_max_tokens"`
	NLPMaxTokens        int    `toml:"nlp_max_tokens"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	FallbackLines       int    `toml:"fallback_lines"`
}

// SecuritySettings controls redaction and command logging.
type SecuritySettings struct {
	RedactPatterns     []string `toml:"redact_patterns"`
	ConfirmDestructive bool     `toml:"confirm_destructive"`
	LogAllCommands     bool     `toml:"log_all_commands"`
}

// LoggingSettings controls the rotating daemon log.
type LoggingSettings struct {
	File          string `toml:"file"`
	MaxSizeMB     int    `toml:"max_size_mb"`
	BackupCount   int    `toml:"backup_count"`
	ConsoleOutput bool   `toml:"console_output"`
}

// DefaultPreferences returns the built-in defaults applied before the TOML
// file is layered on top.
func DefaultPreferences() Preferences {
	return Preferences{
		Sessions: SessionSettings{
			MaxConcurrent: 5,
			DefaultType:   "claude-code",
			DefaultDir:    "~/projects",
		},
		Tokens: TokenSettings{
			PlanTier:    "pro",
			WarningPct:  80,
			DangerPct:   90,
			CriticalPct: 95,
			WindowHours: 5,
		},
		Monitor: MonitorSettings{
			PollIntervalMs:           500,
			ActivePollIntervalMs:     300,
			IdlePollIntervalMs:       2000,
			OutputBufferMaxLines:     5000,
			CompletionIdleThresholdS: 30,
		},
		Notifications: NotificationSettings{
			BatchWindowS:         5,
			ConfirmationTimeoutS: 30,
			Sounds: SoundSettings{
				InputRequired: true,
				TokenWarning:  true,
				Error:         true,
			},
		},
		AutoResponder: AutoResponderSettings{
			Enabled: true,
			DefaultRules: []DefaultRule{
				{Pattern: "Continue? (Y/n)", Response: "y", MatchType: "contains"},
				{Pattern: "Press Enter", Response: "", MatchType: "contains"},
			},
		},
		AI: AISettings{
			Model:               "claude-haiku-4-5-20251001",
			SummaryMaxTokens:    200,
			SuggestionMaxTokens: 300,
			NLPMaxTokens:        150,
			TimeoutSeconds:      10,
			FallbackLines:       20,
		},
		Security: SecuritySettings{
			ConfirmDestructive: true,
			LogAllCommands:     true,
		},
		Logging: LoggingSettings{
			File:          "~/.conductor/conductor.log",
			MaxSizeMB:     50,
			BackupCount:   3,
			ConsoleOutput: true,
		},
	}
}

// LoadPreferences reads the TOML preferences file over the defaults.
// A missing file yields pure defaults.
func LoadPreferences(path string) (Preferences, error) {
	prefs := DefaultPreferences()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return prefs, nil
	}
	if err != nil {
		return prefs, fmt.Errorf("read preferences: %w", err)
	}
	if err := toml.Unmarshal(data, &prefs); err != nil {
		return prefs, fmt.Errorf("parse preferences: %w", err)
	}
	return prefs, nil
}
