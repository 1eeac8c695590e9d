package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DaveXRouz/conductor/internal/ai"
	"github.com/DaveXRouz/conductor/internal/autoresponder"
	"github.com/DaveXRouz/conductor/internal/config"
	"github.com/DaveXRouz/conductor/internal/confirm"
	"github.com/DaveXRouz/conductor/internal/daemon"
	"github.com/DaveXRouz/conductor/internal/logging"
	"github.com/DaveXRouz/conductor/internal/notify"
	"github.com/DaveXRouz/conductor/internal/redact"
	"github.com/DaveXRouz/conductor/internal/session"
	"github.com/DaveXRouz/conductor/internal/store"
	"github.com/DaveXRouz/conductor/internal/telegram"
	"github.com/DaveXRouz/conductor/internal/tmux"
	"github.com/DaveXRouz/conductor/internal/tokens"
)

var version = "dev"

// Exit codes: 0 normal shutdown, 64 configuration invalid, 70 fatal internal.
const (
	exitConfig = 64
	exitFatal  = 70
)

func main() {
	root := &cobra.Command{
		Use:          "conductor",
		Short:        "Bridge tmux sessions to Telegram",
		SilenceUsage: true,
	}

	var configPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	serve.Flags().StringVar(&configPath, "config", "", "preferences file (default ~/.conductor/config.toml)")

	root.AddCommand(serve)
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("conductor", version)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(exitFatal)
	}
}

func runServe(configPath string) error {
	home := config.Home()
	if err := os.MkdirAll(home, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", home, err)
		os.Exit(exitFatal)
	}

	secrets, err := config.LoadSecrets(filepath.Join(home, ".env"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid secrets:", err)
		os.Exit(exitConfig)
	}
	if missing := secrets.Validate(); len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "missing required config: %s\nset them in %s\n",
			strings.Join(missing, ", "), filepath.Join(home, ".env"))
		os.Exit(exitConfig)
	}
	if configPath == "" {
		configPath = filepath.Join(home, "config.toml")
	}
	prefs, err := config.LoadPreferences(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid preferences:", err)
		os.Exit(exitConfig)
	}

	logging.Init(logging.Config{
		File:      prefs.Logging.File,
		Level:     secrets.LogLevel,
		MaxSizeMB: prefs.Logging.MaxSizeMB,
		MaxBackups: prefs.Logging.BackupCount,
		Console:   prefs.Logging.ConsoleOutput,
	})
	defer logging.Shutdown()
	log := logging.ForComponent(logging.CompDaemon)
	log.Info("conductor starting", "version", version)

	st, err := store.Open(config.DBPath())
	if err != nil {
		log.Error("open store failed", "error", err)
		os.Exit(exitFatal)
	}

	api, err := tgbotapi.NewBotAPI(secrets.TelegramBotToken)
	if err != nil {
		st.Close()
		fmt.Fprintln(os.Stderr, "telegram authentication failed:", err)
		os.Exit(exitConfig)
	}

	quiet, err := notify.ParseQuietWindow(
		prefs.Notifications.QuietHours.Enabled,
		prefs.Notifications.QuietHours.Start,
		prefs.Notifications.QuietHours.End,
		prefs.Notifications.QuietHours.Timezone,
	)
	if err != nil {
		st.Close()
		fmt.Fprintln(os.Stderr, "invalid quiet hours:", err)
		os.Exit(exitConfig)
	}

	transport := telegram.NewTransport(api, secrets.TelegramUserID)
	notifier := notify.NewNotifier(transport,
		time.Duration(prefs.Notifications.BatchWindowS)*time.Second, quiet)
	notifier.SetSounds(map[notify.Kind]bool{
		notify.KindInputRequired: prefs.Notifications.Sounds.InputRequired,
		notify.KindTokenWarning:  prefs.Notifications.Sounds.TokenWarning,
		notify.KindError:         prefs.Notifications.Sounds.Error,
		notify.KindCompleted:     prefs.Notifications.Sounds.Completed,
	})

	if err := redact.AddCustomPatterns(prefs.Security.RedactPatterns); err != nil {
		st.Close()
		fmt.Fprintln(os.Stderr, "invalid redact pattern:", err)
		os.Exit(exitConfig)
	}

	server := tmux.NewServer()
	mgr := session.NewManager(server, st, prefs.Sessions)
	mgr.SetCommandLogging(prefs.Security.LogAllCommands)
	detector := tmux.NewDetector()
	responder := autoresponder.NewResponder(detector, prefs.AutoResponder.Enabled)
	estimator := tokens.NewEstimator(prefs.Tokens.PlanTier, prefs.Tokens.WindowHours, tokens.Thresholds{
		Warning:  prefs.Tokens.WarningPct,
		Danger:   prefs.Tokens.DangerPct,
		Critical: prefs.Tokens.CriticalPct,
	})
	confirmMgr := confirm.NewManager(
		time.Duration(prefs.Notifications.ConfirmationTimeoutS) * time.Second)

	escalator := daemon.NewEscalator(notifier)
	brain := ai.NewBrain(
		ai.NewAnthropicClient(secrets.AnthropicAPIKey, prefs.AI.Model),
		ai.Options{
			Timeout:             time.Duration(prefs.AI.TimeoutSeconds) * time.Second,
			SummaryMaxTokens:    prefs.AI.SummaryMaxTokens,
			SuggestionMaxTokens: prefs.AI.SuggestionMaxTokens,
			NLPMaxTokens:        prefs.AI.NLPMaxTokens,
			FallbackLines:       prefs.AI.FallbackLines,
		},
		func(kind string, err error) {
			escalator.Record(context.Background(), "ai:"+kind, err)
		},
	)
	d := daemon.New(st, mgr, notifier, brain, responder, estimator, confirmMgr, detector, prefs.Monitor, escalator)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Bootstrap(ctx, server, prefs.AutoResponder.DefaultRules); err != nil {
		st.Close()
		log.Error("bootstrap failed", "error", err)
		os.Exit(exitFatal)
	}

	bot := telegram.NewBot(api, d, secrets.TelegramUserID, prefs)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(gctx) })
	g.Go(func() error { bot.Run(gctx); return nil })

	log.Info("conductor online, polling for updates")
	err = g.Wait()

	// Store closes last, after every loop has drained.
	if cerr := st.Close(); cerr != nil {
		log.Warn("store close failed", "error", cerr)
	}
	if err != nil && ctx.Err() == nil {
		log.Error("fatal error", "error", err)
		os.Exit(exitFatal)
	}
	log.Info("conductor stopped")
	return nil
}
