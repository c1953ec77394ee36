package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aura/internal/api"
	"aura/internal/auth"
	"aura/internal/chat"
	"aura/internal/config"
	"aura/internal/logging"
	"aura/internal/session"
)

var (
	// Global flags
	configPath string
	apiURL     string
	verbose    bool
	ephemeral  bool

	cfg        *config.Config
	logger     *zap.Logger
	store      session.Store
	closeStore func() error
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "aura",
	Short: "AURA - chat with the AURA assistant from your terminal",
	Long: `AURA is a terminal client for the AURA assistant.

Guests can chat right away. Sign in with 'aura login' to keep your
conversation history across sessions.

Run without arguments to start the interactive chat.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(isInteractive(cmd))
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown()
	},
	RunE: runChat,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.aura/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Backend base URL (overrides config and AURA_API_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "Keep the session in memory only")

	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	resetCmd.Flags().StringVar(&resetEmail, "email", "", "Account email")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(resetCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration, builds the logger and opens the session store.
// Interactive mode only logs to a file so nothing is drawn over the screen.
func setup(interactive bool) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	var err error
	cfg, err = config.Load(path)
	if err != nil {
		return err
	}
	if apiURL != "" {
		cfg.Backend.BaseURL = apiURL
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	if interactive && cfg.Logging.File == "" {
		logger = zap.NewNop()
	} else {
		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
	}
	logging.For(logger, cfg.Logging, logging.CategoryBoot).Debug("configuration loaded",
		zap.String("path", path),
		zap.String("api_url", cfg.Backend.BaseURL),
		zap.String("session_backend", cfg.Session.Backend),
		zap.Bool("ephemeral", ephemeral))

	sessionLog := session.WithLogger(categoryLogger(logging.CategorySession))
	if ephemeral {
		store, closeStore = session.NewMemoryStore(sessionLog), func() error { return nil }
		return nil
	}
	store, closeStore, err = session.Open(cfg.Session, sessionLog)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	return nil
}

func isInteractive(cmd *cobra.Command) bool {
	return !cmd.HasParent() || cmd.Name() == "chat"
}

func teardown() {
	if closeStore != nil {
		if err := closeStore(); err != nil && logger != nil {
			logger.Warn("failed to close session store", zap.Error(err))
		}
		closeStore = nil
	}
	if logger != nil {
		_ = logger.Sync()
	}
}

func categoryLogger(c logging.Category) *zap.Logger {
	if cfg == nil {
		return logging.OrNop(logger)
	}
	return logging.For(logger, cfg.Logging, c)
}

func newClient() *api.Client {
	return api.NewClient(cfg.Backend.BaseURL,
		api.WithTimeout(cfg.GetRequestTimeout()),
		api.WithLogger(categoryLogger(logging.CategoryAPI)),
	)
}

func newGateway() *auth.Gateway {
	return auth.NewGateway(newClient(), categoryLogger(logging.CategoryAuth))
}

func newChat() *chat.Session {
	return chat.New(store, chat.NewHTTPTransport(newClient()),
		chat.WithLogger(categoryLogger(logging.CategoryChat)),
		chat.WithGreeting(cfg.Chat.Greeting),
		chat.WithApology(cfg.Chat.Apology),
		chat.WithRequestTimeout(cfg.GetRequestTimeout()),
	)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
