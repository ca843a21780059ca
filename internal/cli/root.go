// Package cli is the mindcanvas command line: the server and a local client
// over the same stores.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/set-night/mindcanvas/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

// options are the persistent flags shared by every command.
type options struct {
	databaseURL string
	logLevel    string
	verbose     bool
}

// NewRootCmd builds the command tree. Config comes from the environment and
// is overridden by flags.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	var cfg *config.Config

	root := &cobra.Command{
		Use:   "mindcanvas",
		Short: "AI chat workspace with documents, artifacts and resumable streams",
		Long: `mindcanvas keeps chats, documents and settings per identity and talks to
an OpenAI-compatible provider.

Quick Start:
  mindcanvas serve                       # HTTP API and Telegram bot
  mindcanvas login did:nuwa:alice        # pick the local identity
  mindcanvas chat "write a haiku"        # stream an answer in the terminal
  mindcanvas sessions                    # list chats`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load()
			if err != nil {
				return err
			}
			if opts.databaseURL != "" {
				c.DatabaseURL = opts.databaseURL
			}
			if opts.logLevel != "" {
				c.LogLevel = opts.logLevel
			}
			if opts.verbose {
				c.LogLevel = "debug"
			}
			cfg = c
			setupLogging(cmd.ErrOrStderr(), cfg.SlogLevel())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.databaseURL, "database", "", "Storage URL (postgres://... or sqlite://path), overrides DATABASE_URL")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	getCfg := func() *config.Config { return cfg }
	root.AddCommand(
		newServeCmd(getCfg),
		newMigrateCmd(getCfg),
		newLoginCmd(getCfg),
		newLogoutCmd(getCfg),
		newWhoamiCmd(getCfg),
		newChatCmd(getCfg),
		newSessionsCmd(getCfg),
		newDocumentsCmd(getCfg),
		newModelsCmd(getCfg),
		newClearCmd(getCfg),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging installs a JSON slog handler as the default logger.
func setupLogging(w io.Writer, level slog.Level) {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}
