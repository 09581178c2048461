// Package cli provides the kitvision command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kitvision/internal/cli/commands"
	"kitvision/internal/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

func skipsConfig(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "completion", "__complete", "version":
		return true
	}
	return false
}

func newLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewRootCmd creates the root command with every subcommand that needs no
// native libraries. Extra commands are added as given.
func NewRootCmd(extra ...*cobra.Command) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "kitvision",
		Short: "Prepare, train and run a football kit detector",
		Long: `kitvision covers the three steps of building a football kit detector:

  split   divide labeled images into train and val sets
  train   train a YOLO model and collect its outputs
  detect  run the model on a video file or camera

Settings come from built-in defaults, ./kitvision.yaml (or --config),
KITVISION_ environment variables and flags, in increasing priority.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipsConfig(cmd) {
				return nil
			}

			cfg, used, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			logger := newLogger(cmd.ErrOrStderr(), cfg.LogFormat, cfg.Verbose)
			if used != "" {
				logger.Debug("using config file", "path", used)
			}

			ctx := commands.WithConfig(cmd.Context(), cfg, used)
			ctx = commands.WithLogger(ctx, logger)
			cmd.SetContext(ctx)

			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./kitvision.yaml)")
	pf.BoolP("verbose", "v", false, "verbose output")
	pf.String("log-format", "", "log format (text|json)")
	config.BindFlag(pf, "verbose", "verbose")
	config.BindFlag(pf, "log-format", "log_format")

	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(Version, GitCommit))
	rootCmd.AddCommand(commands.NewSplitCommand())
	rootCmd.AddCommand(commands.NewTrainCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(extra...)

	return rootCmd
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute(extra ...*cobra.Command) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd(extra...)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
