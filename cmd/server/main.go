package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"certregistry/internal/platform/config"
	"certregistry/internal/platform/logger"
)

const programName = "certregistry"

func slogPrintf(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...),
		"component", programName,
	)
}

var globalFlags = struct {
	debug      bool
	configFile string
	backend    string
}{}

// commonRun builds the process logger and sizes GOMAXPROCS to the container
// quota.
func commonRun(cfg *config.Config) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if globalFlags.debug {
		level = "debug"
	}
	log, err := logger.New(os.Stdout, level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)
	if _, err := maxprocs.Set(maxprocs.Logger(slogPrintf)); err != nil {
		return nil, fmt.Errorf("set GOMAXPROCS: %w", err)
	}
	return log, nil
}

func configFrom(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return nil, fmt.Errorf("no config found in context")
	}
	return cfg, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Certificate registry keyed by a deterministic credential hash",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&globalFlags.configFile, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().
		StringVarP(&globalFlags.backend, "backend", "b", "", "store backend override (memory, postgres, redis, sqlite)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(globalFlags.configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if globalFlags.backend != "" {
			cfg.Store.Backend = globalFlags.backend
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
		}
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	}

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(deriveCommand())
	rootCmd.AddCommand(tokenCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
