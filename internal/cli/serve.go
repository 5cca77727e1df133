package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/uagent/toolcore/internal/config"
	"github.com/uagent/toolcore/internal/daemon"
	"github.com/uagent/toolcore/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tool core in the foreground",
	Long: `Run the tool core service in the foreground: load and validate the
configuration, register providers and tools, and serve the gateway until
interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log, cfgFile)
	if err != nil {
		return fmt.Errorf("failed to initialize tool core: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start tool core: %w", err)
	}

	// Block until interrupted.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	return d.Stop()
}
