package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/sommelier/kernel"
)

// Version is set at build time.
var Version = "dev"

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "sommelier",
	Short: "Multi-agent wine recommendation service",
	Long: `sommelier answers wine recommendation requests with a pipeline of agents
on an in-process message bus. Failed stages are kept in a dead-letter queue
that can be inspected and replayed.

Configuration is read from --config (JSON or YAML), then from SOMMELIER_*
environment variables and a .env file in the working directory.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a JSON or YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", logLevel)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func loadConfig() (*kernel.Config, error) {
	cfg, err := kernel.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func buildKernel(cfg *kernel.Config, logger *slog.Logger) (*kernel.Kernel, error) {
	k, err := kernel.New(cfg, kernel.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("creating kernel: %w", err)
	}
	return k, nil
}

// newKernel loads configuration and wires a kernel. The caller closes it.
func newKernel() (*kernel.Kernel, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return buildKernel(cfg, logger)
}
