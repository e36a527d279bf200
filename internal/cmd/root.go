// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dotandev/stackopt/internal/config"
	"github.com/dotandev/stackopt/internal/logger"
	"github.com/dotandev/stackopt/internal/shutdown"
	"github.com/dotandev/stackopt/internal/telemetry"
)

// Global flag variables
var (
	ConfigFlag   string
	LogLevelFlag string
	NoColorFlag  bool
)

// appConfig is the configuration loaded before any command runs.
var appConfig = config.DefaultConfig()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stackopt",
	Short: "Optimizer for stack-VM contract bytecode",
	Long: `stackopt analyzes compiled contract scripts and removes code no entry point
can reach, then simplifies the control flow that remains.

Key features:
  - Branch coverage analysis through nested try/catch/finally regions
  - Dead code elimination, jump simplification and dup/drop folding
  - Jump compression to short encodings where displacements allow
  - Entry points and debug info remapped to the optimized layout
  - Parallel batch optimization and an optional report history

Examples:
  stackopt optimize token.nef.cbor -o token.opt.cbor   Optimize an artifact
  stackopt optimize --hex 10454011 --entry main@0      Optimize raw bytecode
  stackopt analyze token.nef.cbor                      Show instruction coverage
  stackopt blocks --dot token.nef.cbor | dot -Tsvg     Render the block graph
  stackopt batch build/*.cbor --out-dir opt/           Optimize many contracts
  stackopt history --name '^token'                     Search past runs

Settings are read from .stackopt.toml, ~/.stackopt.toml or
/etc/stackopt/config.toml, and STACKOPT_* environment variables.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if ConfigFlag != "" {
			if err := os.Setenv(config.EnvConfigPath, ConfigFlag); err != nil {
				return err
			}
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if LogLevelFlag != "" {
			cfg.Log.Level = LogLevelFlag
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		appConfig = cfg

		logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
		if cfg.Log.JSON {
			logger.SetOutput(os.Stderr, true)
		}
		if NoColorFlag {
			color.NoColor = true
		}
		if cfg.Source != "" {
			logger.Logger.Debug("Configuration loaded", "path", cfg.Source, "config", cfg.String())
		}

		return initTelemetry(cmd.Context(), cfg)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func initTelemetry(ctx context.Context, cfg *config.Config) error {
	if !cfg.Telemetry.Enabled {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cleanup, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        true,
		ExporterURL:    cfg.Telemetry.ExporterURL,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	registerShutdownHook("telemetry-flush", func(context.Context) error {
		cleanup()
		return nil
	})
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	coordinator := shutdown.NewCoordinator()
	setShutdownCoordinator(coordinator)
	defer clearShutdownCoordinator()

	return executeWithSignals(ctx, cancel, sigCh, coordinator, func(execCtx context.Context) error {
		return rootCmd.ExecuteContext(execCtx)
	})
}

// executeWithSignals runs exec until it returns or a signal arrives. The
// shutdown hooks run in both cases; an interrupted run returns
// ErrInterrupted.
func executeWithSignals(ctx context.Context, cancel context.CancelFunc, sigCh <-chan os.Signal, coordinator *shutdown.Coordinator, exec func(context.Context) error) error {
	done := make(chan error, 1)
	go func() {
		done <- exec(ctx)
	}()

	select {
	case err := <-done:
		runShutdownHooksWithTimeout(coordinator, shutdownTimeout)
		return err
	case sig := <-sigCh:
		logger.Logger.Info("Received signal, shutting down", "signal", sig.String())
		cancel()
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			logger.Logger.Warn("Command did not stop in time")
		}
		runShutdownHooksWithTimeout(coordinator, shutdownTimeout)
		return fmt.Errorf("%w: %s", ErrInterrupted, sig)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&ConfigFlag,
		"config",
		"",
		"Path to a TOML config file (overrides the search path)",
	)

	rootCmd.PersistentFlags().StringVar(
		&LogLevelFlag,
		"log-level",
		"",
		"Log level: debug, info, warn or error",
	)

	rootCmd.PersistentFlags().BoolVar(
		&NoColorFlag,
		"no-color",
		false,
		"Disable colored output",
	)

	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Optimization Commands:"},
		&cobra.Group{ID: "utility", Title: "Utility Commands:"},
	)
}
