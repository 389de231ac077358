// Package main implements the librarian CLI: a single binary exposing
// bootstrap, reindex, query, status, doctor, benchmark, uninstall,
// provider, export, and import over the Librarian's core packages.
//
// This file is the entry point and command registration hub, following
// the teacher's convention of splitting command implementations across
// cmd_*.go-style files while keeping the root command, global flags, and
// init() here.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/librarian-dev/librarian/internal/errs"
	"github.com/librarian-dev/librarian/internal/logging"
)

var (
	// Global flags, per spec.md §6.
	workspace    string
	jsonOutput   bool
	noColor      bool
	quiet        bool
	assumeYes    bool
	offline      bool
	noTelemetry  bool
	debugErrors  bool

	// logger is the CLI's own operator-facing structured logger, kept
	// distinct from internal/logging's file-categorized logs -- the core
	// logs to .librarian/logs/*.log per category, the CLI logs to stderr.
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "librarian",
	Short: "Librarian - a local code-knowledge engine",
	Long: `librarian indexes a workspace's source into symbols, edges, and
embeddings, answers queries with token-budgeted, citation-bearing context
packs, and keeps an append-only evidence ledger of what it has observed.

Run a subcommand; there is no default interactive mode.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if debugErrors {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		if noColor || jsonOutput {
			cfg.Encoding = "json"
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws, err := resolveWorkspace()
		if err != nil {
			return fmt.Errorf("failed to resolve workspace: %w", err)
		}
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func logCLI(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if logger == nil {
		fmt.Fprintln(os.Stderr, msg)
		return
	}
	switch level {
	case "debug":
		logger.Debug(msg)
	case "warn":
		logger.Warn(msg)
	case "error":
		logger.Error(msg)
	default:
		logger.Info(msg)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON to stdout")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored/interactive output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress human-readable progress output")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Assume yes to confirmation prompts")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Never reach external providers (ollama, telemetry)")
	rootCmd.PersistentFlags().BoolVar(&noTelemetry, "no-telemetry", false, "Disable telemetry reporting (currently always disabled)")
	rootCmd.PersistentFlags().BoolVar(&debugErrors, "debug", false, "Print full error detail instead of the summarized message")

	rootCmd.AddCommand(
		bootstrapCmd,
		reindexCmd,
		queryCmd,
		statusCmd,
		doctorCmd,
		benchmarkCmd,
		uninstallCmd,
		providerCmd,
		exportCmd,
		importCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if debugErrors {
			fmt.Fprintf(os.Stderr, "error: %+v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
		}
		os.Exit(errs.ExitCodeFor(err))
	}
}
