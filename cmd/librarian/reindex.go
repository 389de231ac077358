package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/librarian-dev/librarian/internal/errs"
	"github.com/librarian-dev/librarian/internal/indexer"
	"github.com/librarian-dev/librarian/internal/logging"
)

var reindexScope string

var reindexCmd = &cobra.Command{
	Use:   "reindex [paths...]",
	Short: "Re-extract the given paths, or the whole workspace if none are given",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}

		engine, cfg, err := ensureBootstrapped(cmd.Context(), ws)
		if err != nil {
			return err
		}
		defer engine.Close()

		if len(args) == 0 {
			return runBootstrap(cmd.Context(), ws, cfg)
		}

		embed := openEmbeddingProvider(cfg)
		ix := indexer.New(indexer.Options{
			Workspace:       ws,
			Include:         cfg.Include,
			Exclude:         cfg.Exclude,
			BatchSize:       cfg.Store.BatchSize,
			EmbeddingEngine: embed,
		}, engine)
		defer ix.Close()

		started := time.Now()
		if err := ix.Reindex(cmd.Context(), args, reindexScope); err != nil {
			return errs.Wrap(errs.KindValidationFailed, "reindex failed", err)
		}
		elapsed := time.Since(started)

		version, _ := engine.CurrentVersion(cmd.Context())
		logging.Indexer("reindex complete in %s, index version %d", elapsed, version)

		return printResult(map[string]interface{}{
			"paths":        args,
			"scope":        reindexScope,
			"indexVersion": version,
			"elapsedMs":    elapsed.Milliseconds(),
		}, func() {
			fmt.Printf("reindexed %d path(s) in %s (index version %d)\n", len(args), elapsed.Round(time.Millisecond), version)
		})
	},
}

func init() {
	reindexCmd.Flags().StringVar(&reindexScope, "scope", "changed_only", "changed_only|changed_and_dependents")
}
