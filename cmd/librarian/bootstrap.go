package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/librarian-dev/librarian/internal/config"
	"github.com/librarian-dev/librarian/internal/errs"
	"github.com/librarian-dev/librarian/internal/indexer"
	"github.com/librarian-dev/librarian/internal/logging"
	"github.com/librarian-dev/librarian/internal/store"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Perform a full from-scratch index of the workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}
		cfg, err := config.Load(ws)
		if err != nil {
			return errs.Wrap(errs.KindValidationFailed, "failed to load configuration", err)
		}
		return runBootstrap(cmd.Context(), ws, cfg)
	},
}

// runBootstrap is shared between the bootstrap subcommand and the
// auto-bootstrap path other commands take when no store file exists yet.
func runBootstrap(ctx context.Context, ws string, cfg config.Config) error {
	started := time.Now()

	lock, err := store.AcquireLock(ws)
	if err != nil {
		return errs.Wrap(errs.KindStorageCorrupt, "failed to acquire workspace lock", err)
	}
	defer lock.Unlock()

	if err := config.Save(cfg); err != nil {
		return errs.Wrap(errs.KindValidationFailed, "failed to write configuration", err)
	}
	if err := config.SyncLoggingCache(cfg); err != nil {
		logCLI("warn", "failed to sync logging cache: %v", err)
	}

	engine, err := store.Open(ctx, store.Options{
		Workspace:       ws,
		RequireVecIndex: cfg.Store.RequireVecIndex,
		BusyTimeoutMS:   cfg.Store.BusyTimeoutMillis,
	})
	if err != nil {
		return errs.Wrap(errs.KindStorageCorrupt, "failed to open storage engine", err)
	}
	defer engine.Close()

	embed := openEmbeddingProvider(cfg)

	ix := indexer.New(indexer.Options{
		Workspace:       ws,
		Include:         cfg.Include,
		Exclude:         cfg.Exclude,
		BatchSize:       cfg.Store.BatchSize,
		EmbeddingEngine: embed,
	}, engine)
	defer ix.Close()

	if err := ix.Bootstrap(ctx); err != nil {
		return errs.Wrap(errs.KindValidationFailed, "bootstrap failed", err)
	}

	version, _ := engine.CurrentVersion(ctx)
	elapsed := time.Since(started)
	logging.Boot("bootstrap complete in %s, index version %d", elapsed, version)

	return printResult(map[string]interface{}{
		"workspace":    ws,
		"indexVersion": version,
		"elapsedMs":    elapsed.Milliseconds(),
	}, func() {
		fmt.Printf("bootstrapped %s in %s (index version %d)\n", ws, elapsed.Round(time.Millisecond), version)
	})
}
