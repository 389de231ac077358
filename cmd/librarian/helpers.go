package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/librarian-dev/librarian/internal/config"
	"github.com/librarian-dev/librarian/internal/embedding"
	"github.com/librarian-dev/librarian/internal/errs"
	"github.com/librarian-dev/librarian/internal/iface"
	"github.com/librarian-dev/librarian/internal/ledger"
	"github.com/librarian-dev/librarian/internal/store"
)

// resolveWorkspace returns the absolute workspace directory, defaulting to
// the current working directory when --workspace is unset.
func resolveWorkspace() (string, error) {
	if workspace == "" {
		return os.Getwd()
	}
	return filepath.Abs(workspace)
}

// storeFilePath is the path a bootstrapped workspace's primary store file
// lives at, used to cheaply answer "is this workspace bootstrapped" without
// opening the engine.
func storeFilePath(ws string) string {
	return filepath.Join(ws, ".librarian", "librarian.db")
}

func isBootstrapped(ws string) bool {
	_, err := os.Stat(storeFilePath(ws))
	return err == nil
}

// ensureBootstrapped opens the storage engine, auto-bootstrapping the
// workspace first if no store file exists yet -- per spec.md §7,
// "not bootstrapped" is recoverable by bootstrapping, and auto-bootstrap is
// allowed except when explicitly suppressed. quiet commands that want to
// report not-bootstrapped instead of silently fixing it should check
// isBootstrapped themselves before calling this.
func ensureBootstrapped(ctx context.Context, ws string) (*store.Engine, config.Config, error) {
	cfg, err := config.Load(ws)
	if err != nil {
		return nil, cfg, errs.Wrap(errs.KindValidationFailed, "failed to load configuration", err)
	}

	if !isBootstrapped(ws) {
		if err := runBootstrap(ctx, ws, cfg); err != nil {
			return nil, cfg, err
		}
	}

	engine, err := openEngineWithRecovery(ctx, ws)
	if err != nil {
		return nil, cfg, err
	}
	return engine, cfg, nil
}

// openEngineWithRecovery implements spec.md §7's storage-corrupt recovery
// protocol: a failed open triggers RecoverCorruptStore, and the open is
// retried exactly once if recovery quarantined anything. A failure on the
// retry (or a recovery that found nothing to quarantine) surfaces as
// unrecoverable.
func openEngineWithRecovery(ctx context.Context, ws string) (*store.Engine, error) {
	engine, err := store.Open(ctx, store.DefaultOptions(ws))
	if err == nil {
		return engine, nil
	}

	result, recErr := store.RecoverCorruptStore(ws)
	if recErr != nil || !result.Recovered {
		return nil, errs.Wrap(errs.KindStorageCorrupt, "failed to open storage engine", err)
	}
	logCLI("warn", "quarantined corrupt store and retrying open: %v", result.Actions)

	engine, err = store.Open(ctx, store.DefaultOptions(ws))
	if err != nil {
		return nil, errs.Wrap(errs.KindStorageCorrupt, "storage engine unrecoverable after quarantine", err)
	}
	return engine, nil
}

// openEmbeddingProvider constructs the configured embedding provider,
// returning nil (not an error) when the provider is explicitly disabled or
// --offline suppresses external network providers.
func openEmbeddingProvider(cfg config.Config) iface.EmbeddingProvider {
	provider := cfg.Embedding.Provider
	if offline && provider == "ollama" {
		logCLI("warn", "offline mode: skipping ollama embedding provider")
		return nil
	}
	if provider == "disabled" || provider == "" {
		return nil
	}
	eng, err := embedding.NewEngine(embedding.Config{
		Provider:        provider,
		OllamaEndpoint:  cfg.Embedding.OllamaEndpoint,
		OllamaModel:     cfg.Embedding.OllamaModel,
		LocalDimensions: cfg.Embedding.LocalDimensions,
	})
	if err != nil {
		logCLI("warn", "embedding provider %s unavailable: %v", provider, err)
		return nil
	}
	return eng
}

func openLedger(engine *store.Engine, cfg config.Config) *ledger.Ledger {
	return ledger.New(engine, cfg.Ledger.StalenessThreshold)
}

// printResult renders v as the single JSON document the CLI contract
// promises for --json mode, or hands off to a human-readable renderer
// otherwise.
func printResult(v interface{}, human func()) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	if !quiet {
		human()
	}
	return nil
}

func confirm(prompt string) bool {
	if assumeYes {
		return true
	}
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	var resp string
	fmt.Scanln(&resp)
	return resp == "y" || resp == "Y" || resp == "yes"
}
