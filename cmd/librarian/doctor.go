package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/librarian-dev/librarian/internal/config"
	"github.com/librarian-dev/librarian/internal/embedding"
	"github.com/librarian-dev/librarian/internal/errs"
	"github.com/librarian-dev/librarian/internal/store"
)

// doctorCheck is one diagnostic finding.
type doctorCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run workspace integrity checks: lock, storage, ledger, embedding provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}

		var checks []doctorCheck
		checks = append(checks, checkLock(ws))

		if !isBootstrapped(ws) {
			checks = append(checks, doctorCheck{"storage", false, "workspace not bootstrapped"})
			return reportDoctor(checks)
		}

		engine, err := openEngineWithRecovery(cmd.Context(), ws)
		if err != nil {
			checks = append(checks, doctorCheck{"storage", false, err.Error()})
			return reportDoctor(checks)
		}
		defer engine.Close()
		checks = append(checks, doctorCheck{"storage", true, fmt.Sprintf("opened %s", engine.Path())})
		checks = append(checks, checkVecIndex(engine))
		checks = append(checks, checkLedgerIntegrity(cmd.Context(), engine))

		cfg, err := config.Load(ws)
		if err != nil {
			checks = append(checks, doctorCheck{"config", false, err.Error()})
		} else {
			checks = append(checks, doctorCheck{"config", true, fmt.Sprintf("provider=%s", cfg.Embedding.Provider)})
			checks = append(checks, checkEmbeddingProvider(cmd.Context(), cfg))
		}

		return reportDoctor(checks)
	},
}

func checkLock(ws string) doctorCheck {
	lock, err := store.AcquireLock(ws)
	if err != nil {
		return doctorCheck{"lock", false, err.Error()}
	}
	defer lock.Unlock()
	return doctorCheck{"lock", true, "workspace lock acquirable"}
}

func checkVecIndex(engine *store.Engine) doctorCheck {
	if engine.VecAvailable() {
		return doctorCheck{"vec_index", true, "sqlite-vec extension active"}
	}
	return doctorCheck{"vec_index", true, "sqlite-vec unavailable, falling back to brute-force vector search"}
}

func checkLedgerIntegrity(ctx context.Context, engine *store.Engine) doctorCheck {
	entries, err := engine.ListEvidenceSince(ctx, 0)
	if err != nil {
		return doctorCheck{"ledger", false, err.Error()}
	}
	l := openLedger(engine, config.Default(""))
	for _, e := range entries {
		if err := l.Verify(ctx, e.ID); err != nil {
			return doctorCheck{"ledger", false, fmt.Sprintf("tamper detected on entry %s: %v", e.ID, err)}
		}
	}
	return doctorCheck{"ledger", true, fmt.Sprintf("verified %d entries", len(entries))}
}

func checkEmbeddingProvider(ctx context.Context, cfg config.Config) doctorCheck {
	if offline || cfg.Embedding.Provider == "disabled" {
		return doctorCheck{"embedding_provider", true, "skipped (offline or disabled)"}
	}
	eng, err := embedding.NewEngine(embedding.Config{
		Provider:        cfg.Embedding.Provider,
		OllamaEndpoint:  cfg.Embedding.OllamaEndpoint,
		OllamaModel:     cfg.Embedding.OllamaModel,
		LocalDimensions: cfg.Embedding.LocalDimensions,
	})
	if err != nil {
		return doctorCheck{"embedding_provider", false, err.Error()}
	}
	checker, ok := eng.(interface{ HealthCheck(context.Context) error })
	if !ok {
		return doctorCheck{"embedding_provider", true, fmt.Sprintf("%s has no health check", eng.Name())}
	}
	if err := checker.HealthCheck(ctx); err != nil {
		return doctorCheck{"embedding_provider", false, err.Error()}
	}
	return doctorCheck{"embedding_provider", true, fmt.Sprintf("%s reachable", eng.Name())}
}

func reportDoctor(checks []doctorCheck) error {
	allOK := true
	for _, c := range checks {
		if !c.OK {
			allOK = false
		}
	}

	err := printResult(map[string]interface{}{"ok": allOK, "checks": checks}, func() {
		for _, c := range checks {
			mark := "ok"
			if !c.OK {
				mark = "FAIL"
			}
			fmt.Printf("[%s] %-20s %s\n", mark, c.Name, c.Detail)
		}
	})
	if err != nil {
		return err
	}
	if !allOK {
		return errs.Wrap(errs.KindValidationFailed, "one or more doctor checks failed", nil)
	}
	return nil
}
