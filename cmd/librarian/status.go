package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/librarian-dev/librarian/internal/config"
	"github.com/librarian-dev/librarian/internal/errs"
	"github.com/librarian-dev/librarian/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the workspace's index version, row counts, and provider health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}
		if !isBootstrapped(ws) {
			return errs.Wrap(errs.KindNotBootstrapped, fmt.Sprintf("workspace %s has not been bootstrapped; run `librarian bootstrap`", ws), nil)
		}

		cfg, err := config.Load(ws)
		if err != nil {
			return errs.Wrap(errs.KindValidationFailed, "failed to load configuration", err)
		}

		engine, err := store.Open(cmd.Context(), store.DefaultOptions(ws))
		if err != nil {
			return errs.Wrap(errs.KindStorageCorrupt, "failed to open storage engine", err)
		}
		defer engine.Close()

		version, err := engine.CurrentVersion(cmd.Context())
		if err != nil {
			return errs.Wrap(errs.KindStorageCorrupt, "failed to read coordination counter", err)
		}
		counts, err := engine.CountAll(cmd.Context())
		if err != nil {
			return errs.Wrap(errs.KindStorageCorrupt, "failed to count workspace rows", err)
		}

		embed := openEmbeddingProvider(cfg)
		providerName := "disabled"
		if embed != nil {
			providerName = embed.Name()
		}

		status := map[string]interface{}{
			"workspace":       ws,
			"indexVersion":    version,
			"files":           counts.Files,
			"symbols":         counts.Symbols,
			"edges":           counts.Edges,
			"vectors":         counts.Vectors,
			"evidenceEntries": counts.Evidence,
			"vecIndexReady":   engine.VecAvailable(),
			"embeddingProvider": providerName,
		}

		return printResult(status, func() {
			fmt.Fprintf(os.Stdout, "workspace:       %s\n", ws)
			fmt.Fprintf(os.Stdout, "index version:   %d\n", version)
			fmt.Fprintf(os.Stdout, "files:           %d\n", counts.Files)
			fmt.Fprintf(os.Stdout, "symbols:         %d\n", counts.Symbols)
			fmt.Fprintf(os.Stdout, "edges:           %d\n", counts.Edges)
			fmt.Fprintf(os.Stdout, "vectors:         %d\n", counts.Vectors)
			fmt.Fprintf(os.Stdout, "evidence:        %d\n", counts.Evidence)
			fmt.Fprintf(os.Stdout, "vec index ready: %v\n", engine.VecAvailable())
			fmt.Fprintf(os.Stdout, "embedding:       %s\n", providerName)
		})
	},
}
