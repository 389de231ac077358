package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/librarian-dev/librarian/internal/coordinator"
	"github.com/librarian-dev/librarian/internal/errs"
	"github.com/librarian-dev/librarian/internal/packs"
	"github.com/librarian-dev/librarian/internal/retrieval"
)

var benchmarkQuery string

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Time opening the workspace (bootstrapping it if needed) and a representative query",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}

		startOpen := time.Now()
		engine, cfg, err := ensureBootstrapped(cmd.Context(), ws)
		if err != nil {
			return err
		}
		defer engine.Close()
		openElapsed := time.Since(startOpen)

		embed := openEmbeddingProvider(cfg)
		retriever := retrieval.New(retrieval.DefaultOptions(), engine, embed)
		assembler := packs.New(engine)
		coord := coordinator.New(retriever, assembler, coordinator.ConfidenceFloors{
			L0: cfg.Coordinator.ConfidenceFloorL0,
			L1: cfg.Coordinator.ConfidenceFloorL1,
			L2: cfg.Coordinator.ConfidenceFloorL2,
		}, embed, engine)

		q := benchmarkQuery
		if q == "" {
			q = "status"
		}

		startQuery := time.Now()
		resp, err := coord.Query(cmd.Context(), coordinator.Query{Text: q, TokenBudget: cfg.Packs.DefaultTokenBudget})
		if err != nil {
			return errs.Wrap(errs.KindValidationFailed, "benchmark query failed", err)
		}
		queryElapsed := time.Since(startQuery)

		return printResult(map[string]interface{}{
			"bootstrapOrOpenMs": openElapsed.Milliseconds(),
			"queryMs":           queryElapsed.Milliseconds(),
			"depthReached":      resp.DepthReached,
			"keyFacts":          len(resp.Pack.KeyFacts),
		}, func() {
			fmt.Printf("open/bootstrap: %s\n", openElapsed.Round(time.Millisecond))
			fmt.Printf("query (%q):     %s (depth %s, %d key facts)\n", q, queryElapsed.Round(time.Millisecond), resp.DepthReached, len(resp.Pack.KeyFacts))
		})
	},
}

func init() {
	benchmarkCmd.Flags().StringVar(&benchmarkQuery, "query", "", "Query text to benchmark (default: \"status\")")
}
