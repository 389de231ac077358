package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/librarian-dev/librarian/internal/coordinator"
	"github.com/librarian-dev/librarian/internal/errs"
	"github.com/librarian-dev/librarian/internal/packs"
	"github.com/librarian-dev/librarian/internal/retrieval"
)

var (
	releaseCritical bool
	tokenBudget     int
)

var queryCmd = &cobra.Command{
	Use:   "query <text...>",
	Short: "Answer a question about the workspace with a context pack",
	Args:  cobra.MinimumNArgs(1),
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

		embed := openEmbeddingProvider(cfg)
		retriever := retrieval.New(retrieval.DefaultOptions(), engine, embed)
		assembler := packs.New(engine)
		floors := coordinator.ConfidenceFloors{
			L0: cfg.Coordinator.ConfidenceFloorL0,
			L1: cfg.Coordinator.ConfidenceFloorL1,
			L2: cfg.Coordinator.ConfidenceFloorL2,
		}
		coord := coordinator.New(retriever, assembler, floors, embed, engine)

		budget := tokenBudget
		if budget <= 0 {
			budget = cfg.Packs.DefaultTokenBudget
		}

		resp, err := coord.Query(cmd.Context(), coordinator.Query{
			Text:            strings.Join(args, " "),
			ReleaseCritical: releaseCritical,
			TokenBudget:     budget,
		})
		if err != nil {
			var typed *errs.Error
			if errors.As(err, &typed) {
				return err
			}
			return errs.Wrap(errs.KindValidationFailed, "query failed", err)
		}

		return printResult(resp, func() {
			fmt.Printf("intent: %s  depth: %s\n", resp.Intent, resp.DepthReached)
			for _, w := range resp.Warnings {
				fmt.Printf("warning[%s]: %s\n", w.Code, w.Message)
			}
			fmt.Println(strings.Repeat("-", 60))
			for _, fact := range resp.Pack.KeyFacts {
				marker := ""
				if fact.Unverified {
					marker = " (unverified)"
				}
				fmt.Printf("- %s%s\n", fact.Text, marker)
			}
			fmt.Printf("\n%d/%d tokens, confidence %.2f, %d evidence id(s)\n",
				resp.Pack.TokensUsed, resp.Pack.TokenBudget, resp.Pack.Confidence, len(resp.Pack.EvidenceIDs))
		})
	},
}

func init() {
	queryCmd.Flags().BoolVar(&releaseCritical, "release-critical", false, "Fail unless the resulting pack cites at least one wet-provenance evidence entry")
	queryCmd.Flags().IntVar(&tokenBudget, "token-budget", 0, "Token budget for the resulting pack (default: configured default)")
}
