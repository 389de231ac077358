package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/librarian-dev/librarian/internal/config"
	"github.com/librarian-dev/librarian/internal/errs"
)

var availableProviders = []string{"ollama", "local", "disabled"}

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Inspect or change the configured embedding provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		return providerCurrentCmd.RunE(cmd, args)
	},
}

var providerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the embedding providers this build supports",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printResult(map[string]interface{}{"providers": availableProviders}, func() {
			for _, p := range availableProviders {
				fmt.Println(p)
			}
		})
	},
}

var providerCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the workspace's currently configured embedding provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}
		cfg, err := config.Load(ws)
		if err != nil {
			return errs.Wrap(errs.KindValidationFailed, "failed to load configuration", err)
		}
		return printResult(cfg.Embedding, func() {
			fmt.Printf("provider: %s\n", cfg.Embedding.Provider)
			if cfg.Embedding.Provider == "ollama" {
				fmt.Printf("endpoint: %s\nmodel:    %s\n", cfg.Embedding.OllamaEndpoint, cfg.Embedding.OllamaModel)
			}
		})
	},
}

var providerUseCmd = &cobra.Command{
	Use:   "use <ollama|local|disabled>",
	Short: "Switch the workspace's embedding provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		valid := false
		for _, p := range availableProviders {
			if p == name {
				valid = true
			}
		}
		if !valid {
			return errs.Wrap(errs.KindInvalidArgument, fmt.Sprintf("unknown provider %q, want one of %v", name, availableProviders), nil)
		}

		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}
		cfg, err := config.Load(ws)
		if err != nil {
			return errs.Wrap(errs.KindValidationFailed, "failed to load configuration", err)
		}
		cfg.Embedding.Provider = name
		if err := config.Save(cfg); err != nil {
			return errs.Wrap(errs.KindValidationFailed, "failed to save configuration", err)
		}
		return printResult(cfg.Embedding, func() {
			fmt.Printf("embedding provider set to %s\n", name)
		})
	},
}

func init() {
	providerCmd.AddCommand(providerUseCmd, providerListCmd, providerCurrentCmd)
}
