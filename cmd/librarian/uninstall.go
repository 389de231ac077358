package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/librarian-dev/librarian/internal/errs"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the workspace's .librarian directory (index, ledger, config, logs)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}
		dir := ws + "/.librarian"
		if !isBootstrapped(ws) {
			return printResult(map[string]interface{}{"removed": false, "reason": "not bootstrapped"}, func() {
				fmt.Println("nothing to uninstall: workspace was never bootstrapped")
			})
		}
		if !confirm(fmt.Sprintf("Remove %s and all indexed state?", dir)) {
			return errs.Wrap(errs.KindCancelled, "uninstall cancelled by operator", nil)
		}
		if err := os.RemoveAll(dir); err != nil {
			return errs.Wrap(errs.KindValidationFailed, "failed to remove workspace state", err)
		}
		return printResult(map[string]interface{}{"removed": true, "path": dir}, func() {
			fmt.Printf("removed %s\n", dir)
		})
	},
}
