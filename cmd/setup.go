package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/shlog/internal/shell"
)

var setupCmd = &cobra.Command{
	Use:       "setup <" + strings.Join(shell.Supported, "|") + ">",
	Short:     "Install the shell hook that records every command",
	Args:      cobra.ExactArgs(1),
	ValidArgs: shell.Supported,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := shell.Install(cmd.OutOrStdout(), args[0]); err != nil {
			return fmt.Errorf("installing %s hook: %w", args[0], err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
