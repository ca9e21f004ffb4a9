package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/shlog/internal/session"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print commands as shell sessions flush them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := dataDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		w, err := session.NewWatcher(dir)
		if err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		return w.Run(ctx, func(e session.Event) {
			short := e.SessionID
			if len(short) > 8 {
				short = short[:8]
			}
			fmt.Fprintf(out, "%s %d: %s\n", short, e.Index, e.Command.Input)
		})
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
