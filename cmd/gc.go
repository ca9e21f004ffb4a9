package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/shlog/internal/control"
	"github.com/fakeyudi/shlog/internal/history"
	"github.com/fakeyudi/shlog/internal/session"
)

var (
	gcSize        string
	gcNonBlocking bool
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete old, unlocked session files",
	Long: `gc applies one retention policy to the session files of the data directory.
Files of sessions that are still recording are never removed.

--size takes a limit and a unit: commands, files, s (with m/h/d/w aliases) or
b (with kb/mb/gb aliases), e.g. "8128 commands", "30 d" or "10 mb".

--non-blocking hands the collection to the recorder of the current session
and returns at once.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		size, err := cfg.Size()
		if err != nil {
			return err
		}
		if gcSize != "" {
			if size, err = history.ParseSize(gcSize); err != nil {
				return err
			}
		}
		if gcNonBlocking {
			return startRecorderGC(cmd, gcSize)
		}
		dir, err := dataDir()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		res, err := history.NewCollector(dir, size, history.WithLogger(&logger)).Run(ctx)
		for _, path := range res.Removed {
			id, _ := session.IDFromPath(path)
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", id)
		}
		if err != nil {
			return err
		}
		if len(res.Removed) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to remove")
		}
		return nil
	},
}

// startRecorderGC asks the current session's recorder to collect in the
// background. An empty size uses the recorder's configured one.
func startRecorderGC(cmd *cobra.Command, size string) error {
	id, err := currentSessionID("")
	if err != nil {
		return fmt.Errorf("--non-blocking needs a recording session: %w", err)
	}
	client, err := recorderFor(id)
	if err != nil {
		return err
	}
	if err := client.GC(cmd.Context(), size); err != nil {
		if errors.Is(err, control.ErrNotRunning) {
			return fmt.Errorf("--non-blocking needs a recording session: %w", err)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "collection started in session %s\n", id)
	return nil
}

func init() {
	gcCmd.Flags().StringVar(&gcSize, "size", "", `retention limit, e.g. "8128 commands" (default: configured history size)`)
	gcCmd.Flags().BoolVar(&gcNonBlocking, "non-blocking", false, "collect in the background inside the session's recorder")
	rootCmd.AddCommand(gcCmd)
}
