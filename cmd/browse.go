package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/shlog/internal/session"
	"github.com/fakeyudi/shlog/internal/tui"
)

var (
	plainOutput   bool
	browseSession string
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse the current session in a TUI",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := currentSessionFile(browseSession)
		if err != nil {
			return err
		}
		doc, err := session.Load(path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		f, isFile := out.(*os.File)
		if plainOutput || !isFile || !term.IsTerminal(f.Fd()) {
			printSession(out, doc)
			return nil
		}

		dir, err := dataDir()
		if err != nil {
			return err
		}
		sessions, err := session.List(dir, false, time.Now())
		if err != nil {
			logger.Warn().Err(err).Msg("listing sessions")
		}
		return tui.Run(doc, path, sessions)
	},
}

// printSession writes a plain-text rendering of doc.
func printSession(w io.Writer, doc *session.Document) {
	fmt.Fprintln(w, "## Summary")
	fmt.Fprintf(w, "  Session:   %s\n", doc.SessionID)
	if doc.Times[0] != nil {
		fmt.Fprintf(w, "  Started:   %s\n", session.FromEpoch(*doc.Times[0]).Format("2006-01-02 15:04:05 MST"))
	}
	if doc.Times[1] != nil {
		fmt.Fprintf(w, "  Ended:     %s\n", session.FromEpoch(*doc.Times[1]).Format("2006-01-02 15:04:05 MST"))
	} else {
		fmt.Fprintln(w, "  Ended:     (active)")
	}
	fmt.Fprintf(w, "  Commands:  %d\n", len(doc.Commands))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Commands")
	if len(doc.Commands) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for i, c := range doc.Commands {
		fmt.Fprintf(w, "  %d. [%s] (%d) %s\n", i, c.Start().Format("15:04:05"), c.Return, c.Input)
	}
	fmt.Fprintln(w)
}

func init() {
	browseCmd.Flags().BoolVar(&plainOutput, "plain", false, "plain text output instead of TUI")
	browseCmd.Flags().StringVar(&browseSession, "session", "", "session id (default: $SHLOG_SESSION)")
	rootCmd.AddCommand(browseCmd)
}
