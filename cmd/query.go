package cmd

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/shlog/internal/control"
	"github.com/fakeyudi/shlog/internal/history"
	"github.com/fakeyudi/shlog/internal/session"
	"github.com/fakeyudi/shlog/internal/shell"
)

var (
	queryReverse bool
	querySession string
)

// item is one printable history entry; index is its position in the
// source the query ran over.
type item struct {
	index int
	input string
}

// selectItems applies an optional index argument and the reverse flag.
func selectItems(inputs []string, args []string, reverse bool) ([]item, error) {
	idx := history.Index{Slice: true}
	if len(args) == 1 {
		var err error
		if idx, err = history.ParseIndex(args[0]); err != nil {
			return nil, err
		}
	}
	positions, err := idx.Positions(len(inputs))
	if err != nil {
		return nil, err
	}
	items := make([]item, 0, len(positions))
	for _, p := range positions {
		items = append(items, item{index: p, input: inputs[p]})
	}
	if reverse {
		slices.Reverse(items)
	}
	return items, nil
}

func printItems(w io.Writer, items []item) {
	for _, it := range items {
		fmt.Fprintf(w, "%d: %s\n", it.index, it.input)
	}
}

func commandInputs(cmds []session.Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.Input
	}
	return out
}

var sessionCmd = &cobra.Command{
	Use:   "session [N|start:stop[:step]]",
	Short: "Print the commands of the current session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := currentSessionID(querySession)
		if err != nil {
			return err
		}
		items, err := liveItems(cmd.Context(), id, args)
		if errors.Is(err, control.ErrNotRunning) {
			items, err = fileItems(id, args)
		}
		if err != nil {
			return err
		}
		if queryReverse {
			slices.Reverse(items)
		}
		printItems(cmd.OutOrStdout(), items)
		return nil
	},
}

// liveItems asks the recorder of session id, which also sees commands it
// has not flushed yet.
func liveItems(ctx context.Context, id string, args []string) ([]item, error) {
	client, err := recorderFor(id)
	if err != nil {
		return nil, err
	}
	var index string
	if len(args) == 1 {
		index = args[0]
	}
	live, err := client.Inputs(ctx, index)
	if err != nil {
		return nil, err
	}
	items := make([]item, len(live))
	for i, it := range live {
		items[i] = item{index: it.Index, input: it.Input}
	}
	return items, nil
}

func fileItems(id string, args []string) ([]item, error) {
	path, err := currentSessionFile(id)
	if err != nil {
		return nil, err
	}
	doc, err := session.Load(path)
	if err != nil {
		return nil, err
	}
	return selectItems(commandInputs(doc.Commands), args, false)
}

// sessionCommands returns the commands of one session, asking its recorder
// first when the session is still recording.
func sessionCommands(ctx context.Context, in session.Info) ([]session.Command, error) {
	if in.Locked {
		client, err := recorderFor(in.SessionID)
		if err != nil {
			return nil, err
		}
		cmds, err := client.Commands(ctx)
		if err == nil {
			return cmds, nil
		}
		if !errors.Is(err, control.ErrNotRunning) {
			logger.Warn().Err(err).Str("session", in.SessionID).Msg("recorder query failed, reading file")
		}
	}
	doc, err := session.Load(in.Path)
	if err != nil {
		return nil, err
	}
	return doc.Commands, nil
}

var allCmd = &cobra.Command{
	Use:   "all [N|start:stop[:step]]",
	Short: "Print the commands of every session, ordered by start time",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := dataDir()
		if err != nil {
			return err
		}
		infos, err := session.List(dir, false, time.Now())
		if err != nil {
			return err
		}
		var cmds []session.Command
		for _, in := range infos {
			c, err := sessionCommands(cmd.Context(), in)
			if err != nil {
				logger.Warn().Err(err).Str("file", in.Path).Msg("skipping unreadable session")
				continue
			}
			cmds = append(cmds, c...)
		}
		slices.SortStableFunc(cmds, func(a, b session.Command) int {
			return cmp.Compare(a.Times[0], b.Times[0])
		})

		items, err := selectItems(commandInputs(cmds), args, queryReverse)
		if err != nil {
			return err
		}
		printItems(cmd.OutOrStdout(), items)
		return nil
	},
}

// newShellHistoryCmd returns the command printing a shell's own history file.
func newShellHistoryCmd(name string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " [N|start:stop[:step]]",
		Short: "Print the " + name + " history file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := shell.ReadHistory(name)
			if err != nil {
				return err
			}
			inputs := make([]string, len(entries))
			for i, e := range entries {
				inputs[i] = strings.TrimRight(e.Input, "\n")
			}
			items, err := selectItems(inputs, args, queryReverse)
			if err != nil {
				return err
			}
			printItems(cmd.OutOrStdout(), items)
			return nil
		},
	}
}

func init() {
	sessionCmd.Flags().StringVar(&querySession, "session", "", "session id (default: $SHLOG_SESSION)")
	for _, c := range []*cobra.Command{sessionCmd, allCmd, newShellHistoryCmd("zsh"), newShellHistoryCmd("bash")} {
		c.Flags().BoolVarP(&queryReverse, "reverse", "r", false, "print newest first")
		rootCmd.AddCommand(c)
	}
}
