package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/shlog/internal/control"
	"github.com/fakeyudi/shlog/internal/lazyjson"
	"github.com/fakeyudi/shlog/internal/session"
)

var (
	idNew       bool
	infoJSON    bool
	infoSession string
	fileSession string
)

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Print the current session id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if idNew {
			fmt.Fprintln(cmd.OutOrStdout(), uuid.NewString())
			return nil
		}
		id, err := currentSessionID("")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Print the path of the current session file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := currentSessionID(fileSession)
		if err != nil {
			return err
		}
		dir, err := dataDir()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), session.Path(dir, id))
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print information about the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := currentSessionID(infoSession)
		if err != nil {
			return err
		}
		path, err := currentSessionFile(id)
		if err != nil {
			return err
		}
		now := time.Now()
		in, err := session.ReadInfo(path, now)
		if err != nil {
			return err
		}
		size, err := cfg.Size()
		if err != nil {
			return err
		}

		// A running recorder knows about commands it has not flushed yet.
		live := control.Info{Length: in.Commands, BufferSize: cfg.BufferSize}
		if client, err := recorderFor(id); err != nil {
			return err
		} else if li, err := client.Info(cmd.Context()); err == nil {
			live = li
		} else if !errors.Is(err, control.ErrNotRunning) {
			return err
		}

		fields := map[string]any{
			"sessionid":    in.SessionID,
			"filename":     in.Path,
			"length":       live.Length,
			"buffersize":   live.BufferSize,
			"bufferlength": live.BufferLength,
			"locked":       in.Locked,
			"history_size": size.String(),
			"gc":           !cfg.NoGC,
		}
		if !in.Start.IsZero() {
			fields["started"] = in.Start.Format(time.RFC3339)
		}
		if !in.End.IsZero() {
			fields["ended"] = in.End.Format(time.RFC3339)
		}

		w := cmd.OutOrStdout()
		if infoJSON {
			return lazyjson.Dump(w, fields)
		}
		fmt.Fprintf(w, "sessionid:    %s\n", in.SessionID)
		fmt.Fprintf(w, "filename:     %s\n", in.Path)
		fmt.Fprintf(w, "length:       %d\n", live.Length)
		fmt.Fprintf(w, "buffersize:   %d\n", live.BufferSize)
		fmt.Fprintf(w, "bufferlength: %d\n", live.BufferLength)
		fmt.Fprintf(w, "locked:       %t\n", in.Locked)
		fmt.Fprintf(w, "history size: %s\n", size)
		if s, ok := fields["started"]; ok {
			fmt.Fprintf(w, "started:      %s\n", s)
		}
		if e, ok := fields["ended"]; ok {
			fmt.Fprintf(w, "ended:        %s\n", e)
		}
		return nil
	},
}

func init() {
	idCmd.Flags().BoolVar(&idNew, "new", false, "print a freshly generated session id")
	fileCmd.Flags().StringVar(&fileSession, "session", "", "session id (default: $SHLOG_SESSION)")
	infoCmd.Flags().StringVar(&infoSession, "session", "", "session id (default: $SHLOG_SESSION)")
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "print as JSON")
	rootCmd.AddCommand(idCmd, fileCmd, infoCmd)
}
