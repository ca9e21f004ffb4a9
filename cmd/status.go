package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/shlog/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List the sessions that are currently recording",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := dataDir()
		if err != nil {
			return err
		}
		now := time.Now()
		infos, err := session.List(dir, false, now)
		if err != nil {
			return err
		}

		active := 0
		current, _ := currentSessionID("")
		for _, in := range infos {
			if !in.Locked {
				continue
			}
			active++
			marker := " "
			if in.SessionID == current {
				marker = "*"
			}
			cmd.Printf("%s %s  started %s  %s  %d commands\n",
				marker, in.SessionID,
				in.Start.Format(time.RFC3339),
				now.Sub(in.Start).Round(time.Second),
				in.Commands)
		}
		if active == 0 {
			cmd.Println("no active session")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
