package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/shlog/internal/config"
	"github.com/fakeyudi/shlog/internal/control"
	"github.com/fakeyudi/shlog/internal/session"
)

// sessionEnv names the variable the shell hook exports with its session id.
const sessionEnv = "SHLOG_SESSION"

var errNoActiveSession = errors.New("no active session: run inside a shell with the shlog hook or pass --session")

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// logger is the CLI's structured logger, writing to stderr.
var logger = zerolog.Nop()

var (
	logLevelFlag string
	dataDirFlag  string
)

var rootCmd = &cobra.Command{
	Use:          "shlog",
	Short:        "Record, query and prune per-session shell command history",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if logLevelFlag != "" {
			loaded.LogLevel = logLevelFlag
		}
		if dataDirFlag != "" {
			loaded.DataDir = dataDirFlag
		}
		cfg = loaded

		level, err := cfg.Level()
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
		logger = newLogger(cmd.ErrOrStderr(), level)
		return nil
	},
}

// newLogger builds the console logger used by every subcommand.
func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().
		Logger()
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetConfig returns the merged configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}

// dataDir returns the resolved session data directory.
func dataDir() (string, error) {
	return cfg.ResolveDataDir()
}

// currentSessionID returns flag, or the id exported by the shell hook.
func currentSessionID(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if id := os.Getenv(sessionEnv); id != "" {
		return id, nil
	}
	return "", errNoActiveSession
}

// currentSessionFile resolves the session file of flag or the active
// session. The file must exist.
func currentSessionFile(flag string) (string, error) {
	id, err := currentSessionID(flag)
	if err != nil {
		return "", err
	}
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return session.Find(dir, id)
}

// recorderFor returns a client for the recorder of session id.
func recorderFor(id string) (*control.Client, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, err
	}
	return control.NewClient(control.SocketPath(dir, id)), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "session data directory")
}
