package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/charmbracelet/x/term"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/shlog/internal/control"
	"github.com/fakeyudi/shlog/internal/history"
	"github.com/fakeyudi/shlog/internal/shell"
)

var (
	recordSession string
	recordFile    string
	recordShell   string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record commands read from stdin into a session file (run by the shell hook)",
	Long: `record reads one command per line from stdin until EOF and appends them to
the session's history file. Lines are JSON objects with the session file's
command keys, or tab-separated "start end rtn input" records. The directives
#flush and #gc flush the buffer and start a background collection.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if f, ok := in.(*os.File); ok && term.IsTerminal(f.Fd()) {
			return errors.New("record reads commands from the shell hook; stdin is a terminal")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
		defer stop()
		return runRecord(ctx, in)
	},
}

// runRecord feeds lines from in into a new History until EOF or ctx is
// done, then closes it.
func runRecord(ctx context.Context, in io.Reader) error {
	size, err := cfg.Size()
	if err != nil {
		return err
	}
	opts := history.Options{
		Filename:   recordFile,
		SessionID:  recordSession,
		BufferSize: cfg.BufferSize,
		GC:         !cfg.NoGC,
		GCSize:     size,
		IgnoreDups: cfg.IgnoreDups(),
		IgnoreErr:  cfg.IgnoreErr(),
		Logger:     &logger,
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.Filename == "" {
		if opts.DataDir, err = dataDir(); err != nil {
			return err
		}
	}
	if recordShell != "" {
		opts.Meta = map[string]any{"shell": recordShell}
	}

	// The collector may start once the shell has sent its first line.
	ready := make(chan struct{})
	var readyOnce sync.Once
	opts.Ready = ready

	hist, err := history.New(opts)
	if err != nil {
		return err
	}
	log := logger.With().Str("component", "record").Str("session", hist.SessionID()).Logger()
	log.Debug().Str("file", hist.Filename()).Msg("recording")

	stopServer := serveControl(hist, log)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("recording interrupted")
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			readyOnce.Do(func() { close(ready) })
			handleRecordLine(ctx, hist, line)
		}
	}

	stopServer()
	closeErr := hist.Close()
	select {
	case err := <-scanErr:
		if err != nil {
			return errors.Join(fmt.Errorf("reading commands: %w", err), closeErr)
		}
	default:
	}
	return closeErr
}

// serveControl answers live queries about hist on its session socket. The
// returned func stops the server. Recording continues without it when the
// socket cannot be bound.
func serveControl(hist *history.History, log zerolog.Logger) func() {
	path := control.SocketPath(hist.DataDir(), hist.SessionID())
	l, err := control.Listen(path)
	if err != nil {
		log.Warn().Err(err).Str("socket", path).Msg("live queries disabled")
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := control.NewServer(hist, &logger).Serve(ctx, l); err != nil {
			log.Warn().Err(err).Msg("control socket stopped")
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func handleRecordLine(ctx context.Context, hist *history.History, line string) {
	switch strings.TrimSpace(line) {
	case "":
		return
	case shell.DirectiveFlush:
		hist.Flush(false)
		return
	case shell.DirectiveGC:
		hist.GC(ctx, nil)
		return
	}

	c, err := shell.ParseRecord(line)
	if err != nil {
		logger.Warn().Err(err).Str("line", line).Msg("skipping record")
		return
	}
	hist.Append(c)
}

func init() {
	recordCmd.Flags().StringVar(&recordSession, "session", "", "session id (default: a new UUID)")
	recordCmd.Flags().StringVar(&recordFile, "file", "", "session file path (default: <data dir>/shlog-<id>.json)")
	recordCmd.Flags().StringVar(&recordShell, "shell", "", "shell name stored in the session file")
	rootCmd.AddCommand(recordCmd)
}
