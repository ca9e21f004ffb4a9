package history

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fakeyudi/shlog/internal/lazyjson"
	"github.com/fakeyudi/shlog/internal/session"
)

// FlushTask appends one drained buffer snapshot to the session file. It
// holds its place in the file's Queue from construction until it finishes.
type FlushTask struct {
	path   string
	cmds   []Command
	atExit bool
	ticket *Ticket
	now    func() time.Time
	logger zerolog.Logger

	done chan struct{}
	err  error
}

func newFlushTask(path string, cmds []Command, ticket *Ticket, atExit bool, now func() time.Time, logger zerolog.Logger) *FlushTask {
	return &FlushTask{
		path:   path,
		cmds:   cmds,
		atExit: atExit,
		ticket: ticket,
		now:    now,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Len returns the number of commands the task appends.
func (f *FlushTask) Len() int { return len(f.cmds) }

// AtExit reports whether this is the closing flush of its session.
func (f *FlushTask) AtExit() bool { return f.atExit }

// Done is closed once the task has finished, successfully or not.
func (f *FlushTask) Done() <-chan struct{} { return f.done }

// Wait blocks until the task has finished and returns its error. A failed
// flush is not retried; its commands are lost.
func (f *FlushTask) Wait() error {
	<-f.done
	return f.err
}

// run waits for the task's turn, writes, and leaves the queue.
func (f *FlushTask) run() {
	defer close(f.done)
	f.ticket.Wait()
	defer f.ticket.Done()

	if f.err = f.dump(); f.err != nil {
		f.logger.Error().Err(f.err).
			Str("file", f.path).
			Int("commands", len(f.cmds)).
			Msg("flush failed, buffered commands dropped")
		return
	}
	f.logger.Debug().
		Str("file", f.path).
		Int("commands", len(f.cmds)).
		Bool("at_exit", f.atExit).
		Msg("history flushed")
}

// dump merges the snapshot into the document on disk and writes it back.
func (f *FlushTask) dump() error {
	lj, err := lazyjson.Open(f.path)
	if err != nil {
		return fmt.Errorf("reading history file: %w", err)
	}
	doc, err := lj.Load()
	if err != nil {
		return err
	}

	var cmds []any
	if raw, ok := doc["cmds"]; ok && raw != nil {
		existing, ok := raw.([]any)
		if !ok {
			return fmt.Errorf("%s: cmds is not an array: %w", f.path, lazyjson.ErrInvalid)
		}
		cmds = existing
	}
	for _, c := range f.cmds {
		cmds = append(cmds, c)
	}
	if cmds == nil {
		cmds = []any{}
	}
	doc["cmds"] = cmds

	if f.atExit {
		var start any
		if ts, ok := doc["ts"].([]any); ok && len(ts) > 0 {
			start = ts[0]
		}
		doc["ts"] = []any{start, session.Epoch(f.now())}
		doc["locked"] = false
	}

	if err := lazyjson.WriteFile(f.path, doc); err != nil {
		return fmt.Errorf("writing history file: %w", err)
	}
	return nil
}
