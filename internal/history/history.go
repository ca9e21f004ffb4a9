// Package history keeps the command log of one shell session.
//
// Appended commands collect in an in-memory buffer; once the buffer is full
// it is drained into a FlushTask that appends the commands to the session
// file in the background. Every access to that file, whether a flush or a
// lazy read through a Field, goes through the session's Queue so they are
// applied strictly in arrival order.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fakeyudi/shlog/internal/lazyjson"
	"github.com/fakeyudi/shlog/internal/session"
)

// DefaultBufferSize is the number of commands held in memory before a
// background flush is dispatched.
const DefaultBufferSize = 100

// Command is one executed command.
type Command = session.Command

// Options configures a History. The zero value is usable: it generates a
// session id and writes into the default data directory.
type Options struct {
	Filename   string
	SessionID  string
	DataDir    string
	BufferSize int
	GC         bool
	GCSize     Size
	IgnoreDups bool
	IgnoreErr  bool
	Meta       map[string]any
	Logger     *zerolog.Logger
	Ready      <-chan struct{} // released when the collector may start
	Now        func() time.Time
}

// History is the append-only command log of one session.
type History struct {
	sessionID  string
	filename   string
	dataDir    string
	bufferSize int
	ignoreDups bool
	ignoreErr  bool
	gcSize     Size
	now        func() time.Time
	logger     zerolog.Logger
	queue      *Queue

	mu        sync.Mutex
	buffer    []Command
	length    int
	lastInput string
	hasLast   bool
	closed    bool
	firstErr  error
	flushes   sync.WaitGroup
	cancelGC  context.CancelFunc

	timestamps *Field[[2]float64]
	inputs     *Field[string]
	outputs    *Field[string]
	returns    *Field[int]
}

// New creates the session file and returns its History.
func New(opts Options) (*History, error) {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	id := opts.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	dir := opts.DataDir
	filename := opts.Filename
	switch {
	case filename != "" && dir == "":
		dir = filepath.Dir(filename)
	case dir == "":
		d, err := session.DataDir()
		if err != nil {
			return nil, fmt.Errorf("resolving data dir: %w", err)
		}
		dir = d
	}
	if filename == "" {
		filename = session.Path(dir, id)
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	bufferSize := opts.BufferSize
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	gcSize := opts.GCSize
	if gcSize.Unit == "" {
		gcSize = DefaultSize
	}

	doc := make(map[string]any, len(opts.Meta)+4)
	for k, v := range opts.Meta {
		doc[k] = v
	}
	doc["cmds"] = []any{}
	doc["sessionid"] = id
	doc["ts"] = []any{session.Epoch(now()), nil}
	doc["locked"] = true
	if err := lazyjson.WriteFile(filename, doc); err != nil {
		return nil, fmt.Errorf("creating session file: %w", err)
	}

	h := &History{
		sessionID:  id,
		filename:   filename,
		dataDir:    dir,
		bufferSize: bufferSize,
		ignoreDups: opts.IgnoreDups,
		ignoreErr:  opts.IgnoreErr,
		gcSize:     gcSize,
		now:        now,
		logger:     logger.With().Str("component", "history").Str("session", id).Logger(),
		queue:      NewQueue(),
	}
	h.timestamps = newField("ts", h, [2]float64{}, func(c Command) [2]float64 { return c.Times })
	h.inputs = newField("inp", h, "", func(c Command) string { return c.Input })
	h.outputs = newField("out", h, "", func(c Command) string { return c.Output })
	h.returns = newField("rtn", h, 0, func(c Command) int { return c.Return })

	if opts.GC {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelGC = cancel
		NewCollector(dir, gcSize,
			WithReady(opts.Ready),
			WithLogger(&logger),
			WithClock(now),
		).Start(ctx)
	}

	h.logger.Debug().Str("file", filename).Int("buffer_size", bufferSize).Msg("history opened")
	return h, nil
}

// Append records cmd. It returns the background flush it dispatched when
// the buffer filled up, and nil otherwise. Invalid UTF-8 in the input and
// output is replaced with U+FFFD, as it would be once written to disk.
func (h *History) Append(cmd Command) *FlushTask {
	cmd.Input = strings.ToValidUTF8(cmd.Input, "\uFFFD")
	cmd.Output = strings.ToValidUTF8(cmd.Output, "\uFFFD")

	h.mu.Lock()
	if h.ignoreDups && h.hasLast && cmd.Input == h.lastInput {
		h.mu.Unlock()
		return nil
	}
	if h.ignoreErr && cmd.Return != 0 {
		h.mu.Unlock()
		return nil
	}
	h.buffer = append(h.buffer, cmd)
	h.length++
	h.lastInput = cmd.Input
	h.hasLast = true
	full := len(h.buffer) >= h.bufferSize
	h.mu.Unlock()

	if full {
		return h.Flush(false)
	}
	return nil
}

// Flush drains the buffer into a FlushTask. A background task runs in its
// own goroutine; an at-exit task runs in the caller once its turn comes.
// Flush returns nil when there is nothing buffered.
func (h *History) Flush(atExit bool) *FlushTask {
	h.mu.Lock()
	if len(h.buffer) == 0 {
		h.mu.Unlock()
		return nil
	}
	task := h.dispatchLocked(atExit)
	h.mu.Unlock()

	h.execute(task)
	return task
}

// Close writes the closing flush, stamping the end time and unlocking the
// file even when nothing is buffered, then waits for outstanding background
// flushes. It returns the first flush error observed.
func (h *History) Close() error {
	h.mu.Lock()
	if h.closed {
		err := h.firstErr
		h.mu.Unlock()
		return err
	}
	h.closed = true
	task := h.dispatchLocked(true)
	h.mu.Unlock()

	h.execute(task)
	h.flushes.Wait()
	if h.cancelGC != nil {
		h.cancelGC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.firstErr
}

// dispatchLocked snapshots and drains the buffer and takes a place in the
// queue. h.mu must be held so no reader can slip in between.
func (h *History) dispatchLocked(atExit bool) *FlushTask {
	snapshot := h.buffer
	h.buffer = nil
	h.flushes.Add(1)
	return newFlushTask(h.filename, snapshot, h.queue.Enqueue(), atExit, h.now, h.logger)
}

func (h *History) execute(task *FlushTask) {
	finish := func() {
		defer h.flushes.Done()
		task.run()
		if task.err != nil {
			h.mu.Lock()
			if h.firstErr == nil {
				h.firstErr = task.err
			}
			h.mu.Unlock()
		}
	}
	if task.atExit {
		finish()
		return
	}
	go finish()
}

// locate resolves index i. Buffered commands are returned directly;
// otherwise a ticket is taken in the same critical section and returned
// with the on-disk index, and the caller must Wait and Done it.
func (h *History) locate(i int) (Command, *Ticket, int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	size := h.length
	if size == 0 {
		return Command{}, nil, 0, ErrEmpty
	}
	idx := i
	if idx < 0 {
		idx += size
	}
	if idx < 0 || idx >= size {
		return Command{}, nil, 0, fmt.Errorf("index %d of %d: %w", i, size, ErrIndex)
	}
	if offset := size - len(h.buffer); idx >= offset {
		return h.buffer[idx-offset], nil, idx, nil
	}
	return Command{}, h.queue.Enqueue(), idx, nil
}

// GC starts a background collection pass over the history's data
// directory. A nil size uses the configured one.
func (h *History) GC(ctx context.Context, size *Size) *Collector {
	s := h.gcSize
	if size != nil {
		s = *size
	}
	c := NewCollector(h.dataDir, s, WithLogger(&h.logger), WithClock(h.now))
	c.Start(ctx)
	return c
}

// Len returns the number of commands recorded, flushed or not.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.length
}

// BufferLen returns the number of commands not yet flushed.
func (h *History) BufferLen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.buffer)
}

func (h *History) SessionID() string { return h.sessionID }
func (h *History) Filename() string  { return h.filename }
func (h *History) DataDir() string   { return h.dataDir }
func (h *History) BufferSize() int   { return h.bufferSize }
func (h *History) GCSize() Size      { return h.gcSize }

func (h *History) Timestamps() *Field[[2]float64] { return h.timestamps }
func (h *History) Inputs() *Field[string]         { return h.inputs }
func (h *History) Outputs() *Field[string]        { return h.outputs }
func (h *History) Returns() *Field[int]           { return h.returns }

// Commands materializes every recorded command, reading flushed ones from
// disk in a single queued pass.
func (h *History) Commands() ([]Command, error) {
	h.mu.Lock()
	buffered := append([]Command(nil), h.buffer...)
	flushed := h.length - len(h.buffer)
	var ticket *Ticket
	if flushed > 0 {
		ticket = h.queue.Enqueue()
	}
	h.mu.Unlock()

	out := make([]Command, 0, flushed+len(buffered))
	if ticket != nil {
		ticket.Wait()
		doc, err := session.Load(h.filename)
		ticket.Done()
		if err != nil {
			return nil, err
		}
		if len(doc.Commands) < flushed {
			return nil, fmt.Errorf("%d of %d flushed commands on disk: %w", len(doc.Commands), flushed, ErrIndex)
		}
		out = append(out, doc.Commands[:flushed]...)
	}
	return append(out, buffered...), nil
}
