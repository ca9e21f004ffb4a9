package history_test

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/fakeyudi/shlog/internal/history"
	"github.com/fakeyudi/shlog/internal/lazyjson"
	"github.com/fakeyudi/shlog/internal/session"
)

func newHistory(t *testing.T, opts history.Options) *history.History {
	t.Helper()
	if opts.DataDir == "" && opts.Filename == "" {
		opts.DataDir = t.TempDir()
	}
	if opts.SessionID == "" {
		opts.SessionID = "test"
	}
	h, err := history.New(opts)
	require.NoError(t, err)
	return h
}

func cmd(inp string, rtn int) history.Command {
	return history.Command{Input: inp, Return: rtn, Times: [2]float64{1, 2}}
}

func TestNewWritesLockedSessionFile(t *testing.T) {
	clock := time.Unix(1000, 0)
	h := newHistory(t, history.Options{
		Meta: map[string]any{"shell": "zsh", "locked": "overwritten"},
		Now:  func() time.Time { return clock },
	})

	require.Equal(t, "test", h.SessionID())
	require.Equal(t, session.Path(h.DataDir(), "test"), h.Filename())
	require.Equal(t, history.DefaultBufferSize, h.BufferSize())
	require.Equal(t, history.DefaultSize, h.GCSize())

	f, err := lazyjson.Open(h.Filename())
	require.NoError(t, err)
	assert.True(t, f.Get("locked").Bool())
	assert.Equal(t, "zsh", f.Get("shell").String())
	assert.Equal(t, "test", f.Get("sessionid").String())
	assert.True(t, f.Get("cmds").IsArray())
	assert.Equal(t, 0, f.Len("cmds"))
	assert.Equal(t, 1000.0, f.Get("ts.0").Float())
	assert.True(t, f.Get("ts.1").IsNull())
}

func TestNewGeneratesSessionID(t *testing.T) {
	h, err := history.New(history.Options{DataDir: t.TempDir()})
	require.NoError(t, err)
	require.Len(t, h.SessionID(), 36)
	require.FileExists(t, h.Filename())
}

func TestAppendFlushesWhenBufferFills(t *testing.T) {
	h := newHistory(t, history.Options{BufferSize: 2})

	require.Nil(t, h.Append(cmd("ls", 0)))
	require.Equal(t, 1, h.BufferLen())

	task := h.Append(cmd("pwd", 0))
	require.NotNil(t, task)
	require.Equal(t, 2, task.Len())
	require.False(t, task.AtExit())
	require.NoError(t, task.Wait())
	require.Equal(t, 0, h.BufferLen())
	require.Equal(t, 2, h.Len())

	doc, err := session.Load(h.Filename())
	require.NoError(t, err)
	require.Len(t, doc.Commands, 2)
	require.Equal(t, "ls", doc.Commands[0].Input)
	require.Equal(t, "pwd", doc.Commands[1].Input)
	require.True(t, doc.Locked)
}

func TestFlushOfEmptyBufferIsNil(t *testing.T) {
	h := newHistory(t, history.Options{})
	require.Nil(t, h.Flush(false))
	require.Nil(t, h.Flush(true))
}

func TestIgnoreDups(t *testing.T) {
	h := newHistory(t, history.Options{IgnoreDups: true})
	h.Append(cmd("ls", 0))
	h.Append(cmd("ls", 0))
	h.Append(cmd("pwd", 0))
	h.Append(cmd("ls", 0))
	require.Equal(t, 3, h.Len())

	inputs, err := history.All[string](h.Inputs())
	require.NoError(t, err)
	require.Equal(t, []string{"ls", "pwd", "ls"}, inputs)
}

func TestIgnoreErr(t *testing.T) {
	h := newHistory(t, history.Options{IgnoreErr: true})
	h.Append(cmd("true", 0))
	h.Append(cmd("false", 1))
	h.Append(cmd("exit 2", 2))
	require.Equal(t, 1, h.Len())
}

func TestWithoutHistControlEveryCommandIsKept(t *testing.T) {
	h := newHistory(t, history.Options{})
	h.Append(cmd("ls", 0))
	h.Append(cmd("ls", 0))
	h.Append(cmd("false", 1))
	require.Equal(t, 3, h.Len())
}

// Property: Len counts every retained append, however many flushes fired.
func TestLengthInvariant(t *testing.T) {
	dir := t.TempDir()
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 5).Draw(t, "capacity")
		n := rapid.IntRange(0, 20).Draw(t, "n")

		h, err := history.New(history.Options{DataDir: dir, BufferSize: capacity})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		var tasks []*history.FlushTask
		for i := 0; i < n; i++ {
			if task := h.Append(cmd("echo", 0)); task != nil {
				tasks = append(tasks, task)
			}
			if h.Len() != i+1 {
				t.Fatalf("Len after %d appends: got %d", i+1, h.Len())
			}
			if h.BufferLen() >= capacity {
				t.Fatalf("BufferLen %d reached capacity %d", h.BufferLen(), capacity)
			}
		}
		for _, task := range tasks {
			if err := task.Wait(); err != nil {
				t.Fatalf("flush: %v", err)
			}
		}
		if h.Len() != n {
			t.Fatalf("Len after flushes: got %d, want %d", h.Len(), n)
		}
		if err := h.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if h.Len() != n {
			t.Fatalf("Len after Close: got %d, want %d", h.Len(), n)
		}
	})
}

// Property: fields read back in append order whether they resolve from the
// buffer or from disk.
func TestFieldRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 4).Draw(t, "capacity")
		n := rapid.IntRange(1, 12).Draw(t, "n")
		h, err := history.New(history.Options{DataDir: dir, BufferSize: capacity})
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		// Hooks may send arbitrary bytes, not only valid UTF-8.
		text := func(minLen int) *rapid.Generator[string] {
			return rapid.OneOf(
				rapid.StringN(minLen, 20, -1),
				rapid.Map(rapid.SliceOfN(rapid.Byte(), minLen, 20), func(b []byte) string { return string(b) }),
			)
		}

		want := make([]history.Command, n)
		for i := range want {
			start := float64(rapid.IntRange(0, 1_000_000).Draw(t, "start"))
			c := history.Command{
				Input:  text(1).Draw(t, "inp"),
				Output: text(0).Draw(t, "out"),
				Return: rapid.IntRange(0, 3).Draw(t, "rtn"),
				Times:  [2]float64{start, start + 1},
			}
			h.Append(c)
			c.Input = strings.ToValidUTF8(c.Input, "\uFFFD")
			c.Output = strings.ToValidUTF8(c.Output, "\uFFFD")
			want[i] = c
		}

		for i, c := range want {
			inp, err := h.Inputs().At(i)
			if err != nil {
				t.Fatalf("Inputs().At(%d): %v", i, err)
			}
			out, err := h.Outputs().At(i)
			if err != nil {
				t.Fatalf("Outputs().At(%d): %v", i, err)
			}
			rtn, err := h.Returns().At(i)
			if err != nil {
				t.Fatalf("Returns().At(%d): %v", i, err)
			}
			ts, err := h.Timestamps().At(i)
			if err != nil {
				t.Fatalf("Timestamps().At(%d): %v", i, err)
			}
			if inp != c.Input || out != c.Output || rtn != c.Return || ts != c.Times {
				t.Fatalf("command %d: got (%q, %q, %d, %v), want %+v", i, inp, out, rtn, ts, c)
			}
		}

		all, err := h.Commands()
		if err != nil {
			t.Fatalf("Commands: %v", err)
		}
		if len(all) != n {
			t.Fatalf("Commands: got %d, want %d", len(all), n)
		}
		for i := range want {
			if all[i] != want[i] {
				t.Fatalf("Commands()[%d] = %+v, want %+v", i, all[i], want[i])
			}
		}
		if err := h.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})
}

func TestReadQueuesBehindPendingFlush(t *testing.T) {
	h := newHistory(t, history.Options{BufferSize: 2})
	h.Append(cmd("first", 0))
	task := h.Append(cmd("second", 0))
	require.NotNil(t, task)

	// The read is enqueued after the flush, so the flushed commands are on
	// disk by the time it runs.
	inp, err := h.Inputs().At(0)
	require.NoError(t, err)
	require.Equal(t, "first", inp)
	require.NoError(t, task.Wait())
}

func TestInvalidUTF8ReadsTheSameBeforeAndAfterFlush(t *testing.T) {
	h := newHistory(t, history.Options{BufferSize: 2})
	require.Nil(t, h.Append(cmd("echo \xff\xfe", 0)))

	buffered, err := h.Inputs().At(0)
	require.NoError(t, err)

	task := h.Append(cmd("ls", 0))
	require.NotNil(t, task)
	require.NoError(t, task.Wait())
	require.Equal(t, 0, h.BufferLen())

	flushed, err := h.Inputs().At(0)
	require.NoError(t, err)
	require.Equal(t, buffered, flushed)
	require.Equal(t, "echo \uFFFD", flushed)
}

func TestFieldIndexing(t *testing.T) {
	h := newHistory(t, history.Options{BufferSize: 3})
	for _, in := range []string{"a", "b", "c", "d", "e"} {
		if task := h.Append(cmd(in, 0)); task != nil {
			require.NoError(t, task.Wait())
		}
	}

	last, err := h.Inputs().At(-1)
	require.NoError(t, err)
	require.Equal(t, "e", last)

	first, err := h.Inputs().At(-5)
	require.NoError(t, err)
	require.Equal(t, "a", first)

	_, err = h.Inputs().At(5)
	require.ErrorIs(t, err, history.ErrIndex)
	_, err = h.Inputs().At(-6)
	require.ErrorIs(t, err, history.ErrIndex)

	idx, err := history.ParseIndex("1:4")
	require.NoError(t, err)
	got, err := history.Slice[string](h.Inputs(), idx)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c", "d"}, got)

	idx, err = history.ParseIndex("::-2")
	require.NoError(t, err)
	got, err = history.Slice[string](h.Inputs(), idx)
	require.NoError(t, err)
	require.Equal(t, []string{"e", "c", "a"}, got)
}

func TestEmptyHistoryIndexing(t *testing.T) {
	h := newHistory(t, history.Options{})
	_, err := h.Inputs().At(0)
	require.ErrorIs(t, err, history.ErrEmpty)

	got, err := history.All[string](h.Inputs())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestCloseStampsEndAndUnlocks(t *testing.T) {
	clock := time.Unix(1000, 0)
	h := newHistory(t, history.Options{Now: func() time.Time { return clock }})
	h.Append(cmd("ls", 0))
	clock = time.Unix(2000, 0)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	doc, err := session.Load(h.Filename())
	require.NoError(t, err)
	require.False(t, doc.Locked)
	require.Len(t, doc.Commands, 1)
	require.NotNil(t, doc.Times[0])
	require.NotNil(t, doc.Times[1])
	require.Equal(t, 1000.0, *doc.Times[0])
	require.Equal(t, 2000.0, *doc.Times[1])
}

func TestCloseWithEmptyBufferStillUnlocks(t *testing.T) {
	h := newHistory(t, history.Options{})
	require.NoError(t, h.Close())

	info, err := session.ReadInfo(h.Filename(), time.Now())
	require.NoError(t, err)
	require.False(t, info.Locked)
	require.False(t, info.End.IsZero())
	require.Zero(t, info.Commands)
}

func TestCloseWaitsForBackgroundFlushes(t *testing.T) {
	h := newHistory(t, history.Options{BufferSize: 1})
	for _, in := range []string{"a", "b", "c"} {
		h.Append(cmd(in, 0))
	}
	h.Append(cmd("d", 0))
	require.NoError(t, h.Close())

	doc, err := session.Load(h.Filename())
	require.NoError(t, err)
	var inputs []string
	for _, c := range doc.Commands {
		inputs = append(inputs, c.Input)
	}
	require.Equal(t, []string{"a", "b", "c", "d"}, inputs)
}

func TestFlushFailureIsReported(t *testing.T) {
	h := newHistory(t, history.Options{BufferSize: 1})
	require.NoError(t, os.Remove(h.Filename()))

	task := h.Append(cmd("ls", 0))
	require.NotNil(t, task)
	err := task.Wait()
	require.Error(t, err)
	require.True(t, errors.Is(err, os.ErrNotExist))

	require.Error(t, h.Close())
	// The failed batch is not retried; the length still counts it.
	require.Equal(t, 1, h.Len())
}
