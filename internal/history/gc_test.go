package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/shlog/internal/history"
	"github.com/fakeyudi/shlog/internal/lazyjson"
	"github.com/fakeyudi/shlog/internal/session"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want history.Size
	}{
		{"8128 commands", history.Size{Limit: 8128, Unit: history.UnitCommands}},
		{"10 cmds", history.Size{Limit: 10, Unit: history.UnitCommands}},
		{"3 f", history.Size{Limit: 3, Unit: history.UnitFiles}},
		{"3 files", history.Size{Limit: 3, Unit: history.UnitFiles}},
		{"90 s", history.Size{Limit: 90, Unit: history.UnitSeconds}},
		{"2 min", history.Size{Limit: 120, Unit: history.UnitSeconds}},
		{"1.5h", history.Size{Limit: 5400, Unit: history.UnitSeconds}},
		{"30 d", history.Size{Limit: 30 * 86400, Unit: history.UnitSeconds}},
		{"512 b", history.Size{Limit: 512, Unit: history.UnitBytes}},
		{"2 kb", history.Size{Limit: 2048, Unit: history.UnitBytes}},
		{"10mb", history.Size{Limit: 10 << 20, Unit: history.UnitBytes}},
		{"1 GB", history.Size{Limit: 1 << 30, Unit: history.UnitBytes}},
	}
	for _, tt := range tests {
		got, err := history.ParseSize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseSizeErrors(t *testing.T) {
	_, err := history.ParseSize("10 parsecs")
	require.ErrorIs(t, err, history.ErrUnknownUnit)

	for _, in := range []string{"", "commands", "-1 files", "x1 b"} {
		_, err := history.ParseSize(in)
		require.Error(t, err, in)
	}
}

func TestSizeString(t *testing.T) {
	require.Equal(t, "8128 commands", history.DefaultSize.String())
	require.Equal(t, "1.5 s", history.Size{Limit: 1.5, Unit: history.UnitSeconds}.String())
}

// writeClosed writes a finished session file that closed at epoch end.
func writeClosed(t *testing.T, dir, id string, ncmds int, end float64, locked bool) string {
	t.Helper()
	cmds := make([]session.Command, ncmds)
	for i := range cmds {
		cmds[i] = session.Command{Input: "echo", Times: [2]float64{end - 1, end}}
	}
	var endVal any = end
	if locked {
		endVal = nil
	}
	path := session.Path(dir, id)
	require.NoError(t, lazyjson.WriteFile(path, map[string]any{
		"cmds":      cmds,
		"locked":    locked,
		"sessionid": id,
		"ts":        []any{end - 10, endVal},
	}))
	return path
}

func TestCollectorRemovesOldestByFileCount(t *testing.T) {
	dir := t.TempDir()
	old := writeClosed(t, dir, "old", 1, 100, false)
	mid := writeClosed(t, dir, "mid", 1, 200, false)
	writeClosed(t, dir, "new", 1, 300, false)

	c := history.NewCollector(dir, history.Size{Limit: 1, Unit: history.UnitFiles},
		history.WithClock(func() time.Time { return time.Unix(1000, 0) }))
	res, err := c.Run(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{old, mid}, res.Removed)
	require.NoFileExists(t, old)
	require.NoFileExists(t, mid)
}

func TestCollectorNeverRemovesLockedFiles(t *testing.T) {
	dir := t.TempDir()
	locked := writeClosed(t, dir, "active", 0, 1, true)

	for _, size := range []history.Size{
		{Limit: 0, Unit: history.UnitCommands},
		{Limit: 0, Unit: history.UnitFiles},
		{Limit: 0, Unit: history.UnitSeconds},
	} {
		closed := writeClosed(t, dir, "done", 0, 1, false)
		res, err := history.NewCollector(dir, size).Run(context.Background())
		require.NoError(t, err, size.String())
		require.Equal(t, []string{closed}, res.Removed, size.String())
		require.FileExists(t, locked, size.String())
	}
}

func TestCollectorKeepsEverythingWhenNewestOverflows(t *testing.T) {
	dir := t.TempDir()
	writeClosed(t, dir, "old", 3, 1, false)
	writeClosed(t, dir, "new", 50, 2, false)

	for _, size := range []history.Size{
		{Limit: 10, Unit: history.UnitCommands},
		{Limit: 10, Unit: history.UnitBytes},
	} {
		res, err := history.NewCollector(dir, size).Run(context.Background())
		require.NoError(t, err, size.String())
		require.Empty(t, res.Removed, size.String())
	}
}

func TestCollectorUnknownUnit(t *testing.T) {
	_, err := history.NewCollector(t.TempDir(), history.Size{Limit: 1, Unit: "parsecs"}).Run(context.Background())
	require.ErrorIs(t, err, history.ErrUnknownUnit)
}

func TestCollectorWaitsForReady(t *testing.T) {
	dir := t.TempDir()
	path := writeClosed(t, dir, "old", 1, 100, false)

	ready := make(chan struct{})
	c := history.NewCollector(dir, history.Size{Limit: 0, Unit: history.UnitFiles}, history.WithReady(ready))
	c.Start(context.Background())

	select {
	case <-c.Done():
		t.Fatal("collector ran before ready was released")
	case <-time.After(20 * time.Millisecond):
	}
	require.FileExists(t, path)

	close(ready)
	res, err := c.Wait()
	require.NoError(t, err)
	require.Equal(t, []string{path}, res.Removed)
}

func TestCollectorCancelledBeforeReady(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := history.NewCollector(t.TempDir(), history.DefaultSize, history.WithReady(make(chan struct{})))
	c.Start(ctx)
	cancel()
	_, err := c.Wait()
	require.ErrorIs(t, err, context.Canceled)
}

func TestHistoryGCSkipsItsOwnSession(t *testing.T) {
	dir := t.TempDir()
	old := writeClosed(t, dir, "old", 3, 100, false)

	h := newHistory(t, history.Options{DataDir: dir, SessionID: "live"})
	h.Append(cmd("ls", 0))

	size := history.Size{Limit: 0, Unit: history.UnitFiles}
	res, err := h.GC(context.Background(), &size).Wait()
	require.NoError(t, err)
	require.Equal(t, []string{old}, res.Removed)
	require.FileExists(t, h.Filename())
	require.NoError(t, h.Close())
}

func TestHistoryStartsCollectorWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	old := writeClosed(t, dir, "old", 3, 100, false)

	ready := make(chan struct{})
	h := newHistory(t, history.Options{
		DataDir: dir,
		GC:      true,
		GCSize:  history.Size{Limit: 0, Unit: history.UnitFiles},
		Ready:   ready,
	})
	require.FileExists(t, old)
	close(ready)

	require.Eventually(t, func() bool {
		_, err := session.ReadInfo(old, time.Now())
		return err != nil
	}, time.Second, 5*time.Millisecond)
	require.FileExists(t, h.Filename())
	require.NoError(t, h.Close())
}
