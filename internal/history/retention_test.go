package history_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/fakeyudi/shlog/internal/history"
	"github.com/fakeyudi/shlog/internal/session"
)

// infos builds session.Info values named f0, f1, ... oldest first.
func infos(n int, fill func(i int, in *session.Info)) []session.Info {
	out := make([]session.Info, n)
	for i := range out {
		out[i] = session.Info{Path: fmt.Sprintf("f%d", i), SessionID: fmt.Sprint(i)}
		if fill != nil {
			fill(i, &out[i])
		}
	}
	return out
}

func paths(files []session.Info) []string {
	var out []string
	for _, f := range files {
		out = append(out, f.Path)
	}
	return out
}

func withCommands(counts ...int) []session.Info {
	return infos(len(counts), func(i int, in *session.Info) { in.Commands = counts[i] })
}

func TestCommandsToRemove(t *testing.T) {
	files := withCommands(5, 0, 3, 10)
	rm := history.CommandsToRemove(12, files)
	require.Equal(t, []string{"f0", "f1", "f2"}, paths(rm))
}

func TestCommandsToRemoveAlwaysSelectsEmptyFiles(t *testing.T) {
	files := withCommands(5, 3, 0, 4)
	rm := history.CommandsToRemove(100, files)
	require.Equal(t, []string{"f2"}, paths(rm))
}

func TestCommandsToRemoveKeepsAllWhenNewestOverflows(t *testing.T) {
	rm := history.CommandsToRemove(10, withCommands(3, 4, 50))
	require.Empty(t, rm)

	rm = history.CommandsToRemove(10, withCommands(3, 0, 50))
	require.Equal(t, []string{"f1"}, paths(rm))
}

// Property: no file is listed twice, every empty file is listed, and the
// retained files sum to at most the limit unless the newest file alone
// overflows it, in which case only empty files are listed.
func TestCommandsToRemoveProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		counts := rapid.SliceOfN(rapid.IntRange(0, 20), 0, 10).Draw(t, "counts")
		limit := rapid.IntRange(0, 60).Draw(t, "limit")
		files := withCommands(counts...)

		rm := history.CommandsToRemove(limit, files)
		removed := make(map[string]bool)
		for _, f := range rm {
			if removed[f.Path] {
				t.Fatalf("%s listed twice", f.Path)
			}
			removed[f.Path] = true
		}

		total := 0
		for _, f := range files {
			if f.Commands == 0 && !removed[f.Path] {
				t.Fatalf("empty file %s retained", f.Path)
			}
			if !removed[f.Path] {
				total += f.Commands
			}
		}
		if len(files) > 0 && files[len(files)-1].Commands > limit {
			for _, f := range rm {
				if f.Commands != 0 {
					t.Fatalf("removed non-empty %s though the newest file overflows", f.Path)
				}
			}
			return
		}
		if total > limit {
			t.Fatalf("retained %d commands over limit %d", total, limit)
		}
	})
}

func TestFilesToRemove(t *testing.T) {
	files := infos(5, nil)
	require.Equal(t, []string{"f0", "f1"}, paths(history.FilesToRemove(3, files)))
	require.Empty(t, history.FilesToRemove(5, files))
	require.Empty(t, history.FilesToRemove(10, files))
	require.Len(t, history.FilesToRemove(0, files), 5)
}

func TestAgeToRemove(t *testing.T) {
	now := time.Unix(10_000, 0)
	ages := []int{500, 300, 50}
	files := infos(len(ages), func(i int, in *session.Info) {
		in.Closed = now.Add(-time.Duration(ages[i]) * time.Second)
	})

	rm := history.AgeToRemove(100*time.Second, now, files)
	require.Equal(t, []string{"f0", "f1"}, paths(rm))
}

func TestBytesToRemove(t *testing.T) {
	sizes := map[string]int64{"f0": 1000, "f1": 2000, "f2": 500}
	sizeOf := func(path string) (int64, error) { return sizes[path], nil }
	files := infos(3, nil)

	// 500 fits; 500+2000 = 2500 overflows 2200, so both older files go.
	require.Equal(t, []string{"f0", "f1"}, paths(history.BytesToRemove(2200, files, sizeOf)))

	// A run that lands exactly on the limit is kept.
	require.Equal(t, []string{"f0"}, paths(history.BytesToRemove(2500, files, sizeOf)))

	require.Empty(t, history.BytesToRemove(3500, files, sizeOf))
	// Not even the newest file fits: keep everything.
	require.Empty(t, history.BytesToRemove(100, files, sizeOf))
}

func TestBytesToRemoveCountsUnreadableFilesAsEmpty(t *testing.T) {
	sizeOf := func(path string) (int64, error) {
		if path == "f1" {
			return 0, fmt.Errorf("stat %s: gone", path)
		}
		return 100, nil
	}
	require.Empty(t, history.BytesToRemove(200, infos(3, nil), sizeOf))
}
