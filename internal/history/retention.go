package history

import (
	"time"

	"github.com/fakeyudi/shlog/internal/session"
)

// The retention policies below take unlocked session files sorted by close
// time, oldest first, and return the files to delete. Each keeps the newest
// contiguous run of files that fits its limit.

// CommandsToRemove keeps the newest files whose command counts sum to at
// most limit. Files with no commands are always removed. When even the
// newest file is over the limit, only the empty files are removed.
func CommandsToRemove(limit int, files []session.Info) []session.Info {
	kept, total := 0, 0
	for i := len(files) - 1; i >= 0; i-- {
		if total+files[i].Commands > limit {
			break
		}
		total += files[i].Commands
		kept++
	}

	cut := len(files) - kept
	if kept == 0 {
		cut = 0
	}
	rm := make([]session.Info, 0, cut)
	rm = append(rm, files[:cut]...)
	for _, f := range files[cut:] {
		if f.Commands == 0 {
			rm = append(rm, f)
		}
	}
	return rm
}

// FilesToRemove keeps the newest limit files.
func FilesToRemove(limit int, files []session.Info) []session.Info {
	if limit < 0 {
		limit = 0
	}
	if len(files) <= limit {
		return nil
	}
	return append([]session.Info(nil), files[:len(files)-limit]...)
}

// AgeToRemove removes files that closed at least limit before now.
func AgeToRemove(limit time.Duration, now time.Time, files []session.Info) []session.Info {
	var rm []session.Info
	for _, f := range files {
		if now.Sub(f.Closed) < limit {
			break
		}
		rm = append(rm, f)
	}
	return rm
}

// BytesToRemove keeps the newest files whose sizes sum to at most limit.
// A file whose size cannot be read counts as empty. When even the newest
// file is over the limit, nothing is removed.
func BytesToRemove(limit int64, files []session.Info, sizeOf func(path string) (int64, error)) []session.Info {
	kept := 0
	var total int64
	for i := len(files) - 1; i >= 0; i-- {
		size, err := sizeOf(files[i].Path)
		if err != nil {
			size = 0
		}
		if total+size > limit {
			break
		}
		total += size
		kept++
	}
	if kept == 0 {
		return nil
	}
	return append([]session.Info(nil), files[:len(files)-kept]...)
}
