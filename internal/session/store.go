// Package session names, lists, and decodes shlog session files.
//
// One shell session is one file, shlog-<sessionid>.json, in the data
// directory. Listing reads only the header fields of each file (locked, ts,
// the length of cmds) through lazyjson, never the command bodies.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fakeyudi/shlog/internal/lazyjson"
)

// ErrNoSession is returned when no file exists for a requested session.
var ErrNoSession = errors.New("no such session")

const (
	filePrefix = "shlog-"
	fileExt    = ".json"
)

// DataDir returns the shlog-specific XDG data directory.
// Path: $XDG_DATA_HOME/shlog or ~/.local/share/shlog
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "shlog"), nil
}

// FileName returns the base file name for a session id.
func FileName(id string) string {
	return filePrefix + id + fileExt
}

// Path returns the session file path for id inside dir.
func Path(dir, id string) string {
	return filepath.Join(dir, FileName(id))
}

// IDFromPath extracts the session id from a session file name, reporting
// false when the name does not follow the shlog-<id>.json pattern.
func IDFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, filePrefix) || !strings.HasSuffix(base, fileExt) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(base, filePrefix), fileExt)
	return id, id != ""
}

// Find returns the path of session id in dir, or ErrNoSession.
func Find(dir, id string) (string, error) {
	path := Path(dir, id)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", id, ErrNoSession)
		}
		return "", err
	}
	return path, nil
}

// ReadInfo reads the header of one session file. now stands in for the
// close time of a session that has not ended.
func ReadInfo(path string, now time.Time) (Info, error) {
	f, err := lazyjson.Open(path)
	if err != nil {
		return Info{}, err
	}
	cmds := f.Get("cmds")
	if !cmds.IsArray() {
		return Info{}, fmt.Errorf("%s: missing cmds array: %w", path, lazyjson.ErrInvalid)
	}

	info := Info{
		Path:      path,
		SessionID: f.Get("sessionid").String(),
		Commands:  cmds.Len(),
		Locked:    f.Get("locked").Bool(),
		Closed:    now,
	}
	if start := f.Get("ts.0"); !start.IsNull() {
		info.Start = FromEpoch(start.Float())
	}
	if end := f.Get("ts.1"); !end.IsNull() {
		info.End = FromEpoch(end.Float())
		info.Closed = info.End
	}
	return info, nil
}

// List returns every readable session file in dir sorted by close time,
// oldest first. Files that fail to parse are skipped; when onlyUnlocked is
// set, files whose owning session is still active are skipped too.
func List(dir string, onlyUnlocked bool, now time.Time) ([]Info, error) {
	paths, err := filepath.Glob(filepath.Join(dir, filePrefix+"*"+fileExt))
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(paths))
	for _, p := range paths {
		info, err := ReadInfo(p, now)
		if err != nil {
			continue
		}
		if onlyUnlocked && info.Locked {
			continue
		}
		infos = append(infos, info)
	}

	sort.SliceStable(infos, func(i, j int) bool {
		if !infos[i].Closed.Equal(infos[j].Closed) {
			return infos[i].Closed.Before(infos[j].Closed)
		}
		return infos[i].Path < infos[j].Path
	})
	return infos, nil
}

// Load reads and fully decodes the session file at path.
// Returns ErrNoSession if the file does not exist.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNoSession)
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", path, err)
	}
	return &d, nil
}
