package shell

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Entry is one command from a shell's own history file. Time is zero when
// the file carries no timestamp for it.
type Entry struct {
	Input string
	Time  time.Time
}

// HistoryParser parses a shell history file.
type HistoryParser func(r io.Reader) ([]Entry, error)

// HistoryFile returns the history file of shell and its parser. $HISTFILE
// overrides the default location when it is set.
func HistoryFile(shell string) (string, HistoryParser, error) {
	var (
		parser HistoryParser
		name   string
	)
	switch shell {
	case "bash":
		parser, name = ParseBashHistory, ".bash_history"
	case "zsh":
		parser, name = ParseZshHistory, ".zsh_history"
	default:
		return "", nil, fmt.Errorf("unsupported shell history: %s (supported: zsh, bash)", shell)
	}

	if path := os.Getenv("HISTFILE"); path != "" && filepath.Base(os.Getenv("SHELL")) == shell {
		return path, parser, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", nil, err
	}
	return filepath.Join(home, name), parser, nil
}

// ReadHistory reads the history file of shell. A missing file is an empty
// history.
func ReadHistory(shell string) ([]Entry, error) {
	path, parser, err := HistoryFile(shell)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return parser(f)
}

// ParseBashHistory parses ~/.bash_history.
//
// Format:
//   - Plain: one command per line (no timestamps).
//   - With HISTTIMEFORMAT: a `#<epoch>` line precedes each command.
func ParseBashHistory(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)

	var pendingTime time.Time

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "#") {
			if epoch, err := strconv.ParseInt(strings.TrimPrefix(line, "#"), 10, 64); err == nil {
				pendingTime = time.Unix(epoch, 0)
				continue
			}
			// Otherwise it's a comment.
			pendingTime = time.Time{}
			continue
		}

		if line == "" {
			pendingTime = time.Time{}
			continue
		}

		entries = append(entries, Entry{Input: line, Time: pendingTime})
		pendingTime = time.Time{}
	}

	return entries, scanner.Err()
}

// ParseZshHistory parses ~/.zsh_history.
//
// Extended format: `: <epoch>:<elapsed>;<command>`, with a trailing
// backslash continuing a multi-line command on the next line.
// Plain fallback: one command per line.
func ParseZshHistory(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		current *Entry
		cont    bool
	)
	for scanner.Scan() {
		line := scanner.Text()

		if cont && current != nil {
			current.Input += "\n" + strings.TrimSuffix(line, `\`)
			cont = strings.HasSuffix(line, `\`)
			continue
		}
		if line == "" {
			continue
		}

		e := Entry{Input: line}
		if epoch, cmd, ok := splitExtended(line); ok {
			e = Entry{Input: cmd, Time: time.Unix(epoch, 0)}
		}
		cont = strings.HasSuffix(e.Input, `\`)
		e.Input = strings.TrimSuffix(e.Input, `\`)
		entries = append(entries, e)
		current = &entries[len(entries)-1]
	}

	return entries, scanner.Err()
}

// splitExtended splits `: <epoch>:<elapsed>;<command>`.
func splitExtended(line string) (int64, string, bool) {
	rest, ok := strings.CutPrefix(line, ": ")
	if !ok {
		return 0, "", false
	}
	timePart, cmd, ok := strings.Cut(rest, ";")
	if !ok {
		return 0, "", false
	}
	epochStr, _, ok := strings.Cut(timePart, ":")
	if !ok {
		return 0, "", false
	}
	epoch, err := strconv.ParseInt(epochStr, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return epoch, cmd, true
}
