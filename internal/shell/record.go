package shell

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fakeyudi/shlog/internal/session"
)

// Directives a hook may send in place of a record line.
const (
	DirectiveFlush = "#flush"
	DirectiveGC    = "#gc"
)

// ErrMalformedRecord is returned for a line that is neither a JSON command
// nor a tab-separated record.
var ErrMalformedRecord = errors.New("malformed record line")

var (
	escaper   = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\t", `\t`)
	unescaper = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\t`, "\t")
)

// ParseRecord decodes one line sent by a recorder hook. Two encodings are
// accepted: a JSON object with the session file's command keys, or
// <start>\t<end>\t<rtn>\t<input> with epoch-second times and the input's
// backslashes, newlines and tabs escaped.
func ParseRecord(line string) (session.Command, error) {
	line = strings.TrimRight(line, "\r")
	if strings.HasPrefix(strings.TrimSpace(line), "{") {
		var cmd session.Command
		if err := json.Unmarshal([]byte(line), &cmd); err != nil {
			return session.Command{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		if cmd.Input == "" {
			return session.Command{}, fmt.Errorf("%w: missing inp", ErrMalformedRecord)
		}
		return cmd, nil
	}

	fields := strings.SplitN(line, "\t", 4)
	if len(fields) != 4 || fields[3] == "" {
		return session.Command{}, fmt.Errorf("%w: want 4 tab-separated fields", ErrMalformedRecord)
	}
	start, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return session.Command{}, fmt.Errorf("%w: start time: %v", ErrMalformedRecord, err)
	}
	end, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return session.Command{}, fmt.Errorf("%w: end time: %v", ErrMalformedRecord, err)
	}
	rtn, err := strconv.Atoi(fields[2])
	if err != nil {
		return session.Command{}, fmt.Errorf("%w: return code: %v", ErrMalformedRecord, err)
	}
	return session.Command{
		Input:  unescaper.Replace(fields[3]),
		Return: rtn,
		Times:  [2]float64{start, end},
	}, nil
}

// FormatRecord encodes cmd as a tab-separated record line, without the
// trailing newline. Output is not carried by this encoding.
func FormatRecord(cmd session.Command) string {
	return strconv.FormatFloat(cmd.Times[0], 'f', -1, 64) + "\t" +
		strconv.FormatFloat(cmd.Times[1], 'f', -1, 64) + "\t" +
		strconv.Itoa(cmd.Return) + "\t" +
		escaper.Replace(cmd.Input)
}
