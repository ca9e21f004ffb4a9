package session

import (
	"math"
	"time"
)

// Command is one executed command as stored in a session file's cmds array.
// Fields are declared in key order so an encoded Command keeps sorted keys.
type Command struct {
	Input  string     `json:"inp"`
	Output string     `json:"out,omitempty"`
	Return int        `json:"rtn"`
	Times  [2]float64 `json:"ts"` // [start, end] in epoch seconds
}

// Start returns the time the command started.
func (c Command) Start() time.Time { return FromEpoch(c.Times[0]) }

// End returns the time the command finished.
func (c Command) End() time.Time { return FromEpoch(c.Times[1]) }

// Document is a fully decoded session file.
type Document struct {
	Commands  []Command   `json:"cmds"`
	Times     [2]*float64 `json:"ts"` // [start, end-or-null]
	Locked    bool        `json:"locked"`
	SessionID string      `json:"sessionid"`
}

// Info summarizes a session file from its header fields only.
type Info struct {
	Path      string
	SessionID string
	Start     time.Time
	End       time.Time // zero while the session is still open
	Closed    time.Time // End, or the listing time for an open session
	Commands  int
	Locked    bool
}

// Epoch converts t to fractional epoch seconds.
func Epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// FromEpoch converts fractional epoch seconds to a time.Time.
func FromEpoch(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}
