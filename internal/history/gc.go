package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/fakeyudi/shlog/internal/session"
)

// Unit is the unit a retention Size is measured in.
type Unit string

const (
	UnitCommands Unit = "commands"
	UnitFiles    Unit = "files"
	UnitSeconds  Unit = "s"
	UnitBytes    Unit = "b"
)

// ErrUnknownUnit is returned for a Size whose unit has no retention policy.
var ErrUnknownUnit = errors.New("unknown history size unit")

// Size is a retention limit such as 8128 commands or 30 days.
type Size struct {
	Limit float64
	Unit  Unit
}

// DefaultSize is the retention limit used when none is configured.
var DefaultSize = Size{Limit: 8128, Unit: UnitCommands}

func (s Size) String() string {
	return strconv.FormatFloat(s.Limit, 'f', -1, 64) + " " + string(s.Unit)
}

// unitAliases maps every accepted unit spelling to its canonical unit and
// multiplier.
var unitAliases = map[string]struct {
	unit Unit
	mult float64
}{
	"c": {UnitCommands, 1}, "cmd": {UnitCommands, 1}, "cmds": {UnitCommands, 1},
	"command": {UnitCommands, 1}, "commands": {UnitCommands, 1},

	"f": {UnitFiles, 1}, "file": {UnitFiles, 1}, "files": {UnitFiles, 1},

	"s": {UnitSeconds, 1}, "sec": {UnitSeconds, 1}, "secs": {UnitSeconds, 1},
	"second": {UnitSeconds, 1}, "seconds": {UnitSeconds, 1},
	"m": {UnitSeconds, 60}, "min": {UnitSeconds, 60}, "mins": {UnitSeconds, 60},
	"minute": {UnitSeconds, 60}, "minutes": {UnitSeconds, 60},
	"h": {UnitSeconds, 3600}, "hr": {UnitSeconds, 3600}, "hour": {UnitSeconds, 3600},
	"hours": {UnitSeconds, 3600},
	"d": {UnitSeconds, 86400}, "day": {UnitSeconds, 86400}, "days": {UnitSeconds, 86400},
	"w": {UnitSeconds, 7 * 86400}, "week": {UnitSeconds, 7 * 86400}, "weeks": {UnitSeconds, 7 * 86400},

	"b": {UnitBytes, 1}, "byte": {UnitBytes, 1}, "bytes": {UnitBytes, 1},
	"kb": {UnitBytes, 1 << 10}, "kilobytes": {UnitBytes, 1 << 10},
	"mb": {UnitBytes, 1 << 20}, "megabytes": {UnitBytes, 1 << 20},
	"gb": {UnitBytes, 1 << 30}, "gigabytes": {UnitBytes, 1 << 30},
}

// ParseSize parses a retention limit like "8128 commands", "10mb" or
// "30 d" into its canonical unit.
func ParseSize(s string) (Size, error) {
	s = strings.TrimSpace(s)
	split := strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsSpace(r)
	})
	if split <= 0 {
		return Size{}, fmt.Errorf("history size %q: expected a number followed by a unit", s)
	}

	limit, err := strconv.ParseFloat(s[:split], 64)
	if err != nil {
		return Size{}, fmt.Errorf("history size %q: %w", s, err)
	}
	if limit < 0 {
		return Size{}, fmt.Errorf("history size %q: limit must not be negative", s)
	}

	name := strings.ToLower(strings.TrimSpace(s[split:]))
	alias, ok := unitAliases[name]
	if !ok {
		return Size{}, fmt.Errorf("history size %q: %w: %q", s, ErrUnknownUnit, name)
	}
	return Size{Limit: limit * alias.mult, Unit: alias.unit}, nil
}

// Result reports what a collection pass removed.
type Result struct {
	Removed []string
}

// Collector applies one retention policy to the unlocked session files of
// a data directory.
type Collector struct {
	dir    string
	size   Size
	ready  <-chan struct{}
	logger zerolog.Logger
	now    func() time.Time
	sizeOf func(path string) (int64, error)

	done   chan struct{}
	result Result
	err    error
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithReady makes the collector wait until ready is closed before it
// lists any file.
func WithReady(ready <-chan struct{}) CollectorOption {
	return func(c *Collector) { c.ready = ready }
}

// WithLogger sets the collector's logger.
func WithLogger(logger *zerolog.Logger) CollectorOption {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger.With().Str("component", "gc").Logger()
		}
	}
}

// WithClock overrides the time source used for the age policy and for
// sessions that have not closed.
func WithClock(now func() time.Time) CollectorOption {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCollector returns a collector for dir. It does nothing until Run or
// Start is called.
func NewCollector(dir string, size Size, opts ...CollectorOption) *Collector {
	c := &Collector{
		dir:    dir,
		size:   size,
		logger: zerolog.Nop(),
		now:    time.Now,
		sizeOf: fileSize,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run performs one collection pass and returns the files it removed.
func (c *Collector) Run(ctx context.Context) (Result, error) {
	if c.ready != nil {
		select {
		case <-c.ready:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	now := c.now()
	files, err := session.List(c.dir, true, now)
	if err != nil {
		return Result{}, fmt.Errorf("listing session files: %w", err)
	}
	rm, err := c.selectFiles(files, now)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, f := range rm {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := os.Remove(f.Path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				c.logger.Warn().Err(err).Str("file", f.Path).Msg("could not remove session file")
			}
			continue
		}
		res.Removed = append(res.Removed, f.Path)
	}
	c.logger.Debug().
		Str("size", c.size.String()).
		Int("candidates", len(files)).
		Int("removed", len(res.Removed)).
		Msg("history collected")
	return res, nil
}

func (c *Collector) selectFiles(files []session.Info, now time.Time) ([]session.Info, error) {
	switch c.size.Unit {
	case UnitCommands:
		return CommandsToRemove(int(c.size.Limit), files), nil
	case UnitFiles:
		return FilesToRemove(int(c.size.Limit), files), nil
	case UnitSeconds:
		return AgeToRemove(time.Duration(c.size.Limit*float64(time.Second)), now, files), nil
	case UnitBytes:
		return BytesToRemove(int64(c.size.Limit), files, c.sizeOf), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownUnit, c.size.Unit)
	}
}

// Start runs the collector in its own goroutine. Start must be called at
// most once.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		c.result, c.err = c.Run(ctx)
		if c.err != nil && !errors.Is(c.err, context.Canceled) {
			c.logger.Error().Err(c.err).Msg("history collection failed")
		}
	}()
}

// Done is closed when a started collector finishes.
func (c *Collector) Done() <-chan struct{} { return c.done }

// Wait blocks until a started collector finishes.
func (c *Collector) Wait() (Result, error) {
	<-c.done
	return c.result, c.err
}

func fileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
