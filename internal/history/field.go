package history

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fakeyudi/shlog/internal/lazyjson"
)

var (
	// ErrEmpty is returned when indexing a history with no commands.
	ErrEmpty = errors.New("history is empty")
	// ErrIndex is returned for an index outside the history.
	ErrIndex = errors.New("history index out of range")
	// ErrBadIndex is returned by ParseIndex for anything but an integer or
	// a start:stop:step slice.
	ErrBadIndex = errors.New("history may only be indexed by int or slice")
)

// Sequence is a finite, integer-indexed view over history data.
type Sequence[T any] interface {
	Len() int
	At(i int) (T, error)
}

// Field is the lazy view of one field across every command of a History.
// Recent commands come from the in-memory buffer; older ones are read from
// the session file through the History's Queue.
type Field[T any] struct {
	name string
	hist *History
	pick func(Command) T
	def  T
}

func newField[T any](name string, h *History, def T, pick func(Command) T) *Field[T] {
	return &Field[T]{name: name, hist: h, pick: pick, def: def}
}

// Name returns the JSON key of the field.
func (f *Field[T]) Name() string { return f.name }

// Len returns the logical length of the history.
func (f *Field[T]) Len() int { return f.hist.Len() }

// At returns the field of command i. Negative indices count from the end.
func (f *Field[T]) At(i int) (T, error) {
	var zero T

	cmd, ticket, idx, err := f.hist.locate(i)
	if err != nil {
		return zero, err
	}
	if ticket == nil {
		return f.pick(cmd), nil
	}

	ticket.Wait()
	defer ticket.Done()

	lj, err := lazyjson.Open(f.hist.filename)
	if err != nil {
		return zero, fmt.Errorf("reading history file: %w", err)
	}
	node := lj.Index("cmds", idx)
	if !node.Exists() {
		return zero, fmt.Errorf("command %d not on disk: %w", idx, ErrIndex)
	}
	v := node.Get(f.name)
	if !v.Exists() || v.IsNull() {
		return f.def, nil
	}
	var out T
	if err := v.Decode(&out); err != nil {
		return zero, fmt.Errorf("decoding %s of command %d: %w", f.name, idx, err)
	}
	return out, nil
}

// Index selects either a single element or a slice of a Sequence.
type Index struct {
	N     int
	Slice bool
	Start *int
	Stop  *int
	Step  *int
}

// At returns an Index selecting element n.
func At(n int) Index { return Index{N: n} }

// ParseIndex parses "n", "start:stop" or "start:stop:step". Slice bounds
// may be omitted and may be negative.
func ParseIndex(s string) (Index, error) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ":") {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Index{}, fmt.Errorf("%q: %w", s, ErrBadIndex)
		}
		return Index{N: n}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return Index{}, fmt.Errorf("%q: %w", s, ErrBadIndex)
	}
	idx := Index{Slice: true}
	targets := []**int{&idx.Start, &idx.Stop, &idx.Step}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Index{}, fmt.Errorf("%q: %w", s, ErrBadIndex)
		}
		*targets[i] = &n
	}
	if idx.Step != nil && *idx.Step == 0 {
		return Index{}, fmt.Errorf("%q: slice step cannot be zero: %w", s, ErrBadIndex)
	}
	return idx, nil
}

// Positions resolves idx against a sequence of length n, clamping slice
// bounds: out-of-range bounds are clipped, negative ones count from the end.
func (idx Index) Positions(n int) ([]int, error) {
	if !idx.Slice {
		if n == 0 {
			return nil, ErrEmpty
		}
		i := idx.N
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return nil, fmt.Errorf("index %d of %d: %w", idx.N, n, ErrIndex)
		}
		return []int{i}, nil
	}

	step := 1
	if idx.Step != nil {
		step = *idx.Step
	}
	if step == 0 {
		return nil, fmt.Errorf("slice step cannot be zero: %w", ErrBadIndex)
	}
	lower, upper := 0, n
	if step < 0 {
		lower, upper = -1, n-1
	}
	clamp := func(p *int, def int) int {
		if p == nil {
			return def
		}
		v := *p
		if v < 0 {
			v += n
			if v < lower {
				v = lower
			}
		} else if v > upper {
			v = upper
		}
		return v
	}

	var start, stop int
	if step > 0 {
		start, stop = clamp(idx.Start, lower), clamp(idx.Stop, upper)
	} else {
		start, stop = clamp(idx.Start, upper), clamp(idx.Stop, lower)
	}

	var out []int
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		out = append(out, i)
	}
	return out, nil
}

// Pick resolves idx once against the current length of seq and returns
// the chosen positions with their values.
func Pick[T any](seq Sequence[T], idx Index) ([]int, []T, error) {
	positions, err := idx.Positions(seq.Len())
	if err != nil {
		return nil, nil, err
	}
	out := make([]T, 0, len(positions))
	for _, p := range positions {
		v, err := seq.At(p)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, v)
	}
	return positions, out, nil
}

// Slice materializes the elements idx picks from seq, one At call each.
func Slice[T any](seq Sequence[T], idx Index) ([]T, error) {
	_, out, err := Pick(seq, idx)
	return out, err
}

// All materializes every element of seq in order.
func All[T any](seq Sequence[T]) ([]T, error) {
	return Slice(seq, Index{Slice: true})
}
