package history_test

import (
	"errors"
	"slices"
	"testing"

	"pgregory.net/rapid"

	"github.com/fakeyudi/shlog/internal/history"
)

func TestParseIndex(t *testing.T) {
	tests := []struct {
		in      string
		n       int
		want    []int
		wantErr error
	}{
		{in: "0", n: 3, want: []int{0}},
		{in: "-1", n: 3, want: []int{2}},
		{in: "3", n: 3, wantErr: history.ErrIndex},
		{in: "0", n: 0, wantErr: history.ErrEmpty},
		{in: ":", n: 4, want: []int{0, 1, 2, 3}},
		{in: "1:3", n: 4, want: []int{1, 2}},
		{in: "-2:", n: 4, want: []int{2, 3}},
		{in: ":100", n: 3, want: []int{0, 1, 2}},
		{in: "-100:1", n: 3, want: []int{0}},
		{in: "::2", n: 5, want: []int{0, 2, 4}},
		{in: "::-1", n: 3, want: []int{2, 1, 0}},
		{in: "3:0:-1", n: 5, want: []int{3, 2, 1}},
		{in: "2:1", n: 5, want: nil},
		{in: ":", n: 0, want: nil},
	}
	for _, tt := range tests {
		idx, err := history.ParseIndex(tt.in)
		if err != nil {
			t.Fatalf("ParseIndex(%q): %v", tt.in, err)
		}
		got, err := idx.Positions(tt.n)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("%q over %d: want error %v, got %v", tt.in, tt.n, tt.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q over %d: unexpected error: %v", tt.in, tt.n, err)
			continue
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("%q over %d: want %v, got %v", tt.in, tt.n, tt.want, got)
		}
	}
}

func TestParseIndexRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "x", "1.5", "1:2:3:4", "::0", "a:b"} {
		if _, err := history.ParseIndex(in); !errors.Is(err, history.ErrBadIndex) {
			t.Errorf("ParseIndex(%q): want ErrBadIndex, got %v", in, err)
		}
	}
}

// sliceSeq is an in-memory Sequence.
type sliceSeq []int

func (s sliceSeq) Len() int { return len(s) }

func (s sliceSeq) At(i int) (int, error) {
	if i < 0 {
		i += len(s)
	}
	return s[i], nil
}

// Property: every slice position is in range and a full forward slice is
// the identity.
func TestSlicePositionsInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "n")
		start := rapid.IntRange(-30, 30).Draw(t, "start")
		stop := rapid.IntRange(-30, 30).Draw(t, "stop")
		step := rapid.SampledFrom([]int{-3, -2, -1, 1, 2, 3}).Draw(t, "step")

		idx := history.Index{Slice: true, Start: &start, Stop: &stop, Step: &step}
		got, err := idx.Positions(n)
		if err != nil {
			t.Fatalf("Positions: %v", err)
		}
		for _, p := range got {
			if p < 0 || p >= n {
				t.Fatalf("position %d out of range for length %d", p, n)
			}
		}

		seq := make(sliceSeq, n)
		for i := range seq {
			seq[i] = i * 10
		}
		all, err := history.All[int](seq)
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		for i, v := range all {
			if v != seq[i] {
				t.Fatalf("All()[%d] = %d, want %d", i, v, seq[i])
			}
		}
	})
}

func TestPickReturnsPositionsWithValues(t *testing.T) {
	seq := sliceSeq{10, 20, 30, 40}
	idx, err := history.ParseIndex("::-2")
	if err != nil {
		t.Fatal(err)
	}
	positions, values, err := history.Pick[int](seq, idx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(positions, []int{3, 1}) {
		t.Errorf("positions: want [3 1], got %v", positions)
	}
	if !slices.Equal(values, []int{40, 20}) {
		t.Errorf("values: want [40 20], got %v", values)
	}

	if _, _, err := history.Pick[int](sliceSeq{}, history.Index{}); !errors.Is(err, history.ErrEmpty) {
		t.Errorf("empty sequence: want ErrEmpty, got %v", err)
	}
}
