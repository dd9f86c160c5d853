package backfill

import (
	"fmt"
	"iter"
	"math"
)

// Range is a half-open block range [Start, End).
type Range struct {
	Start uint64
	End   uint64
}

// String returns the range in "[start, end)" format.
func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// Size returns the number of blocks in the range.
func (r Range) Size() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Chunks yields consecutive sub-ranges of exactly interval blocks, in
// ascending order, while the chunk start is below End. The last chunk may
// extend past End.
func (r Range) Chunks(interval uint64) iter.Seq[Range] {
	return func(yield func(Range) bool) {
		if interval == 0 {
			interval = r.Size()
		}
		for from := r.Start; from < r.End; {
			to := from + interval
			if to < from {
				to = math.MaxUint64
			}
			if !yield(Range{Start: from, End: to}) {
				return
			}
			from = to
		}
	}
}
