// Package timeseries joins images to a sensor log by timestamp.
//
// It owns three pieces:
//   - Nearest, a verified nearest-neighbour binary search over sorted timestamps
//   - Normalizer, which turns an image filename into the sensor log's timestamp domain
//   - Loader and Store, which read a tabular source into an immutable sorted Dataset
//     and publish it to readers with a single atomic swap
package timeseries

import (
	"sort"
	"time"
)

// DefaultTolerance is the widest gap between an image and a sensor record
// that still counts as a match.
const DefaultTolerance = 5 * time.Minute

// Nearest returns the index of the timestamp in ts closest to q and its
// absolute distance from q.
//
// ts must be sorted ascending. The search finds the insertion point of q with
// a lower-bound binary search and then compares the neighbours on both sides
// of it, so the true nearest element can never fall outside the final window.
//
// Tie-break: the lowest index among all equally close elements wins. A tie
// between the left and right neighbour resolves to the left (earlier) one and
// a run of equal timestamps resolves to its first element. This is exactly
// what a linear scan that only replaces its best on a strictly smaller
// difference would return.
//
// ok is false when ts is empty or when the closest element is further than
// tolerance (milliseconds) away. A distance equal to tolerance is a match.
func Nearest(ts []int64, q int64, tolerance int64) (idx int, diff int64, ok bool) {
	n := len(ts)
	if n == 0 {
		return -1, 0, false
	}

	// First index with ts[i] >= q. Everything left of it is < q.
	i := sort.Search(n, func(i int) bool { return ts[i] >= q })

	best := -1
	if i > 0 {
		best, diff = i-1, q-ts[i-1]
	}
	if i < n {
		if d := ts[i] - q; best < 0 || d < diff {
			best, diff = i, d
		}
	}

	// The left neighbour is the last element of its run; step back to the first.
	for best > 0 && ts[best-1] == ts[best] {
		best--
	}

	if diff > tolerance {
		return -1, diff, false
	}

	return best, diff, true
}
