// Package search implements the approximate substring search kernel: a
// token-weighted Levenshtein distance between a needle and a haystack, with
// a free prefix so the needle may be anchored at any haystack position. It
// is deliberately written against the same (dist[], ind[]) batch contract a
// GPU/OpenCL kernel would expose, so internal/device can dispatch many
// needles against one haystack without this package knowing whether the
// work happens on one goroutine or many.
package search

import "github.com/u91738/cvematch/internal/embedding"

// InvalidIndex is the reserved marker for an out-of-range argmin column,
// matching the contract that any ind value >= 0xFFFFFF00 means "no match".
const InvalidIndex = uint32(0xFFFFFF00)

// Costs bundles the constants a kernel is compiled against. The host only
// ever needs one compiled kernel per distinct Costs + haystack_max +
// vector_size tuple; internal/device is responsible for that memoization.
type Costs struct {
	InsCost, DelCost float64
	// MaxDistance is the sentinel distance returned for an immediate
	// non-match (haystack shorter than needle).
	MaxDistance float64
}

// DefaultCosts mirrors the CLI's default --levenstein-ins-cost/--levenstein-del-cost.
var DefaultCosts = Costs{InsCost: 2, DelCost: 2, MaxDistance: 1e9}

// Distance runs the DP recurrence of one needle against one haystack and
// returns the minimum edit distance and the one-past-end column of the
// matched window. If the haystack is shorter than the needle this is an
// immediate non-match: MaxDistance is returned and ind is len(needle).
//
// v1[0] is reset to 0 at the start of every row — the defining deviation
// from classic Levenshtein distance. It lets the needle's first row "start
// fresh" at any haystack column, so the DP finds the best-matching
// contiguous window rather than requiring the needle to align with the
// haystack's own start.
func Distance(tbl *embedding.Table, needle, haystack []embedding.Index, costs Costs) (dist float64, ind int) {
	m, n := len(needle), len(haystack)
	if n < m {
		return costs.MaxDistance, m
	}

	v0 := make([]float64, n+1)
	v1 := make([]float64, n+1)

	for i := 0; i < m; i++ {
		v1[0] = 0
		for j := 0; j < n; j++ {
			delCost := v0[j+1] + costs.DelCost
			insCost := v1[j] + costs.InsCost
			subCost := v0[j] + tbl.Distance(needle[i], haystack[j])
			v1[j+1] = min3(delCost, insCost, subCost)
		}
		v0, v1 = v1, v0
	}

	if m == 0 {
		return 0, 0
	}
	// Column 0 is the free-prefix column and is always 0, so the argmin is
	// taken over the haystack columns 1..n only.
	best := v0[1]
	bestJ := 1
	for j := 2; j <= n; j++ {
		if v0[j] < best {
			best = v0[j]
			bestJ = j
		}
	}
	return best, bestJ
}

func min3(a, b, c float64) float64 {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// Batch runs Distance for every needle in needles against the same
// haystack, filling parallel dist/ind output slices — the single-threaded
// reference implementation of the contract internal/device parallelizes.
// Callers needing concurrency should use internal/device.Dispatch instead;
// this function exists so search's correctness can be tested and reasoned
// about independent of any worker-pool machinery.
func Batch(tbl *embedding.Table, needles [][]embedding.Index, haystack []embedding.Index, costs Costs) (dist []float64, ind []int) {
	dist = make([]float64, len(needles))
	ind = make([]int, len(needles))
	for i, needle := range needles {
		dist[i], ind[i] = Distance(tbl, needle, haystack, costs)
	}
	return dist, ind
}
