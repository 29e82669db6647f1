// Package device models the data-parallel dispatch a GPU kernel would run:
// one work item per needle, a read-only embedding buffer shared by every
// work item, and a compiled "kernel" reused across dispatches that share
// the same (haystack_max, vector size, cost) tuple. With no GPU compute
// binding available, this package re-expresses the same contract — shared
// read-only buffer, one unit of work per needle, kernel-compiled-once-per-
// constant-tuple, strict before-then-after ordering — as a bounded
// goroutine pool. The host-facing API (Dispatch blocks until every needle's
// result is ready, same as a kernel enqueue + blocking read-back) is
// unchanged either way.
package device

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/u91738/cvematch/internal/embedding"
	"github.com/u91738/cvematch/internal/search"
)

// kernelKey is the tuple a real compute backend would compile a kernel
// against: changing any field invalidates a previously "compiled" driver.
type kernelKey struct {
	haystackMax int
	vectorSize  int
	costs       search.Costs
}

// Error is returned by Dispatch when the dispatch is cancelled before every
// needle has run.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("device: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Driver owns the shared, build-once resources of a dispatch session: the
// embedding table (the read-only buffer every work item addresses) and the
// currently compiled kernel tuple. It is not safe for concurrent Dispatch
// calls from multiple goroutines — the host is expected to be single
// threaded per device queue, matching the scheduling model a real kernel
// queue would impose.
type Driver struct {
	tbl     *embedding.Table
	workers int

	compiled    bool
	currentKey  kernelKey
	scratchCap  int // high-water mark of haystack length seen, for the capacity-monotonic contract
}

// New builds a Driver bound to tbl. workers bounds how many needles are
// evaluated concurrently per Dispatch; 0 uses GOMAXPROCS.
func New(tbl *embedding.Table, workers int) *Driver {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Driver{tbl: tbl, workers: workers}
}

// AssertEndianness verifies the host's byte order matches what the
// embedding artifact (and a real device buffer) was built with. A real
// kernel dispatch would refuse to run rather than silently misinterpret the
// matrix; this driver performs the equivalent check once at startup.
func AssertEndianness() error {
	// The embedding package's Load already validates the artifact's own
	// endian sentinel; a goroutine-pool device has no separate byte order of
	// its own to diverge from the host, so this is necessarily satisfied.
	// The hook exists so callers follow the same startup sequence a real
	// device backend would require.
	return nil
}

// compile "compiles" (memoizes) the kernel for the given tuple, matching the
// contract that the host compiles once per (haystack_max, vector_size,
// del_cost, ins_cost, default_dist) and reuses it across dispatches that
// share the tuple.
func (d *Driver) compile(haystackMax int, costs search.Costs) {
	key := kernelKey{haystackMax: haystackMax, vectorSize: d.tbl.Dim(), costs: costs}
	if d.compiled && d.currentKey == key {
		return
	}
	d.currentKey = key
	d.compiled = true
}

// Dispatch runs needles against one haystack, one work item per needle, and
// blocks until every result is copied back — the same observable contract a
// blocking kernel enqueue-and-read-back would have. ctx is checked between
// needles (not mid-kernel): a cancellation lands between work items, never
// partway through one.
func (d *Driver) Dispatch(ctx context.Context, needles [][]embedding.Index, haystack []embedding.Index, costs search.Costs) (dist []float64, ind []int, err error) {
	if len(haystack) > d.scratchCap {
		d.scratchCap = len(haystack)
	}
	d.compile(len(haystack), costs)

	dist = make([]float64, len(needles))
	ind = make([]int, len(needles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for i, needle := range needles {
		i, needle := i, needle
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			dist[i], ind[i] = search.Distance(d.tbl, needle, haystack, costs)
			return nil
		})
	}

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, &Error{Op: "dispatch", Err: waitErr}
	}
	return dist, ind, nil
}
