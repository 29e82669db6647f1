// Package match implements the engine that scores a set of parsed CVE
// descriptions against one file's token windows: build the before-needle
// batch once, gate CVEs on their before-score, then confirm the survivors
// against the after-hunks before emitting a CveMatch.
package match

import (
	"context"
	"fmt"

	"github.com/u91738/cvematch/internal/device"
	"github.com/u91738/cvematch/internal/embedding"
	"github.com/u91738/cvematch/internal/ingest"
	"github.com/u91738/cvematch/internal/patch"
	"github.com/u91738/cvematch/internal/search"
	"github.com/u91738/cvematch/internal/token"
)

// epsilon is the small-negative clamp threshold applied to scores before
// the gating comparisons and before they are surfaced in a CveMatch.
const epsilon = 1e-6

// Config carries the tunables a MatchEngine run needs: the CLI's
// --max-score, --levenstein-ins-cost/--levenstein-del-cost (via Costs), and
// the haystack_max that bounds each FileIngest window.
type Config struct {
	MaxScore    float64
	Costs       search.Costs
	HaystackMax int
}

// HunkScore is the per-hunk detail a CveMatch carries: the raw before- and
// after-distance for one before-hunk, and the token offset (within the
// CveMatch's window; add WindowOffset for the file's full token stream)
// where the matched window starts.
type HunkScore struct {
	DistBefore float64
	DistAfter  float64
	Start      int
	Hunk       patch.Hunk
}

// CveMatch is one confirmed match of a CveDesc against a window of a file.
type CveMatch struct {
	ChangeID     string
	WindowOffset int
	ScoreBefore  float64
	ScoreAfter   float64
	Hunks        []HunkScore
}

// needleRange is the contiguous slice of the engine's flat before-needle
// batch that one CveDesc owns. Descs are appended to the batch in order, so
// each owns one contiguous range rather than needing a per-needle owner
// lookup.
type needleRange struct{ start, end int }

// Engine holds the before-needle batch built once for a whole run plus the
// resources needed to run ApproxSearch against each file window.
type Engine struct {
	descs  []patch.Desc
	driver *device.Driver
	tbl    *embedding.Table
	cfg    Config

	beforeNeedles [][]embedding.Index
	beforeRange   []needleRange // one per desc
}

// New builds the before-needle batch from descs once; it is never rebuilt
// for the lifetime of the Engine, matching the "before-batch is built once
// for the whole run" requirement.
func New(descs []patch.Desc, tbl *embedding.Table, driver *device.Driver, cfg Config) *Engine {
	e := &Engine{descs: descs, driver: driver, tbl: tbl, cfg: cfg, beforeRange: make([]needleRange, len(descs))}
	for di, d := range descs {
		start := len(e.beforeNeedles)
		for _, h := range d.Before {
			e.beforeNeedles = append(e.beforeNeedles, tokenIndices(tbl, h.Tokens))
		}
		e.beforeRange[di] = needleRange{start: start, end: len(e.beforeNeedles)}
	}
	return e
}

func tokenIndices(tbl *embedding.Table, toks []token.Token) []embedding.Index {
	out := make([]embedding.Index, len(toks))
	for i, tk := range toks {
		out[i] = tbl.Index(tk.Text)
	}
	return out
}

// Run scores every window of f against every CveDesc, returning every
// CveMatch found across all windows.
func (e *Engine) Run(ctx context.Context, f *ingest.File) ([]CveMatch, error) {
	windows := ingest.Windows(f, e.tbl, e.cfg.HaystackMax)
	var out []CveMatch

	for _, w := range windows {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		matches, err := e.runWindow(ctx, w)
		if err != nil {
			return out, err
		}
		out = append(out, matches...)
	}
	return out, nil
}

// survivor is a CveDesc that passed the before-gate for one window.
type survivor struct {
	descIdx int
	scoreB  float64
}

func (e *Engine) runWindow(ctx context.Context, w ingest.Window) ([]CveMatch, error) {
	if len(e.beforeNeedles) == 0 {
		return nil, nil
	}

	distB, indB, err := e.driver.Dispatch(ctx, e.beforeNeedles, w.Indices, e.cfg.Costs)
	if err != nil {
		return nil, fmt.Errorf("before-dispatch: %w", err)
	}

	var survivors []survivor
	for di, rng := range e.beforeRange {
		if rng.end == rng.start {
			continue
		}
		scoreB := clamp(mean(distB[rng.start:rng.end]))
		if scoreB < e.cfg.MaxScore {
			survivors = append(survivors, survivor{descIdx: di, scoreB: scoreB})
		}
	}
	if len(survivors) == 0 {
		return nil, nil
	}

	// after-batch: only the after-hunks belonging to retained CVEs, with a
	// parallel range table so results can be attributed back.
	var afterNeedles [][]embedding.Index
	afterRange := make([]needleRange, len(survivors))
	for si, s := range survivors {
		start := len(afterNeedles)
		for _, h := range e.descs[s.descIdx].After {
			afterNeedles = append(afterNeedles, tokenIndices(e.tbl, h.Tokens))
		}
		afterRange[si] = needleRange{start: start, end: len(afterNeedles)}
	}

	var distA []float64
	if len(afterNeedles) > 0 {
		var err error
		distA, _, err = e.driver.Dispatch(ctx, afterNeedles, w.Indices, e.cfg.Costs)
		if err != nil {
			return nil, fmt.Errorf("after-dispatch: %w", err)
		}
	}

	var out []CveMatch
	for si, s := range survivors {
		rng := afterRange[si]
		scoreA := 1.0
		if rng.end > rng.start {
			scoreA = clamp(mean(distA[rng.start:rng.end]))
		}
		if !(s.scoreB < scoreA) {
			continue
		}

		d := e.descs[s.descIdx]
		brng := e.beforeRange[s.descIdx]
		hunks := make([]HunkScore, 0, brng.end-brng.start)
		for hi := 0; hi < brng.end-brng.start; hi++ {
			needleIdx := brng.start + hi
			distAfter := 1.0
			if hi < rng.end-rng.start {
				distAfter = distA[rng.start+hi]
			}
			hunks = append(hunks, HunkScore{
				DistBefore: distB[needleIdx],
				DistAfter:  distAfter,
				Start:      max(0, indB[needleIdx]-len(e.beforeNeedles[needleIdx])),
				Hunk:       d.Before[hi],
			})
		}

		out = append(out, CveMatch{
			ChangeID:     d.ChangeID,
			WindowOffset: w.Offset,
			ScoreBefore:  s.scoreB,
			ScoreAfter:   scoreA,
			Hunks:        hunks,
		})
	}
	return out, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clamp(x float64) float64 {
	if x < 0 && x > -epsilon {
		return 0
	}
	return x
}
