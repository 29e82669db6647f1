package search

import (
	"testing"

	"github.com/u91738/cvematch/internal/embedding"
)

func buildTable(t *testing.T) *embedding.Table {
	t.Helper()
	dir := t.TempDir()
	vocab := map[string]int32{"a": 0, "b": 1, "c": 2, "d": 3}
	vectors := []float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
	if err := embedding.Save(dir, vocab, 4, vectors); err != nil {
		t.Fatal(err)
	}
	tbl, err := embedding.Load(dir, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func idx(tbl *embedding.Table, toks ...string) []embedding.Index {
	out := make([]embedding.Index, len(toks))
	for i, tok := range toks {
		out[i] = tbl.Index(tok)
	}
	return out
}

func TestDistanceExactMatchIsZero(t *testing.T) {
	tbl := buildTable(t)
	needle := idx(tbl, "a", "b", "c")
	haystack := idx(tbl, "x", "x", "a", "b", "c", "x")
	dist, ind := Distance(tbl, needle, haystack, DefaultCosts)
	if dist != 0 {
		t.Errorf("dist = %v, want 0", dist)
	}
	if ind != 5 {
		t.Errorf("ind = %d, want 5 (one-past-end of matched window)", ind)
	}
}

func TestDistanceHaystackShorterThanNeedle(t *testing.T) {
	tbl := buildTable(t)
	needle := idx(tbl, "a", "b", "c", "d")
	haystack := idx(tbl, "a", "b")
	dist, ind := Distance(tbl, needle, haystack, DefaultCosts)
	if dist != DefaultCosts.MaxDistance {
		t.Errorf("dist = %v, want sentinel %v", dist, DefaultCosts.MaxDistance)
	}
	if ind != len(needle) {
		t.Errorf("ind = %d, want len(needle)=%d", ind, len(needle))
	}
}

func TestDistanceEmptyNeedle(t *testing.T) {
	tbl := buildTable(t)
	haystack := idx(tbl, "a", "b")
	dist, ind := Distance(tbl, nil, haystack, DefaultCosts)
	if dist != 0 {
		t.Errorf("dist = %v, want 0 for empty needle", dist)
	}
	if ind != 0 {
		t.Errorf("ind = %d, want 0", ind)
	}
}

func TestDistancePenalizesSubstitution(t *testing.T) {
	tbl := buildTable(t)
	needle := idx(tbl, "a", "b", "c")
	exact := idx(tbl, "a", "b", "c")
	substituted := idx(tbl, "a", "b", "d")

	distExact, _ := Distance(tbl, needle, exact, DefaultCosts)
	distSub, _ := Distance(tbl, needle, substituted, DefaultCosts)
	if distSub <= distExact {
		t.Errorf("substitution distance %v should exceed exact-match distance %v", distSub, distExact)
	}
}

func TestBatchMatchesIndividualCalls(t *testing.T) {
	tbl := buildTable(t)
	haystack := idx(tbl, "a", "a", "b", "c", "d")
	needles := [][]embedding.Index{
		idx(tbl, "a", "b"),
		idx(tbl, "c", "d"),
		idx(tbl, "z", "z"), // all OOV
	}
	dist, ind := Batch(tbl, needles, haystack, DefaultCosts)
	for i, needle := range needles {
		wantDist, wantInd := Distance(tbl, needle, haystack, DefaultCosts)
		if dist[i] != wantDist || ind[i] != wantInd {
			t.Errorf("needle %d: Batch gave (%v,%d), want (%v,%d)", i, dist[i], ind[i], wantDist, wantInd)
		}
	}
}
