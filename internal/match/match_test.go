package match

import (
	"context"
	"testing"

	"github.com/u91738/cvematch/internal/device"
	"github.com/u91738/cvematch/internal/embedding"
	"github.com/u91738/cvematch/internal/ingest"
	"github.com/u91738/cvematch/internal/patch"
	"github.com/u91738/cvematch/internal/search"
	"github.com/u91738/cvematch/internal/token"
)

func buildTable(t *testing.T) *embedding.Table {
	t.Helper()
	dir := t.TempDir()
	vocab := map[string]int32{}
	var vectors []float32
	for i, tok := range []string{"int", "a", "=", "1", ";", "vuln", "fix", "b", "c"} {
		vocab[tok] = int32(i)
		row := make([]float32, 9)
		row[i] = 1
		vectors = append(vectors, row...)
	}
	if err := embedding.Save(dir, vocab, 9, vectors); err != nil {
		t.Fatal(err)
	}
	tbl, err := embedding.Load(dir, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func toks(texts ...string) []token.Token {
	out := make([]token.Token, len(texts))
	for i, s := range texts {
		out[i] = token.Token{Line: i + 1, Text: s}
	}
	return out
}

func buildFile(t *testing.T, texts ...string) *ingest.File {
	t.Helper()
	return &ingest.File{Path: "test.c", Tokens: toks(texts...)}
}

func TestRunEmitsMatchWhenBeforeMatchesAndAfterDiverges(t *testing.T) {
	tbl := buildTable(t)
	desc := patch.Desc{
		ChangeID: "CVE-1",
		Before:   []patch.Hunk{{Tokens: toks("int", "a", "=", "vuln", ";")}},
		After:    []patch.Hunk{{Tokens: toks("int", "a", "=", "fix", ";")}},
	}
	drv := device.New(tbl, 2)
	eng := New([]patch.Desc{desc}, tbl, drv, Config{MaxScore: 0.3, Costs: search.DefaultCosts, HaystackMax: 0})

	f := buildFile(t, "int", "a", "=", "vuln", ";")
	matches, err := eng.Run(context.Background(), f)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	m := matches[0]
	if m.ChangeID != "CVE-1" {
		t.Errorf("ChangeID = %q", m.ChangeID)
	}
	if m.ScoreBefore >= m.ScoreAfter {
		t.Errorf("expected ScoreBefore (%v) < ScoreAfter (%v)", m.ScoreBefore, m.ScoreAfter)
	}
	if len(m.Hunks) != 1 {
		t.Fatalf("got %d hunk details, want 1", len(m.Hunks))
	}
}

func TestRunEmitsNothingWhenFileAlreadyFixed(t *testing.T) {
	tbl := buildTable(t)
	desc := patch.Desc{
		ChangeID: "CVE-1",
		Before:   []patch.Hunk{{Tokens: toks("int", "a", "=", "vuln", ";")}},
		After:    []patch.Hunk{{Tokens: toks("int", "a", "=", "fix", ";")}},
	}
	drv := device.New(tbl, 2)
	eng := New([]patch.Desc{desc}, tbl, drv, Config{MaxScore: 0.3, Costs: search.DefaultCosts, HaystackMax: 0})

	f := buildFile(t, "int", "a", "=", "fix", ";")
	matches, err := eng.Run(context.Background(), f)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches against an already-fixed file, got %d", len(matches))
	}
}

func TestRunEmitsNothingWhenNoDescsMatch(t *testing.T) {
	tbl := buildTable(t)
	desc := patch.Desc{
		ChangeID: "CVE-1",
		Before:   []patch.Hunk{{Tokens: toks("vuln", "vuln", "vuln")}},
	}
	drv := device.New(tbl, 2)
	eng := New([]patch.Desc{desc}, tbl, drv, Config{MaxScore: 0.1, Costs: search.DefaultCosts, HaystackMax: 0})

	f := buildFile(t, "b", "c", "b", "c")
	matches, err := eng.Run(context.Background(), f)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches for an unrelated file, got %d", len(matches))
	}
}

func TestRunHunkStartNeverNegative(t *testing.T) {
	tbl := buildTable(t)
	// The free prefix lets the needle's last token alone match the
	// haystack's first token, so the DP's argmin end column (1) lies before
	// len(needle), which would otherwise make Start negative.
	desc := patch.Desc{
		ChangeID: "CVE-1",
		Before:   []patch.Hunk{{Tokens: toks("int", "a", "=", "vuln", ";", "b", "c")}},
	}
	drv := device.New(tbl, 2)
	eng := New([]patch.Desc{desc}, tbl, drv, Config{MaxScore: 1e9, Costs: search.DefaultCosts, HaystackMax: 0})

	f := buildFile(t, "c", "b", "b", "b", "b", "b", "b")
	matches, err := eng.Run(context.Background(), f)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	for _, h := range matches[0].Hunks {
		if h.Start < 0 {
			t.Errorf("Start = %d, want >= 0", h.Start)
		}
	}
}

func TestRunNoDescsIsNoop(t *testing.T) {
	tbl := buildTable(t)
	drv := device.New(tbl, 2)
	eng := New(nil, tbl, drv, Config{MaxScore: 0.2, Costs: search.DefaultCosts})

	f := buildFile(t, "int", "a")
	matches, err := eng.Run(context.Background(), f)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches with zero descs, got %d", len(matches))
	}
}
