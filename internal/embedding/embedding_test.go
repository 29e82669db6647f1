package embedding

import (
	"math"
	"testing"
)

func buildFixture(t *testing.T) *Table {
	t.Helper()
	dir := t.TempDir()
	vocab := map[string]int32{"int": 0, "uint": 1, "if": 2, ";": 3}
	vectors := []float32{
		1, 0, 0, 0, // int
		0.9, 0.1, 0, 0, // uint (close to int)
		0, 1, 0, 0, // if
		0, 0, 1, 0, // ;
	}
	if err := Save(dir, vocab, 4, vectors); err != nil {
		t.Fatalf("save fixture: %v", err)
	}
	tbl, err := Load(dir, 1.0)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	return tbl
}

func TestIndexKnownAndOOV(t *testing.T) {
	tbl := buildFixture(t)
	if tbl.Index("int") != 0 {
		t.Errorf("Index(int) = %d, want 0", tbl.Index("int"))
	}
	if tbl.Index("nonexistent") != OOV {
		t.Errorf("Index(nonexistent) = %d, want OOV", tbl.Index("nonexistent"))
	}
}

func TestDistanceIdentity(t *testing.T) {
	tbl := buildFixture(t)
	if d := tbl.Distance(0, 0); d != 0 {
		t.Errorf("Distance(int,int) = %v, want 0", d)
	}
}

func TestDistanceOOVUsesDefault(t *testing.T) {
	tbl := buildFixture(t)
	if d := tbl.Distance(OOV, 0); d != 1.0 {
		t.Errorf("Distance(OOV,int) = %v, want default 1.0", d)
	}
	if d := tbl.Distance(0, OOV); d != 1.0 {
		t.Errorf("Distance(int,OOV) = %v, want default 1.0", d)
	}
}

func TestDistanceCosineRange(t *testing.T) {
	tbl := buildFixture(t)
	d := tbl.Distance(0, 1) // int vs uint — should be small and positive
	if d < 0 || d > 2 {
		t.Fatalf("Distance out of [0,2]: %v", d)
	}
	if d > 0.2 {
		t.Errorf("expected int/uint to be close, got distance %v", d)
	}

	far := tbl.Distance(0, 2) // int vs if — orthogonal vectors, distance ~1
	if math.Abs(far-1.0) > 1e-6 {
		t.Errorf("expected orthogonal distance ~1.0, got %v", far)
	}
}

func TestLoadMissingDir(t *testing.T) {
	if _, err := Load("/tmp/nonexistent-cvematch-embedding-test", 1.0); err == nil {
		t.Fatal("expected error for missing artifact dir")
	}
}
