package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/u91738/cvematch/internal/ingest"
	"github.com/u91738/cvematch/internal/match"
	"github.com/u91738/cvematch/internal/patch"
	"github.com/u91738/cvematch/internal/store"
	"github.com/u91738/cvematch/internal/token"
)

func TestMatchBasicLine(t *testing.T) {
	var buf bytes.Buffer
	m := match.CveMatch{ChangeID: "CVE-2020-1", ScoreBefore: 0.05, ScoreAfter: 0.4}
	f := &ingest.File{Path: "foo.c", Tokens: []token.Token{{Line: 10, Text: "int"}}}
	Match(&buf, m, f, nil, Options{})

	out := buf.String()
	if !strings.Contains(out, "Matched CVE-2020-1 with score 0.050000 - 0.400000") {
		t.Errorf("missing summary line: %q", out)
	}
}

func TestMatchHunkLocations(t *testing.T) {
	var buf bytes.Buffer
	m := match.CveMatch{
		ChangeID: "CVE-2020-1",
		Hunks: []match.HunkScore{
			{Start: 0, DistBefore: 0.125, DistAfter: 0.875, Hunk: patch.Hunk{Src: "-int a;\n"}},
		},
	}
	f := &ingest.File{Path: "foo.c", Tokens: []token.Token{{Line: 42, Text: "int"}}}
	Match(&buf, m, f, nil, Options{Diff: true})

	out := buf.String()
	if !strings.Contains(out, "foo.c:42:0   0.125000 - 0.875000") {
		t.Errorf("missing location+distance line: %q", out)
	}
	if !strings.Contains(out, "-int a;") {
		t.Errorf("missing diff text with --report-diff: %q", out)
	}
}

func TestMatchOptionalSectionsGated(t *testing.T) {
	var buf bytes.Buffer
	m := match.CveMatch{ChangeID: "CVE-2020-1"}
	f := &ingest.File{Path: "foo.c"}
	rep := &store.Report{
		Description: "an overflow",
		Diff:        "--- a/foo.c\n",
		Cwes:        []store.Cwe{{ID: "CWE-190", Name: "Integer Overflow"}},
	}

	Match(&buf, m, f, rep, Options{})
	if strings.Contains(buf.String(), "CVE Info") {
		t.Error("CVE info section should be gated off by default")
	}

	buf.Reset()
	Match(&buf, m, f, rep, Options{CveInfo: true, Cwe: true, DiffFull: true})
	out := buf.String()
	for _, want := range []string{"CVE Info: an overflow", "CWE-190 - Integer Overflow", "--- a/foo.c"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in: %q", want, out)
		}
	}
}

func TestTrimQuotes(t *testing.T) {
	if got := trimQuotes(`"hello"`); got != "hello" {
		t.Errorf("trimQuotes = %q", got)
	}
	if got := trimQuotes("hello"); got != "hello" {
		t.Errorf("trimQuotes unquoted = %q", got)
	}
}
