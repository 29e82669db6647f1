// Package report formats a scan's CveMatch results to stdout:
// "Matched <id> with score <before> - <after>", then per-hunk file:line
// locations, each section gated by a --report-* flag.
package report

import (
	"fmt"
	"io"

	"github.com/u91738/cvematch/internal/ingest"
	"github.com/u91738/cvematch/internal/match"
	"github.com/u91738/cvematch/internal/store"
)

// Options mirrors the CLI's --report-* boolean flags.
type Options struct {
	CveInfo  bool // --report-cve-info
	Cwe      bool // --report-cwe
	Diff     bool // --report-diff (matching hunk only)
	DiffFull bool // --report-diff-full (full CVE fix diff)
}

// Match writes one CveMatch's report section to w. f supplies line numbers
// for each hunk's matched window via f.LineAt; cveReport is nil when the
// store lookup for this change failed or was skipped (CWE/description/full
// diff sections are then omitted, matching a best-effort report).
func Match(w io.Writer, m match.CveMatch, f *ingest.File, cveReport *store.Report, opts Options) {
	fmt.Fprintf(w, "Matched %s with score %.6f - %.6f\n", m.ChangeID, m.ScoreBefore, m.ScoreAfter)

	if opts.CveInfo && cveReport != nil {
		fmt.Fprintln(w, "CVE Info:", cveReport.Description)
	}
	if opts.Cwe && cveReport != nil {
		for _, c := range cveReport.Cwes {
			fmt.Fprintln(w, c.ID, "-", c.Name)
		}
	}
	if opts.DiffFull && cveReport != nil {
		fmt.Fprintln(w, "diff:")
		fmt.Fprintln(w, cveReport.Diff)
	}

	for _, h := range m.Hunks {
		line := f.LineAt(m.WindowOffset + h.Start)
		fmt.Fprintf(w, "%s:%d:0   %.6f - %.6f\n", f.Path, line, h.DistBefore, h.DistAfter)
		if opts.Diff {
			fmt.Fprintln(w, h.Hunk.Src)
		}
	}
	fmt.Fprintln(w)
}

// CveList prints one line per CVE: id, then the description on its own
// line (quotes the store wraps descriptions in are stripped), then a
// blank line.
func CveList(w io.Writer, cves []store.Cve) {
	for _, c := range cves {
		fmt.Fprintln(w, c.ID)
		fmt.Fprintln(w, trimQuotes(c.Description), "\n")
	}
}

// CweList prints one line per CWE, plus a count of CVEs classified under
// it.
func CweList(w io.Writer, cwes []store.Cwe, cveCount func(cweID string) int) {
	for _, c := range cwes {
		fmt.Fprintln(w, c.ID, "-", c.Name)
		fmt.Fprintln(w, trimQuotes(c.Description))
		fmt.Fprintln(w, "CVEs with this CWE:", cveCount(c.ID), "\n")
	}
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
