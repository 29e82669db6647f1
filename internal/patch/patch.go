// Package patch parses unified diff text into the before/after token
// sequences a CveDesc is matched against. No vetted unified-diff reader for
// arbitrary externally authored patches was available (go-difflib only
// generates difflib-style output), so this package hand-parses the small
// subset of the format the CVE store's file_change rows actually contain:
// one or more "--- a/, +++ b/" file headers each followed by one or more
// "@@ -l,s +l,s @@" hunks.
package patch

import (
	"bufio"
	"strings"

	"github.com/u91738/cvematch/internal/token"
)

// Hunk is one committed before- or after-side hunk: its token sequence
// (already canonicalized by the Tokenizer) and the display buffer used for
// --report-diff and the TUI detail view, built by prefixing each contributing line with the
// unified-diff marker it carried ("+", "-", or a leading space for context).
type Hunk struct {
	Tokens []token.Token
	Src    string
}

// TokenCount returns the number of tokens in the hunk.
func (h Hunk) TokenCount() int { return len(h.Tokens) }

// Desc is one parsed change: a stable identifier and the committed before-
// and after-hunks across every file and hunk in the diff. A Desc with no
// before-hunks is never constructed — see Parse.
type Desc struct {
	ChangeID string
	Before   []Hunk
	After    []Hunk
}

// BeforeLen and AfterLen sum token counts across hunks, matching the
// CVEDesc.before_len/after_len bookkeeping.
func (d Desc) BeforeLen() int { return sumTokens(d.Before) }
func (d Desc) AfterLen() int  { return sumTokens(d.After) }

func sumTokens(hunks []Hunk) int {
	n := 0
	for _, h := range hunks {
		n += len(h.Tokens)
	}
	return n
}

// Mode selects how parsed hunks are grouped into Descs.
type Mode int

const (
	// ModeJoined emits a single Desc per diff, aggregating every file's
	// committed hunks together (the default).
	ModeJoined Mode = iota
	// ModeSplit emits one Desc per before-hunk, pairing the positionally
	// aligned after-hunk when one exists — used with --split-diffs.
	ModeSplit
)

type rawHunk struct {
	before, after []Hunk
}

// Parse tokenizes diff using lang's Tokenizer, gates each hunk's before/after
// side on minHunkTokens, and groups the surviving hunks into Descs per mode.
// changeID identifies every Desc produced from this diff; in ModeSplit
// multiple Descs share the same changeID since they all come from one CVE's
// stored change.
func Parse(lang, diff, changeID string, minHunkTokens int, mode Mode) []Desc {
	variant := token.ForLanguage(lang)
	raw := parseHunks(diff, variant, minHunkTokens)
	if len(raw) == 0 {
		return nil
	}

	switch mode {
	case ModeSplit:
		return splitDescs(raw, changeID)
	default:
		return joinedDesc(raw, changeID)
	}
}

func joinedDesc(hunks []rawHunk, changeID string) []Desc {
	d := Desc{ChangeID: changeID}
	for _, h := range hunks {
		d.Before = append(d.Before, h.before...)
		d.After = append(d.After, h.after...)
	}
	if len(d.Before) == 0 {
		return nil
	}
	return []Desc{d}
}

func splitDescs(hunks []rawHunk, changeID string) []Desc {
	var descs []Desc
	for _, h := range hunks {
		for i, b := range h.before {
			d := Desc{ChangeID: changeID, Before: []Hunk{b}}
			if i < len(h.after) {
				d.After = []Hunk{h.after[i]}
			}
			descs = append(descs, d)
		}
	}
	return descs
}

// parseHunks walks every file patch and every hunk within it, tokenizing
// each line's text and routing tokens to the before/after side per the
// unified-diff line marker, then applies the minHunkTokens gate.
func parseHunks(diff string, variant token.Variant, minHunkTokens int) []rawHunk {
	var out []rawHunk

	sc := bufio.NewScanner(diff2lines(diff))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var cur *rawHunk
	var hb, ha []token.Token
	var srcB, srcA strings.Builder
	haveHunk := false

	flushHunk := func() {
		if !haveHunk || cur == nil {
			return
		}
		if len(hb) >= minHunkTokens {
			cur.before = append(cur.before, Hunk{Tokens: hb, Src: srcB.String()})
		}
		if len(ha) >= minHunkTokens {
			cur.after = append(cur.after, Hunk{Tokens: ha, Src: srcA.String()})
		}
		hb, ha = nil, nil
		srcB.Reset()
		srcA.Reset()
		haveHunk = false
	}

	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "--- "):
			flushHunk()
			out = append(out, rawHunk{})
			cur = &out[len(out)-1]
		case strings.HasPrefix(line, "+++ "):
			// file header's second line; nothing to extract for matching.
		case strings.HasPrefix(line, "@@ "):
			flushHunk()
			if cur == nil {
				out = append(out, rawHunk{})
				cur = &out[len(out)-1]
			}
			haveHunk = true
		case haveHunk && strings.HasPrefix(line, "+"):
			text := line[1:]
			ha = append(ha, token.Tokenize(variant, text)...)
			srcA.WriteString("+")
			srcA.WriteString(text)
			srcA.WriteString("\n")
		case haveHunk && strings.HasPrefix(line, "-"):
			text := line[1:]
			hb = append(hb, token.Tokenize(variant, text)...)
			srcB.WriteString("-")
			srcB.WriteString(text)
			srcB.WriteString("\n")
		case haveHunk && strings.HasPrefix(line, " "):
			text := line[1:]
			toks := token.Tokenize(variant, text)
			hb = append(hb, toks...)
			ha = append(ha, toks...)
			srcB.WriteString(" ")
			srcB.WriteString(text)
			srcB.WriteString("\n")
			srcA.WriteString(" ")
			srcA.WriteString(text)
			srcA.WriteString("\n")
		case haveHunk && line == "\\ No newline at end of file":
			// ignored: not part of either token side.
		}
	}
	flushHunk()

	return out
}

// diff2lines exposes diff as a reader so the scanner above can read it
// line-by-line without pulling in a file-reading abstraction it doesn't
// need; kept as a separate function so callers that already have an
// io.Reader (e.g. a streamed file_change BLOB) could be adapted later.
func diff2lines(diff string) *strings.Reader {
	return strings.NewReader(diff)
}
