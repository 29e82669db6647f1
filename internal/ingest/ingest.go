// Package ingest reads a source file, tokenizes it once, and slices the
// resulting token stream into overlapping windows bounded by the search
// kernel's haystack_max, so a file larger than one kernel dispatch can still
// be scanned window by window.
package ingest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/u91738/cvematch/internal/embedding"
	"github.com/u91738/cvematch/internal/token"
)

// LanguageByExt maps a file extension to the language tag the CVE store
// records against file changes, so a positional file argument and a stored
// diff pick the same tokenizer Variant.
var LanguageByExt = map[string]string{
	".c": "C", ".h": "C",
	".cc": "C++", ".cpp": "C++", ".cxx": "C++", ".hpp": "C++",
	".cs": "C#",
	".java": "Java",
	".js":   "JavaScript", ".ts": "JavaScript",
	".php": "PHP",
	".py":  "Python",
}

// LanguageForPath resolves a source path to a language tag, defaulting to
// "" (the Default tokenizer Variant) for unrecognized extensions.
func LanguageForPath(path string) string {
	return LanguageByExt[strings.ToLower(filepath.Ext(path))]
}

// File is one ingested source file: its path, language, and the full
// memoized token stream (kept for line-number reporting).
type File struct {
	Path   string
	Lang   string
	Tokens []token.Token
}

// Load reads path leniently (invalid byte sequences are replaced, never
// failing the read) and tokenizes it once using the Variant for lang.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}

	lang := LanguageForPath(path)
	toks := token.Tokenize(token.ForLanguage(lang), text)
	return &File{Path: path, Lang: lang, Tokens: toks}, nil
}

// IsProbablyBinary sniffs the first 512 bytes of path for a NUL byte, the
// same heuristic used to skip generated/binary files before tokenizing.
func IsProbablyBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return bytes.IndexByte(buf[:n], 0) != -1
}

// Window is one haystack slice: Offset is the index of its first token
// within the file's full Tokens slice (used to translate a match position
// back into a source line), and Indices are the embedding-table lookups for
// every token in the slice, ready for the search kernel.
type Window struct {
	Offset  int
	Indices []embedding.Index
}

// Windows slices f's tokens into overlapping windows of at most haystackMax
// tokens. A file that fits in one window yields exactly one Window with
// Offset 0. Otherwise each subsequent window starts 90% of haystackMax after
// the previous window's start (10% overlap), continuing until the remaining
// tokens are covered.
func Windows(f *File, tbl *embedding.Table, haystackMax int) []Window {
	n := len(f.Tokens)
	if n == 0 {
		return nil
	}
	if haystackMax <= 0 || n <= haystackMax {
		return []Window{newWindow(f, tbl, 0, n)}
	}

	stride := haystackMax * 9 / 10
	if stride <= 0 {
		stride = 1
	}

	var windows []Window
	for start := 0; start < n; start += stride {
		end := start + haystackMax
		if end > n {
			end = n
		}
		windows = append(windows, newWindow(f, tbl, start, end))
		if end == n {
			break
		}
	}
	return windows
}

func newWindow(f *File, tbl *embedding.Table, start, end int) Window {
	idx := make([]embedding.Index, end-start)
	for i := start; i < end; i++ {
		idx[i-start] = tbl.Index(f.Tokens[i].Text)
	}
	return Window{Offset: start, Indices: idx}
}

// LineAt returns the source line number of the token at the given index
// within f's full token stream, or 0 if out of range.
func (f *File) LineAt(tokenIndex int) int {
	if tokenIndex < 0 || tokenIndex >= len(f.Tokens) {
		return 0
	}
	return f.Tokens[tokenIndex].Line
}
