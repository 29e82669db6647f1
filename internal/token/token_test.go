package token

import (
	"reflect"
	"testing"
)

func texts(toks []Token) []string {
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.Text
	}
	return out
}

func TestTokenizeCLikeBasic(t *testing.T) {
	toks := Tokenize(ForLanguage("C"), "int a = 42;\n")
	got := texts(toks)
	want := []string{"int", "a", "=", "123", ";"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTokenizeCanonicalizesNumbers(t *testing.T) {
	cases := []struct{ in, want string }{
		{"0", "0"},
		{"1", "1"},
		{"2", "123"},
		{"42", "123"},
		{"3.14", "12.34"},
		{".", "."},
	}
	for _, c := range cases {
		got := canonicalize(c.in)
		if got != c.want {
			t.Errorf("canonicalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTokenizeStripsLineComment(t *testing.T) {
	toks := Tokenize(ForLanguage("C"), "int a; // a counter\nint b;\n")
	got := texts(toks)
	want := []string{"int", "a", ";", "int", "b", ";"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTokenizeStripsBlockComment(t *testing.T) {
	toks := Tokenize(ForLanguage("C"), "int a; /* spans\nlines */ int b;\n")
	got := texts(toks)
	want := []string{"int", "a", ";", "int", "b", ";"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTokenizeStripsIncludeLine(t *testing.T) {
	toks := Tokenize(ForLanguage("C"), "#include <stdio.h>\nint a;\n")
	got := texts(toks)
	want := []string{"int", "a", ";"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTokenizePythonVariant(t *testing.T) {
	toks := Tokenize(ForLanguage("Python"), "import os\nx = 1 # comment\n")
	got := texts(toks)
	want := []string{"x", "=", "1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTokenizeLineNumbersTrackSource(t *testing.T) {
	toks := Tokenize(ForLanguage("C"), "int a;\n\nint b;\n")
	if len(toks) != 6 {
		t.Fatalf("got %d tokens, want 6", len(toks))
	}
	if toks[0].Line != 1 {
		t.Errorf("first token line = %d, want 1", toks[0].Line)
	}
	if toks[3].Line != 3 {
		t.Errorf("fourth token line = %d, want 3", toks[3].Line)
	}
}

func TestForLanguageUnknownDefaultsToNoStripping(t *testing.T) {
	toks := Tokenize(ForLanguage("COBOL"), "// not stripped here\n")
	if len(toks) == 0 {
		t.Fatal("expected unknown language to fall back to Default (no stripping)")
	}
}
