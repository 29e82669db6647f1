package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchRescanOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "foo.c")
	if err := os.WriteFile(path, []byte("int a;\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	calls := make(chan struct{}, 4)
	w, err := New([]string{path}, func() { calls <- struct{}{} })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.debounce = 20 * time.Millisecond

	done := make(chan struct{})
	go func() { _ = w.Watch(done) }()
	defer close(done)

	time.Sleep(30 * time.Millisecond)
	if err := os.WriteFile(path, []byte("int b;\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("rescan was not called within timeout")
	}
}

func TestNewRejectsMissingFile(t *testing.T) {
	if _, err := New([]string{"/nonexistent/cvematch-watch-test.c"}, func() {}); err == nil {
		t.Fatal("expected error watching a nonexistent file")
	}
}
