package folder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ffplayout/ffplayout-sub001/internal/config"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
}

func TestNewSourceSortedAlphaOrder(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "c.mp4", "a.mp4", "b.mp4", "ignore.txt")

	s, err := NewSource(dir, config.FolderSortedAlpha, []string{"mp4"}, time.UTC, nil)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if len(s.list) != 3 {
		t.Fatalf("expected 3 playable files, got %d", len(s.list))
	}
	for i, want := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		if filepath.Base(s.list[i].Source) != want {
			t.Errorf("index %d: got %s, want %s", i, s.list[i].Source, want)
		}
	}
}

func TestNextAssignsBeginAndWrapsAround(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.mp4", "b.mp4")

	s, err := NewSource(dir, config.FolderSortedAlpha, []string{"mp4"}, time.UTC, nil)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}

	first, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.Begin < 0 {
		t.Errorf("expected non-negative Begin, got %v", first.Begin)
	}

	if _, err := s.Next(); err != nil {
		t.Fatalf("Next (2nd): %v", err)
	}
	// Wraparound: the third call should succeed by reordering, not error.
	third, err := s.Next()
	if err != nil {
		t.Fatalf("Next (wraparound): %v", err)
	}
	if third == nil {
		t.Fatalf("expected a clip after wraparound")
	}
}

func TestNextOnEmptySourceErrors(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSource(dir, config.FolderSortedAlpha, []string{"mp4"}, time.UTC, nil)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if _, err := s.Next(); err == nil {
		t.Error("expected error from Next on empty source")
	}
}
