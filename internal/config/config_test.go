package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveDefaults(t *testing.T) {
	c := &PlayoutConfig{Channel: "one"}
	if err := c.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c.Playlist.LengthSec != 86400 {
		t.Errorf("expected default length 86400, got %v", c.Playlist.LengthSec)
	}
	if c.Playlist.StartSec != 0 {
		t.Errorf("expected default start 0, got %v", c.Playlist.StartSec)
	}
	if c.Output.Mode != Null {
		t.Errorf("expected default output mode Null, got %v", c.Output.Mode)
	}
}

func TestResolveCustomDayStart(t *testing.T) {
	c := &PlayoutConfig{Playlist: Playlist{DayStart: "06:00:00", Length: "24:00:00"}}
	if err := c.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c.Playlist.StartSec != 6*3600 {
		t.Errorf("expected start 21600, got %v", c.Playlist.StartSec)
	}
}

func TestResolveInvalidDayStart(t *testing.T) {
	c := &PlayoutConfig{Playlist: Playlist{DayStart: "garbage"}}
	if err := c.Resolve(); err == nil {
		t.Errorf("expected error for invalid day_start")
	}
}

func TestResolveDefaultsFolderOrderOnlyWhenEnabled(t *testing.T) {
	c := &PlayoutConfig{Channel: "one"}
	if err := c.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c.Folder.Order != "" {
		t.Errorf("expected no default order when folder mode disabled, got %q", c.Folder.Order)
	}

	c = &PlayoutConfig{Channel: "one", Folder: Folder{Enable: true}}
	if err := c.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c.Folder.Order != FolderShuffle {
		t.Errorf("expected default order %q, got %q", FolderShuffle, c.Folder.Order)
	}
}

func TestLoadParsesTOMLAndResolves(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channel.toml")
	body := `
channel = "one"

[playlist]
day_start = "06:00:00"
length = "18:00:00"

[output]
mode = "hls"
output_cmd = ["-c:v", "libx264"]

[folder]
enable = true
root = "/media/loop"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Channel != "one" {
		t.Errorf("Channel = %q, want one", c.Channel)
	}
	if c.Playlist.StartSec != 6*3600 {
		t.Errorf("StartSec = %v, want 21600", c.Playlist.StartSec)
	}
	if c.Output.Mode != HLS {
		t.Errorf("Output.Mode = %q, want hls", c.Output.Mode)
	}
	if !c.Folder.Enable || c.Folder.Root != "/media/loop" {
		t.Errorf("Folder = %+v, want enabled with root /media/loop", c.Folder)
	}
	if c.Folder.Order != FolderShuffle {
		t.Errorf("Folder.Order = %q, want default shuffle", c.Folder.Order)
	}
}

func TestSnapshotSwapAppliesOnNextGet(t *testing.T) {
	first := &PlayoutConfig{Channel: "first"}
	second := &PlayoutConfig{Channel: "second"}
	snap := NewSnapshot(first, nil)

	if got := snap.Get(); got.Channel != "first" {
		t.Fatalf("expected first, got %s", got.Channel)
	}

	snap.Swap(second)

	// Simulate mid-clip: config must not change until the next Get call
	// that the player loop makes at a clip boundary. Since Get itself is
	// the boundary check, the first Get after Swap sees the new config.
	if got := snap.Get(); got.Channel != "second" {
		t.Errorf("expected second after swap, got %s", got.Channel)
	}
	if got := snap.Get(); got.Channel != "second" {
		t.Errorf("expected second to stick, got %s", got.Channel)
	}
}
