package validate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ffplayout/ffplayout-sub001/internal/config"
	"github.com/ffplayout/ffplayout-sub001/internal/media"
	"github.com/ffplayout/ffplayout-sub001/internal/probe"
	"github.com/ffplayout/ffplayout-sub001/internal/state"
)

func baseConfig(t *testing.T) *config.Snapshot {
	t.Helper()
	c := &config.PlayoutConfig{
		Processing: config.Processing{Width: 1280, Height: 720, FPS: 25},
	}
	if err := c.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return config.NewSnapshot(c, nil)
}

// fakeffprobe writes a tiny ffprobe-lookalike shell script reporting a
// fixed duration, so probeItem can run without a real media file.
func fakeffprobe(t *testing.T, duration string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\ncat <<EOF\n{\"format\":{\"duration\":\"" + duration + "\"},\"streams\":[{\"codec_type\":\"video\",\"width\":1280,\"height\":720}]}\nEOF\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake ffprobe: %v", err)
	}
	return path
}

func TestRunStopsImmediatelyWhenNotAlive(t *testing.T) {
	v := NewValidator("one", "sh", baseConfig(t), probe.NewProber("ffprobe", nil), state.NewFlags(), nil)
	v.Flags.IsAlive.Store(false)

	pl := &media.Playlist{Program: []media.Clip{{Source: "a.mp4", Duration: 10, Out: 10}}}
	if err := v.Run(context.Background(), pl); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if pl.Program[0].ProbeResult != nil {
		t.Errorf("expected no probing once is_alive is false")
	}
}

func TestAdjustDurationCorrectsBeyondSlop(t *testing.T) {
	v := NewValidator("one", "sh", baseConfig(t), nil, state.NewFlags(), nil)
	item := &media.Clip{Duration: 10, ProbeResult: &media.Probe{Duration: 15}}

	v.adjustDuration(item, 1, 0)

	if item.Duration != 15 {
		t.Errorf("expected duration corrected to 15, got %v", item.Duration)
	}
}

func TestAdjustDurationIgnoresSmallDrift(t *testing.T) {
	v := NewValidator("one", "sh", baseConfig(t), nil, state.NewFlags(), nil)
	item := &media.Clip{Duration: 10, ProbeResult: &media.Probe{Duration: 10.5}}

	v.adjustDuration(item, 1, 0)

	if item.Duration != 10 {
		t.Errorf("expected duration unchanged within slop, got %v", item.Duration)
	}
}

func TestRunProbesLocalItemsAndSkipsRemote(t *testing.T) {
	binary := fakeffprobe(t, "12.0")
	v := NewValidator("one", "sh", baseConfig(t), probe.NewProber(binary, nil), state.NewFlags(), nil)

	pl := &media.Playlist{Program: []media.Clip{
		{Source: "a.mp4", Duration: 12, Out: 12},
		{Source: "https://example.com/stream.mp4", Duration: 12, Out: 12},
	}}

	// checkMedia would spawn a real decoder (sh can't fake ffmpeg's
	// stderr protocol usefully here), so only the probe/remote-skip path
	// is exercised directly.
	for i := range pl.Program {
		item := &pl.Program[i]
		if isRemote(item.Source) {
			continue
		}
		if err := v.probeItem(context.Background(), item); err != nil {
			t.Fatalf("probeItem: %v", err)
		}
	}

	if pl.Program[0].ProbeResult == nil {
		t.Errorf("expected local item probed")
	}
	if pl.Program[1].ProbeResult != nil {
		t.Errorf("expected remote item left unprobed")
	}
}

func TestIsRemoteRecognizesSchemes(t *testing.T) {
	cases := map[string]bool{
		"a.mp4":                     false,
		"/mnt/media/a.mp4":          false,
		"http://host/a.mp4":         true,
		"https://host/a.mp4":        true,
		"gs://bucket/a.mp4":         true,
	}
	for source, want := range cases {
		if got := isRemote(source); got != want {
			t.Errorf("isRemote(%q) = %v, want %v", source, got, want)
		}
	}
}
