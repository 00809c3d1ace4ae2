package player

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"bou.ke/monkey"

	"github.com/ffplayout/ffplayout-sub001/internal/config"
	"github.com/ffplayout/ffplayout-sub001/internal/ingestsvc"
	"github.com/ffplayout/ffplayout-sub001/internal/media"
	"github.com/ffplayout/ffplayout-sub001/internal/playlist"
	"github.com/ffplayout/ffplayout-sub001/internal/probe"
	"github.com/ffplayout/ffplayout-sub001/internal/schedule"
	"github.com/ffplayout/ffplayout-sub001/internal/state"
)

// newTestIterator builds a minimal Iterator whose first Next call always
// yields filler (no probe needed) — enough for exercising the byte
// forwarding loop's RequestResync call without a real playlist.
func newTestIterator(t *testing.T) *schedule.Iterator {
	t.Helper()
	monkey.Patch(time.Now, func() time.Time { return time.Date(2023, 2, 8, 0, 0, 5, 0, time.UTC) })
	t.Cleanup(func() { monkey.Unpatch(time.Now) })

	dir := t.TempDir()
	path := filepath.Join(dir, "2023", "02", "2023-02-08.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	body := `{"channel":"one","date":"2023-02-08","program":[{"in":0,"out":10,"duration":10,"source":"a.mp4"}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c := &config.PlayoutConfig{
		Processing: config.Processing{Width: 1280, Height: 720, FPS: 25},
		Storage:    config.Storage{Extensions: []string{"mp4"}},
	}
	if err := c.Resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	c.Playlist.StartSec = 10 // now (t=5s) falls before the first clip
	snap := config.NewSnapshot(c, nil)

	loader := playlist.NewLoader(dir, "", nil)
	it, err := schedule.NewIterator(context.Background(), "one", snap, loader, probe.NewProber("ffprobe", nil), "2023-02-08", nil)
	if err != nil {
		t.Fatalf("NewIterator: %v", err)
	}
	return it
}

func newTestLoop(t *testing.T) *Loop {
	flags := state.NewFlags()
	cfg := config.NewSnapshot(&config.PlayoutConfig{}, nil)
	return &Loop{
		Channel:  "one",
		CfgSnap:  cfg,
		Iterator: newTestIterator(t),
		Flags:    flags,
		Machine:  state.NewMachine("one", flags, nil),
		Manager:  NewChannelManager("one", cfg, flags, nil),
		health:   newTSHealth(nil),
	}
}

func TestForwardCopiesDecoderBytesAndReturnsOnEOF(t *testing.T) {
	l := newTestLoop(t)
	r, w, _ := os.Pipe()
	var out bytes.Buffer

	go func() {
		w.Write([]byte("hello"))
		w.Close()
	}()

	if err := l.forward(context.Background(), r, &out); err != nil {
		t.Errorf("expected clean EOF return, got %v", err)
	}
	if out.String() != "hello" {
		t.Errorf("expected forwarded bytes %q, got %q", "hello", out.String())
	}
}

func TestForwardReturnsImmediatelyWhenNotAlive(t *testing.T) {
	l := newTestLoop(t)
	l.Flags.IsAlive.Store(false)

	r, _, _ := os.Pipe()
	var out bytes.Buffer
	if err := l.forward(context.Background(), r, &out); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected nothing forwarded once is_alive is false")
	}
}

// TestForwardResyncsOnLiveEnded drives an ingest override transition
// (ingest_is_alive true then false) and expects the playout mode machine
// to cycle Playing -> LiveOverride -> Playing and list_init to be raised
// again on return, per spec §4.7 step 10 / §4.12.
func TestForwardResyncsOnLiveEnded(t *testing.T) {
	l := newTestLoop(t)
	l.Ingest = ingestsvc.NewListener("one", "sh", config.NewSnapshot(&config.PlayoutConfig{}, nil), l.Flags, nil)
	l.Machine.Handle(state.StartEvent{})
	l.Flags.ListInit.Store(false)
	l.Flags.IngestIsAlive.Store(true)

	r, w, _ := os.Pipe()
	stopWriting := make(chan struct{})
	defer func() { close(stopWriting); w.Close() }()
	go func() {
		for {
			select {
			case <-stopWriting:
				return
			default:
				w.Write([]byte{0})
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()

	done := make(chan error, 1)
	go func() { done <- l.forward(context.Background(), r, io.Discard) }()

	time.Sleep(20 * time.Millisecond)
	if l.Machine.Mode() != state.LiveOverride {
		t.Fatalf("expected LiveOverride once ingest_is_alive flipped true, got %v", l.Machine.Mode())
	}

	l.Flags.IngestIsAlive.Store(false)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil on resync return, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forward to return after live ended")
	}

	if l.Machine.Mode() != state.Playing {
		t.Errorf("expected Playing after live ended, got %v", l.Machine.Mode())
	}
	if !l.Flags.ListInit.Load() {
		t.Errorf("expected list_init raised again for resync")
	}
}

// TestForwardStopsStaleDecoderOnLiveDetected drives the ingest_is_alive
// false->true transition and expects the abandoned decoder child
// (registered via Manager.SetDecoder, as the real player loop does before
// calling forward) to be stopped at entry into LiveOverride — not left
// running with its undrained stdout pipe for the override's duration
// (spec §4.7 step 10 / §4.12).
func TestForwardStopsStaleDecoderOnLiveDetected(t *testing.T) {
	l := newTestLoop(t)
	l.Ingest = ingestsvc.NewListener("one", "sh", config.NewSnapshot(&config.PlayoutConfig{}, nil), l.Flags, nil)
	l.Machine.Handle(state.StartEvent{})

	decoder := exec.Command("sleep", "30")
	if err := decoder.Start(); err != nil {
		t.Fatalf("start fake decoder: %v", err)
	}
	l.Manager.SetDecoder(decoder)
	decoderDone := make(chan error, 1)
	go func() { decoderDone <- decoder.Wait() }()

	r, w, _ := os.Pipe()
	stopWriting := make(chan struct{})
	t.Cleanup(func() { close(stopWriting); w.Close() })
	go func() {
		for {
			select {
			case <-stopWriting:
				return
			default:
				w.Write([]byte{0})
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()

	done := make(chan error, 1)
	go func() { done <- l.forward(context.Background(), r, io.Discard) }()
	t.Cleanup(func() {
		l.Flags.IsAlive.Store(false)
		<-done
	})

	l.Flags.IngestIsAlive.Store(true)

	select {
	case <-decoderDone:
		// stopped, as expected
	case <-time.After(2 * time.Second):
		t.Fatal("stale decoder was not stopped on live-detected transition")
	}
}

func TestRunTaskHookNoopWhenUnconfigured(t *testing.T) {
	l := newTestLoop(t)
	// Should not panic or block with no TaskCmd configured.
	l.runTaskHook(&media.Clip{Source: "a.mp4"})
}
