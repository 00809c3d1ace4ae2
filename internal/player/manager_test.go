package player

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/ffplayout/ffplayout-sub001/internal/config"
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

func TestStopDecoderIsIdempotentWithNoChildRunning(t *testing.T) {
	m := NewChannelManager("one", baseConfig(t), state.NewFlags(), nil)
	if err := m.Stop(DecoderUnit); err != nil {
		t.Errorf("expected no error stopping an unset decoder, got %v", err)
	}
}

func TestWaitGraceReapsAQuickExitWithoutEscalating(t *testing.T) {
	m := NewChannelManager("one", baseConfig(t), state.NewFlags(), nil)
	cmd := exec.Command("sh", "-c", "exit 0")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	m.SetDecoder(cmd)

	if err := m.WaitGrace(DecoderUnit, 2*time.Second); err != nil {
		t.Errorf("expected clean exit, got %v", err)
	}
}

func TestWaitGraceKillsAStuckProcessAfterGrace(t *testing.T) {
	m := NewChannelManager("one", baseConfig(t), state.NewFlags(), nil)
	cmd := exec.CommandContext(context.Background(), "sh", "-c", "trap '' TERM; sleep 30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	m.SetDecoder(cmd)

	start := time.Now()
	_ = m.Stop(DecoderUnit)
	_ = m.WaitGrace(DecoderUnit, 300*time.Millisecond)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("expected the grace timeout to force an exit quickly, took %v", elapsed)
	}
}

func TestStopAllClearsIsAliveUnlessRestarting(t *testing.T) {
	flags := state.NewFlags()
	m := NewChannelManager("one", baseConfig(t), flags, nil)

	m.StopAll(true)
	if !flags.IsAlive.Load() {
		t.Errorf("expected is_alive to remain set when restart=true")
	}

	m.StopAll(false)
	if flags.IsAlive.Load() {
		t.Errorf("expected is_alive cleared when restart=false")
	}
}

func TestUpdateConfigTakesEffectOnNextGet(t *testing.T) {
	cfg := baseConfig(t)
	m := NewChannelManager("one", cfg, state.NewFlags(), nil)

	next := &config.PlayoutConfig{Channel: "two"}
	_ = next.Resolve()
	m.UpdateConfig(next)

	if got := cfg.Get(); got.Channel != "two" {
		t.Errorf("expected swapped config to take effect, got channel %q", got.Channel)
	}
}
