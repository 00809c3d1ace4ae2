package player

import (
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ffplayout/ffplayout-sub001/internal/config"
	"github.com/ffplayout/ffplayout-sub001/internal/ingestsvc"
	"github.com/ffplayout/ffplayout-sub001/internal/state"
)

// ProcessUnit identifies one of the channel's three child-process slots
// (spec §3 "Channel runtime state", §4.8).
type ProcessUnit int

const (
	DecoderUnit ProcessUnit = iota
	EncoderUnit
	IngestUnit
)

func (u ProcessUnit) String() string {
	switch u {
	case DecoderUnit:
		return "decoder"
	case EncoderUnit:
		return "encoder"
	case IngestUnit:
		return "ingest"
	default:
		return "unknown"
	}
}

// ChannelManager owns the channel's child-process handles and atomic
// flags, and exposes the start/stop/wait/update_config operations of
// spec §4.8. The decoder and encoder slots share one mutex (mu), held
// whenever a handle is read or replaced, so the stop API and the player
// loop never race on the same handle; the ingest child is guarded inside
// ingestsvc.Listener.
type ChannelManager struct {
	Channel string
	CfgSnap *config.Snapshot
	Flags   *state.Flags
	Log     logging.Logger

	// Ingest, if non-nil, is the ingest listener whose child this
	// manager's Stop(IngestUnit) delegates to — ingestsvc owns that
	// child's lifecycle internally (including restart), so the manager
	// only needs to ask it to stop the current attempt.
	Ingest *ingestsvc.Listener

	mu      sync.Mutex
	decoder *exec.Cmd
	encoder *exec.Cmd
}

// NewChannelManager returns a ChannelManager in the alive, awaiting-start
// state.
func NewChannelManager(channel string, cfgSnap *config.Snapshot, flags *state.Flags, log logging.Logger) *ChannelManager {
	return &ChannelManager{Channel: channel, CfgSnap: cfgSnap, Flags: flags, Log: log}
}

// SetDecoder records the currently running decoder child, replacing any
// prior (already-exited) one.
func (m *ChannelManager) SetDecoder(cmd *exec.Cmd) {
	m.mu.Lock()
	m.decoder = cmd
	m.mu.Unlock()
}

// SetEncoder records the currently running encoder child.
func (m *ChannelManager) SetEncoder(cmd *exec.Cmd) {
	m.mu.Lock()
	m.encoder = cmd
	m.mu.Unlock()
}

// Stop terminates the given unit's current child, if any. Decoder gets a
// graceful SIGTERM so buffered frames flush; Encoder and Ingest are
// killed outright (spec §4.8, §5 "Per-child termination policy"). Stop is
// idempotent: a unit with no running child (already exited, or never
// started) is a no-op, not an error.
func (m *ChannelManager) Stop(unit ProcessUnit) error {
	switch unit {
	case DecoderUnit:
		m.mu.Lock()
		cmd := m.decoder
		m.mu.Unlock()
		return stopGraceful(cmd)
	case EncoderUnit:
		m.mu.Lock()
		cmd := m.encoder
		m.mu.Unlock()
		return stopKill(cmd)
	case IngestUnit:
		if m.Ingest != nil {
			return m.Ingest.Kill()
		}
	}
	return nil
}

// StopAll stops Decoder, Encoder, and Ingest in that order (spec §4.8
// stop_all), then clears is_alive unless restart is requested.
func (m *ChannelManager) StopAll(restart bool) {
	_ = m.Stop(DecoderUnit)
	_ = m.Stop(EncoderUnit)
	_ = m.Stop(IngestUnit)
	if !restart {
		m.Flags.IsAlive.Store(false)
	}
}

// Wait awaits the given unit's current child exit, to reap it after a
// stop. A nil/already-reaped child is a no-op.
func (m *ChannelManager) Wait(unit ProcessUnit) error {
	switch unit {
	case DecoderUnit:
		m.mu.Lock()
		cmd := m.decoder
		m.mu.Unlock()
		if cmd == nil || cmd.Process == nil || cmd.ProcessState != nil {
			return nil
		}
		return cmd.Wait()
	case EncoderUnit:
		m.mu.Lock()
		cmd := m.encoder
		m.mu.Unlock()
		if cmd == nil || cmd.Process == nil || cmd.ProcessState != nil {
			return nil
		}
		return cmd.Wait()
	}
	return nil
}

// UpdateConfig atomically swaps the config snapshot; it takes effect at
// the next Get call on the snapshot (see config.Snapshot.Swap for who
// calls Get) (spec §4.8 update_config, §5 config ordering guarantee).
func (m *ChannelManager) UpdateConfig(next *config.PlayoutConfig) {
	m.CfgSnap.Swap(next)
}

func stopGraceful(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}

func stopKill(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// WaitGrace waits up to grace for the given unit's current child to exit
// after a Stop, escalating to Kill if it hasn't (spec §4.7 "Shutdown":
// SIGTERM, then kill). A nil/already-reaped child is a no-op.
func (m *ChannelManager) WaitGrace(unit ProcessUnit, grace time.Duration) error {
	m.mu.Lock()
	var cmd *exec.Cmd
	switch unit {
	case DecoderUnit:
		cmd = m.decoder
	case EncoderUnit:
		cmd = m.encoder
	}
	m.mu.Unlock()
	if cmd == nil || cmd.Process == nil || cmd.ProcessState != nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(grace):
		_ = cmd.Process.Kill()
		return <-done
	}
}
