package state

import (
	"fmt"
	"sync"

	"github.com/ausocean/utils/logging"
)

// Mode is a playout mode machine state (spec §4.12, "Playout mode
// machine (per channel)").
type Mode int

const (
	Idle Mode = iota
	Playing
	LiveOverride
	Stopped
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case LiveOverride:
		return "live_override"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event is a playout mode transition trigger, mirroring the teacher's
// event interface (cmd/oceantv/broadcast_events.go) without its YouTube
// registry — there is no external event catalogue to register against
// here.
type Event interface{ fmt.Stringer }

// StartEvent fires once when the channel manager starts the player loop.
type StartEvent struct{}

func (StartEvent) String() string { return "start" }

// LiveDetectedEvent fires when ingest_is_alive flips true while playing.
type LiveDetectedEvent struct{}

func (LiveDetectedEvent) String() string { return "live_detected" }

// LiveEndedEvent fires when ingest_is_alive flips false during an override.
type LiveEndedEvent struct{}

func (LiveEndedEvent) String() string { return "live_ended" }

// UnrecoverableErrorEvent fires when the stderr classifier (C10) or any
// child task hits an unrecoverable condition.
type UnrecoverableErrorEvent struct{ Err error }

func (UnrecoverableErrorEvent) String() string { return "unrecoverable_error" }

// StopEvent fires on an explicit operator stop.
type StopEvent struct{}

func (StopEvent) String() string { return "stop" }

// Machine is the per-channel playout mode state machine (spec §4.12).
type Machine struct {
	mu      sync.Mutex
	mode    Mode
	flags   *Flags
	log     logging.Logger
	channel string
}

// NewMachine returns a Machine in Idle, bound to flags so that transitions
// set the shared cancellation/resync signals the rest of the channel's
// task tree polls.
func NewMachine(channel string, flags *Flags, log logging.Logger) *Machine {
	return &Machine{mode: Idle, flags: flags, log: log, channel: channel}
}

// Mode returns the current state.
func (m *Machine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Handle applies one event, per spec §4.12's transition table:
//
//	Idle -> Playing:        manager started; list_init raised.
//	Playing -> LiveOverride: ingest_is_alive flips true; list_init raised
//	                         so re-entry happens at §4.5 step 2 on return.
//	LiveOverride -> Playing: ingest_is_alive flips false.
//	any -> Stopped:          unrecoverable error or operator stop.
func (m *Machine) Handle(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.mode
	switch e.(type) {
	case StartEvent:
		if m.mode == Idle {
			m.mode = Playing
			m.flags.ListInit.Store(true)
		}
	case LiveDetectedEvent:
		if m.mode == Playing {
			m.mode = LiveOverride
			m.flags.ListInit.Store(true)
		}
	case LiveEndedEvent:
		if m.mode == LiveOverride {
			m.mode = Playing
		}
	case UnrecoverableErrorEvent, StopEvent:
		m.mode = Stopped
		m.flags.IsAlive.Store(false)
	}

	if m.log != nil && prev != m.mode {
		m.log.Info("playout mode transition", "channel", m.channel, "from", prev.String(), "to", m.mode.String(), "event", e.String())
	}
}
