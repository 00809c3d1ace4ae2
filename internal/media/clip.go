// Package media defines the playout engine's clip and playlist data model
// (spec §3). Clip is the unit that flows from the playlist store, through
// the scheduler, to the player loop.
package media

import "fmt"

// Unit identifies which external process a Clip's command targets.
type Unit int

const (
	Decoder Unit = iota
	Encoder
	Ingest
)

func (u Unit) String() string {
	switch u {
	case Decoder:
		return "decoder"
	case Encoder:
		return "encoder"
	case Ingest:
		return "ingest"
	default:
		return "unknown"
	}
}

// Probe holds the subset of ffprobe-style output the engine cares about.
type Probe struct {
	Duration  float64
	Video     []VideoStream
	Audio     []AudioStream
	BitRate   int64
	NBStreams int
}

// HasVideo reports whether the probe found at least one video stream.
func (p *Probe) HasVideo() bool { return p != nil && len(p.Video) > 0 }

// HasAudio reports whether the probe found at least one audio stream.
func (p *Probe) HasAudio() bool { return p != nil && len(p.Audio) > 0 }

type VideoStream struct {
	Width, Height int
	FPS           float64
	FieldOrder    string // "progressive", "tt", "bb", etc.
	Aspect        float64
}

type AudioStream struct {
	Channels   int
	SampleRate int
}

// Clip is a single playable entry in a playlist, or a synthesised filler.
// Field names and semantics follow spec.md §3 (Media) exactly.
type Clip struct {
	Index int // position in current list (0-based)

	Seek     float64 // "in": seconds to skip from file start
	Out      float64 // seconds at which playback stops
	Duration float64 // probed length of the underlying file

	Source string // path or URL
	Audio  string // optional secondary audio path

	Category     string
	CustomFilter string
	Title        string

	// Begin is the scheduled wall-clock second within the broadcast day
	// at which this clip should start playing. Assigned by the playlist
	// store / iterator, never by the caller.
	Begin float64

	LastAd bool
	NextAd bool

	ProbeResult      *Probe
	ProbeAudioResult *Probe

	Filter string // rendered -filter_complex argument, set by fffilter.Build
	FilterMaps []string

	Cmd []string // fully built decoder argument vector

	// Skip means the clip is valid but too short to contribute; the
	// iterator still yields it, and the player loop passes over it
	// without starting a decoder.
	Skip bool

	// Unit says which process this clip's Cmd targets.
	Unit Unit

	// Filler is true if this Clip was synthesised by the filler/dummy
	// fallback logic (spec §4.5) rather than drawn from the playlist.
	Filler bool
}

// Length returns the effective play length (out - seek).
func (c *Clip) Length() float64 { return c.Out - c.Seek }

// End returns the scheduled wall-clock second at which this clip finishes.
func (c *Clip) End() float64 { return c.Begin + c.Length() }

// Valid reports whether the clip satisfies the seek/out/duration invariant
// from spec §3, tolerating the documented 0.5s probe/container slop.
func (c *Clip) Valid() bool {
	const eps = 0.5
	return c.Seek >= 0 && c.Seek <= c.Out && c.Out <= c.Duration+eps
}

// Clamp enforces the seek/out/duration invariant, clamping Out down to
// Duration when it exceeds Duration+eps and Seek down to Out if
// necessary, per spec §3's "clamped or
// replaced with filler" rule. It never extends Out.
func (c *Clip) Clamp() {
	const eps = 0.5
	if c.Out > c.Duration+eps {
		c.Out = c.Duration
	}
	if c.Seek > c.Out {
		c.Seek = c.Out
	}
	if c.Seek < 0 {
		c.Seek = 0
	}
}

func (c *Clip) String() string {
	return fmt.Sprintf("Clip{index=%d begin=%.3f seek=%.3f out=%.3f source=%q}",
		c.Index, c.Begin, c.Seek, c.Out, c.Source)
}
