// Package config defines PlayoutConfig, the immutable per-run channel
// configuration snapshot (spec.md §3). It is unmarshalled from TOML, the
// source engine's native config format (original_source/ffplayout/src/utils/config.rs),
// and is updated only by atomic snapshot swap (spec §4.8 update_config).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/ausocean/utils/logging"
	"github.com/ffplayout/ffplayout-sub001/internal/clockutil"
)

// OutputMode is output.mode from spec §3.
type OutputMode string

const (
	Desktop OutputMode = "desktop"
	HLS     OutputMode = "hls"
	Null    OutputMode = "null"
	Stream  OutputMode = "stream"
)

// FolderOrder controls how Folder Mode (C9) orders files at the start of
// each pass and on wraparound. Made explicit per REDESIGN FLAG (a) in
// spec.md §9, rather than branching on a global.
type FolderOrder string

const (
	FolderShuffle     FolderOrder = "shuffle"
	FolderSortedAlpha FolderOrder = "sorted_alpha"
)

// Playlist holds playlist.* config section.
type Playlist struct {
	DayStart string `toml:"day_start"` // HH:MM:SS
	Length   string `toml:"length"`    // HH:MM:SS, default "24:00:00"
	Infinit  bool   `toml:"infinit"`   // loop same day forever
	Path     string `toml:"path"`      // local root, http(s) base, or gs:// bucket base

	// Derived, computed once at load time via clockutil.TimeToSec.
	StartSec  float64 `toml:"-"`
	LengthSec float64 `toml:"-"`
}

// General holds general.* config section.
type General struct {
	StopThreshold float64 `toml:"stop_threshold"` // seconds; <=0 disables drift-fatal checking

	// TaskCmd, if non-empty, is run fire-and-forget ahead of each clip's
	// decoder spawn (spec §4.7 step 7) — e.g. a notification or logging
	// hook. Empty disables the hook.
	TaskCmd []string `toml:"task_cmd"`

	// DetectSilence enables the Validator's (C11) silencedetect pass and
	// its longer 15s truncated-clip check (spec §4.11 step 3).
	DetectSilence bool `toml:"detect_silence"`
}

// Processing holds processing.* config section: target format for the
// filter builder (C3) and decoder/encoder argument construction.
type Processing struct {
	Width         int     `toml:"width"`
	Height        int     `toml:"height"`
	FPS           float64 `toml:"fps"`
	Aspect        float64 `toml:"aspect"`
	AudioTracks   int     `toml:"audio_tracks"`
	AudioChannels int     `toml:"audio_channels"`
	Volume        float64 `toml:"volume"`
	AddLogo       bool    `toml:"add_logo"`
	LogoPath      string  `toml:"logo_path"`
	LogoPosition  string  `toml:"logo_position"` // e.g. "W-w-12:12"
	Loudnorm      bool    `toml:"loudnorm"`
	CustomFilter  string  `toml:"custom_filter"` // appended raw filter suffix (spec §4.3 step 14)

	// RealtimeSpeedExpr is an operator-supplied govaluate expression
	// evaluated by internal/fffilter to compute the realtime=speed=s
	// filter parameter in HLS mode (spec §4.3 step 11). If empty, the
	// built-in default formula is used. Variables available: delta,
	// stop_threshold.
	RealtimeSpeedExpr string `toml:"realtime_speed_expr"`
}

// Output holds output.* config section.
type Output struct {
	Mode      OutputMode `toml:"mode"`
	OutputCmd []string   `toml:"output_cmd"`

	// AuthTokenURL is an OAuth2 token endpoint, the tokenURL argument
	// that secrets.NewTokenSource takes. The player loop does not read
	// it: the encoder is started without a bearer token.
	AuthTokenURL string `toml:"auth_token_url"`
}

// Ingest holds ingest.* config section.
type Ingest struct {
	Enable     bool     `toml:"enable"`
	InputCmd   []string `toml:"input_cmd"`
	ListenPort int      `toml:"listen_port"`
}

// Storage holds storage.* config section.
type Storage struct {
	Filler     string   `toml:"filler"` // file or directory
	Extensions []string `toml:"extensions"`
}

// Text holds text.* config section: drawtext + optional live message bus.
type Text struct {
	Enable    bool   `toml:"enable"`
	FontPath  string `toml:"font_path"`
	BusEnable bool   `toml:"bus_enable"`
	BusAddr   string `toml:"bus_addr"`     // host:port, auto-allocated when zero
	BusJWTKey []byte `toml:"bus_jwt_key"` // HMAC key used to verify textbus messages
}

// Advanced holds operator-supplied extra flags inserted around the
// per-clip command, filling in the "advanced config" layer from
// original_source/ffplayout/src/utils/advanced_config.rs.
type Advanced struct {
	DecoderInputCmd  []string `toml:"decoder_input_cmd"`
	DecoderOutputCmd []string `toml:"decoder_output_cmd"`
	IngestInputCmd   []string `toml:"ingest_input_cmd"`
	IngestOutputCmd  []string `toml:"ingest_output_cmd"`
}

// Folder holds folder.* config section: Folder Mode (C9), the tagged
// alternative to playlist-driven scheduling (spec §4.9). Root and Order
// are ignored unless Enable is set; storage.extensions gates which files
// under Root are playable, same as the filler-directory fallback.
type Folder struct {
	Enable bool        `toml:"enable"`
	Root   string      `toml:"root"`
	Order  FolderOrder `toml:"order"` // "shuffle" or "sorted_alpha"
}

// PlayoutConfig is the immutable per-run snapshot described in spec.md §3.
type PlayoutConfig struct {
	Channel    string     `toml:"channel"`
	Playlist   Playlist   `toml:"playlist"`
	General    General    `toml:"general"`
	Processing Processing `toml:"processing"`
	Output     Output     `toml:"output"`
	Ingest     Ingest     `toml:"ingest"`
	Storage    Storage    `toml:"storage"`
	Text       Text       `toml:"text"`
	Advanced   Advanced   `toml:"advanced"`
	Folder     Folder     `toml:"folder"`

	Location *time.Location `toml:"-"`
}

// Load reads and unmarshals a TOML config file at path (the source
// engine's native config format, original_source/ffplayout/src/utils/config.rs),
// then resolves derived fields via Resolve.
func Load(path string) (*PlayoutConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c PlayoutConfig
	if err := toml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.Resolve(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Resolve fills in derived fields (StartSec/LengthSec) and defaults. It
// must be called once after unmarshalling/building a PlayoutConfig and
// before it is handed to the scheduler.
func (c *PlayoutConfig) Resolve() error {
	if c.Playlist.DayStart == "" {
		c.Playlist.DayStart = "00:00:00"
	}
	if c.Playlist.Length == "" {
		c.Playlist.Length = "24:00:00"
	}
	start, err := clockutil.TimeToSec(c.Playlist.DayStart)
	if err != nil {
		return fmt.Errorf("invalid playlist.day_start: %w", err)
	}
	length, err := clockutil.TimeToSec(c.Playlist.Length)
	if err != nil {
		return fmt.Errorf("invalid playlist.length: %w", err)
	}
	c.Playlist.StartSec = start
	c.Playlist.LengthSec = length
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Output.Mode == "" {
		c.Output.Mode = Null
	}
	if c.Folder.Enable && c.Folder.Order == "" {
		c.Folder.Order = FolderShuffle
	}
	return nil
}

// ClockConfig projects the clock-relevant fields into a clockutil.Config,
// to avoid a dependency cycle from clockutil back into config.
func (c *PlayoutConfig) ClockConfig() clockutil.Config {
	return clockutil.Config{
		StartSec:      c.Playlist.StartSec,
		LengthSec:     c.Playlist.LengthSec,
		StopThreshold: c.General.StopThreshold,
		Location:      c.Location,
	}
}

// Snapshot is an atomically-swappable holder for a *PlayoutConfig, used by
// the channel manager (spec §4.8 update_config: "atomic swap of the config
// snapshot... updates swap snapshots atomically and take effect at the
// next clip boundary — never mid-clip").
type Snapshot struct {
	log logging.Logger
	cur *PlayoutConfig
	ch  chan *PlayoutConfig
}

// NewSnapshot creates a Snapshot seeded with the given initial config.
func NewSnapshot(initial *PlayoutConfig, log logging.Logger) *Snapshot {
	return &Snapshot{log: log, cur: initial, ch: make(chan *PlayoutConfig, 1)}
}

// Get returns the currently active config. Safe for concurrent use with
// Swap; the caller gets a consistent pointer for the duration of one clip.
func (s *Snapshot) Get() *PlayoutConfig {
	select {
	case next := <-s.ch:
		s.cur = next
		if s.log != nil {
			s.log.Info("config snapshot swapped")
		}
	default:
	}
	return s.cur
}

// Swap enqueues a new config to take effect the next time Get is called,
// by any caller (spec §4.8, §5 config ordering guarantee). The scheduler
// and the player loop call Get once per clip; the ingest listener and the
// validator also call Get at their own points, so the first of them to
// call Get after a Swap applies it.
func (s *Snapshot) Swap(next *PlayoutConfig) {
	// Drain any stale pending swap so the latest one wins.
	select {
	case <-s.ch:
	default:
	}
	s.ch <- next
}
