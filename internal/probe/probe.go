// Package probe runs the external media probe tool (spec.md §4.2,
// component C2) and decodes its JSON report into a media.Probe. The wire
// shape and numeric-string coercion are grounded on
// original_source/engine/src/player/utils/probe.rs, which accepts
// duration/bit_rate/sample_rate/nb_frames either as JSON numbers or as
// quoted strings depending on the probe tool's build.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"

	"github.com/ffplayout/ffplayout-sub001/internal/media"
)

// DefaultTimeout bounds a single probe invocation so a hung probe process
// cannot stall the playlist store or validator (spec §5 "external processes
// ... must not block the scheduler indefinitely").
const DefaultTimeout = 20 * time.Second

// Prober invokes an ffprobe-compatible binary and parses its output.
type Prober struct {
	Binary  string
	Timeout time.Duration
	Log     logging.Logger
}

// NewProber returns a Prober for the given binary (e.g. "ffprobe"). If log
// is nil, probe failures are not logged, only returned as errors.
func NewProber(binary string, log logging.Logger) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	return &Prober{Binary: binary, Timeout: DefaultTimeout, Log: log}
}

// Probe runs the probe tool against path and returns a media.Probe
// describing its streams and container format. A non-zero exit or
// unparseable output is returned as an error (wrapped with the probe's
// stderr where available); callers treat this as "replace with dummy"
// per spec §4.5.
func (p *Prober) Probe(ctx context.Context, path string) (*media.Probe, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, p.Binary,
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-print_format", "json",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if p.Log != nil {
			p.Log.Warning("probe failed", "source", path, "error", runErr.Error(), "stderr", msg)
		}
		if msg != "" {
			return nil, errors.Wrapf(runErr, "probe %s: %s", path, msg)
		}
		return nil, errors.Wrapf(runErr, "probe %s", path)
	}

	var raw rawProbe
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return nil, errors.Wrapf(err, "probe %s: decode output", path)
	}

	return raw.toMediaProbe(), nil
}

func (p *Prober) timeout() time.Duration {
	if p.Timeout <= 0 {
		return DefaultTimeout
	}
	return p.Timeout
}

// rawProbe mirrors the probe tool's "-print_format json" shape exactly as
// original_source/engine/src/player/utils/probe.rs's FfProbe/Stream/Format
// structs do, including the fields that arrive as numeric strings.
type rawProbe struct {
	Streams []rawStream `json:"streams"`
	Format  rawFormat   `json:"format"`
}

type rawStream struct {
	Index             int64       `json:"index"`
	CodecName         string      `json:"codec_name"`
	CodecType         string      `json:"codec_type"`
	DisplayAspect     string      `json:"display_aspect_ratio"`
	NBFrames          numString   `json:"nb_frames"`
	SampleRate        numString   `json:"sample_rate"`
	BitRate           numString   `json:"bit_rate"`
	Channels          int64       `json:"channels"`
	Duration          numString   `json:"duration"`
	Width             int         `json:"width"`
	Height            int         `json:"height"`
	RFrameRate        string      `json:"r_frame_rate"`
	FieldOrder        string      `json:"field_order"`
}

type rawFormat struct {
	Duration  numString `json:"duration"`
	NBStreams int       `json:"nb_streams"`
	Size      numString `json:"size"`
	BitRate   numString `json:"bit_rate"`
}

func (r *rawProbe) toMediaProbe() *media.Probe {
	out := &media.Probe{
		Duration:  float64(r.Format.Duration),
		BitRate:   int64(r.Format.BitRate),
		NBStreams: r.Format.NBStreams,
	}
	for _, s := range r.Streams {
		switch s.CodecType {
		case "video":
			out.Video = append(out.Video, media.VideoStream{
				Width:      s.Width,
				Height:     s.Height,
				FPS:        parseFrameRate(s.RFrameRate),
				FieldOrder: s.FieldOrder,
				Aspect:     parseAspect(s.DisplayAspect, s.Width, s.Height),
			})
		case "audio":
			channels := s.Channels
			if channels == 0 {
				channels = 2
			}
			out.Audio = append(out.Audio, media.AudioStream{
				Channels:   int(channels),
				SampleRate: int(s.SampleRate),
			})
		}
	}
	return out
}

// parseFrameRate converts ffprobe's "num/den" r_frame_rate string to a
// float. An unparseable or zero-denominator rate yields 0, left for the
// caller to treat as "unknown".
func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, errN := strconv.ParseFloat(num, 64)
	d, errD := strconv.ParseFloat(den, 64)
	if errN != nil || errD != nil || d == 0 {
		return 0
	}
	return n / d
}

// parseAspect mirrors MediaProbe::aspect in probe.rs: prefer the stream's
// display_aspect_ratio ("W:H"), falling back to width/height.
func parseAspect(displayRatio string, width, height int) float64 {
	if w, h, ok := strings.Cut(displayRatio, ":"); ok {
		wf, errW := strconv.ParseFloat(w, 64)
		hf, errH := strconv.ParseFloat(h, 64)
		if errW == nil && errH == nil && hf != 0 {
			return wf / hf
		}
	}
	if width > 0 && height > 0 {
		return float64(width) / float64(height)
	}
	return 0
}

// numString unmarshals a JSON field that a probe tool may emit as either a
// bare number or a quoted numeric string, per probe.rs's
// serde_as(as = "Option<DisplayFromStr>") fields. Missing or empty values
// decode to zero.
type numString float64

func (n *numString) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("numString: %w", err)
		}
		if s == "" || s == "N/A" {
			*n = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*n = 0
			return nil
		}
		*n = numString(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("numString: %w", err)
	}
	*n = numString(v)
	return nil
}
