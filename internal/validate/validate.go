// Package validate implements the Validator (spec.md §4.11, component
// C11): an offline pre-flight pass over a loaded playlist that probes
// each clip, corrects duration drift against the playlist's own values,
// and runs a short decoder pass per clip to catch stream errors and
// silent audio before the clip is ever scheduled for live playback.
// Grounded on
// original_source/engine/src/player/utils/json_validate.rs's
// check_media/validate_playlist, reworked around internal/probe,
// internal/fffilter, and internal/procio rather than the original's
// inline regex/tokio-process plumbing.
package validate

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"

	"github.com/ffplayout/ffplayout-sub001/internal/clockutil"
	"github.com/ffplayout/ffplayout-sub001/internal/config"
	"github.com/ffplayout/ffplayout-sub001/internal/fffilter"
	"github.com/ffplayout/ffplayout-sub001/internal/media"
	"github.com/ffplayout/ffplayout-sub001/internal/procio"
	"github.com/ffplayout/ffplayout-sub001/internal/probe"
	"github.com/ffplayout/ffplayout-sub001/internal/state"
)

// durationSlop is the tolerance below which a playlist/probe duration
// mismatch is ignored, shared with the scheduler's own drift tolerance
// (spec §4.11 step 2, §4.5).
const durationSlop = 1.2

// silenceThreshold is the ffmpeg silencedetect noise floor used by the
// short validation pass, taken verbatim from the source engine's
// check_media.
const silenceThreshold = "-30dB"

var (
	volumeFilterRe = regexp.MustCompile(`volume=[0-9.]+`)
	silenceStartRe = regexp.MustCompile(`silence_start:\s*([0-9:.]+)`)
	silenceEndRe   = regexp.MustCompile(`silence_end:\s*([0-9:.]+)`)
)

// Validator runs the C11 pre-flight pass for one channel.
type Validator struct {
	Channel string
	Binary  string // decoder binary, e.g. "ffmpeg"
	CfgSnap *config.Snapshot
	Prober  *probe.Prober
	Flags   *state.Flags
	Log     logging.Logger
}

// NewValidator returns a Validator bound to the given decoder binary and
// probe backend.
func NewValidator(channel, binary string, cfgSnap *config.Snapshot, prober *probe.Prober, flags *state.Flags, log logging.Logger) *Validator {
	return &Validator{Channel: channel, Binary: binary, CfgSnap: cfgSnap, Prober: prober, Flags: flags, Log: log}
}

// Run validates every item of pl in order, cancellable via Flags.IsAlive
// (spec §4.11 step 5), and logs a final summary comparing cumulative
// duration to the configured playlist length (spec §4.11 step 4).
func (v *Validator) Run(ctx context.Context, pl *media.Playlist) error {
	cfg := v.CfgSnap.Get()
	begin := cfg.Playlist.StartSec

	for i := range pl.Program {
		if !v.Flags.IsAlive.Load() {
			return nil
		}
		item := &pl.Program[i]
		pos := i + 1

		if !isRemote(item.Source) {
			if err := v.probeItem(ctx, item); err != nil {
				if v.Log != nil {
					v.Log.Error("validation probe failed", "channel", v.Channel, "pos", pos, "begin", clockutil.SecToTime(begin), "source", item.Source, "error", err.Error())
				}
			}
		}

		if item.ProbeResult != nil {
			v.adjustDuration(item, pos, begin)
			if err := v.checkMedia(ctx, *item, pos, begin, cfg); err != nil && v.Log != nil {
				v.Log.Error("validator decoder check failed", "channel", v.Channel, "pos", pos, "error", err.Error())
			}
		}

		begin += item.Out - item.Seek
	}

	dayEnd := cfg.Playlist.StartSec + cfg.Playlist.LengthSec
	if !cfg.Playlist.Infinit && dayEnd > begin+durationSlop {
		if v.Log != nil {
			v.Log.Error("playlist not long enough", "channel", v.Channel, "date", pl.Date, "missing", clockutil.SecToTime(dayEnd-begin))
		}
	} else if v.Log != nil {
		v.Log.Info("validation done", "channel", v.Channel, "date", pl.Date, "length", clockutil.SecToTime(begin-cfg.Playlist.StartSec))
	}
	return nil
}

func (v *Validator) probeItem(ctx context.Context, item *media.Clip) error {
	p, err := v.Prober.Probe(ctx, item.Source)
	if err != nil {
		return err
	}
	item.ProbeResult = p
	if item.Audio != "" {
		ap, err := v.Prober.Probe(ctx, item.Audio)
		if err != nil {
			return err
		}
		item.ProbeAudioResult = ap
	}
	return nil
}

// adjustDuration implements spec §4.11 step 2: a playlist/probe duration
// mismatch beyond durationSlop is logged and corrected in place.
func (v *Validator) adjustDuration(item *media.Clip, pos int, begin float64) {
	probed := item.ProbeResult.Duration
	if probed <= 0 || absDiff(item.Duration, probed) <= durationSlop {
		return
	}
	if v.Log != nil {
		v.Log.Warning("file duration differs from playlist value",
			"channel", v.Channel, "pos", pos, "begin", clockutil.SecToTime(begin),
			"file_duration", clockutil.SecToTime(probed), "playlist_duration", clockutil.SecToTime(item.Duration),
			"source", item.Source)
	}
	item.Duration = probed
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

// checkMedia builds a truncated decoder pass over item and classifies its
// stderr, per spec §4.11 step 3.
func (v *Validator) checkMedia(ctx context.Context, item media.Clip, pos int, begin float64, cfg *config.PlayoutConfig) error {
	nullCfg := *cfg
	nullCfg.Output.Mode = config.Null
	nullCfg.Text.Enable = false // drawtext's bus port would conflict with a concurrent validation pass

	processLength := 0.1
	item.Seek = 0
	item.Out = item.Duration

	detectSilence := cfg.General.DetectSilence
	var silenceSeek float64
	if detectSilence {
		processLength = 15.0
		silenceSeek = item.Duration / 4.0
	}

	item.Cmd = buildValidateCmd(&item)

	if err := fffilter.Build(&nullCfg, &item, "", nil); err != nil {
		return errors.Wrap(err, "validate: build filter")
	}
	if item.Filter != "" {
		item.Filter = volumeFilterRe.ReplaceAllString(item.Filter, "anull")
	}
	item.Filter = appendFilter(item.Filter, fmt.Sprintf("silencedetect=n=%s", silenceThreshold))

	args := []string{"-hide_banner", "-nostats", "-v", "level+info"}
	args = append(args, cfg.Advanced.DecoderInputCmd...)
	if detectSilence && silenceSeek > 0 {
		args = append(args, "-ss", strconv.FormatFloat(silenceSeek, 'f', 3, 64))
	}
	args = append(args, item.Cmd...)
	if item.Filter != "" {
		args = append(args, "-filter_complex", item.Filter)
		args = append(args, item.FilterMaps...)
	}
	args = append(args, "-t", strconv.FormatFloat(processLength, 'f', 3, 64), "-f", "null", "-")

	cmd := exec.CommandContext(ctx, v.Binary, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "validate: stderr pipe")
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "validate: start")
	}

	var errLines []string
	var silenceStart, silenceEnd float64

	// Unlike the player loop's decoder, a validation pass tolerates
	// "unrecoverable" lines too (it's not driving live output) — so it
	// scans stderr directly rather than going through procio.Classify,
	// matching check_media's own line-by-line error-list collection
	// (spec §4.11 step 3).
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if procio.Level(line) == "error" || procio.Level(line) == "fatal" {
			cleaned := strings.TrimSpace(strings.NewReplacer("[error] ", "", "[fatal] ", "").Replace(line))
			if !contains(errLines, cleaned) && !containsAny(procio.IgnoreErrors, line) {
				errLines = append(errLines, cleaned)
			}
		}
		if detectSilence {
			if m := silenceStartRe.FindStringSubmatch(line); m != nil {
				silenceStart = parseTimestamp(m[1])
			}
			if m := silenceEndRe.FindStringSubmatch(line); m != nil {
				silenceEnd = parseTimestamp(m[1]) + 0.5
			}
		}
	}

	if detectSilence && silenceEnd-silenceStart > processLength {
		errLines = append(errLines, "audio is totally silent")
	}

	if len(errLines) > 0 && v.Log != nil {
		v.Log.Error("validator found decoder issues", "channel", v.Channel, "pos", pos, "begin", clockutil.SecToTime(begin), "source", item.Source, "errors", strings.Join(errLines, "; "))
	}

	waitErr := cmd.Wait()
	_ = waitErr
	return nil
}

// buildValidateCmd builds the minimal decoder input vector for a
// validation pass: the full file, start to finish, with no seek of its
// own — the silence-detection early seek (if any) is prepended by the
// caller as a separate -ss flag, matching check_media's "node.seek = 0.0;
// node.out = node.duration" reset before building cmd.
func buildValidateCmd(item *media.Clip) []string {
	cmd := []string{"-i", item.Source}
	if item.Audio != "" {
		cmd = append(cmd, "-i", item.Audio)
	}
	return cmd
}

func appendFilter(existing, add string) string {
	if existing == "" {
		return add
	}
	return existing + "," + add
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") || strings.HasPrefix(source, "gs://")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsAny(set []string, line string) bool {
	for _, s := range set {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

// parseTimestamp parses ffmpeg's silencedetect seconds-only format
// ("12.345"); the regex also tolerates an "HH:MM:SS" prefix from older
// builds, though silencedetect never emits one in practice.
func parseTimestamp(s string) float64 {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return 0
}

