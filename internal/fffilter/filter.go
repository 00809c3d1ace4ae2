// Package fffilter builds the -filter_complex argument and its associated
// -map list for a single clip (spec.md §4.3, component C3). It is a pure
// function of a Clip and a PlayoutConfig, grounded step-for-step on
// original_source/lib/src/filter/mod.rs's filter_chains, with the chain
// builder's append/prefix rules (Filters::add_filter) preserved exactly.
package fffilter

import (
	"fmt"
	"os"
	"strings"

	"github.com/ausocean/utils/logging"

	"github.com/ffplayout/ffplayout-sub001/internal/clockutil"
	"github.com/ffplayout/ffplayout-sub001/internal/config"
	"github.com/ffplayout/ffplayout-sub001/internal/media"
)

// kind distinguishes a video chain append from an audio chain append.
type kind int

const (
	video kind = iota
	audio
)

// chains accumulates the video/audio filter chains and their map labels,
// mirroring the teacher's Filters struct and add_filter method exactly.
type chains struct {
	videoChain, audioChain     *string
	videoMap, audioMap         string
}

func newChains() *chains {
	return &chains{videoMap: "0:v", audioMap: "0:a"}
}

func (c *chains) add(filter string, k kind) {
	switch k {
	case audio:
		if c.audioChain != nil {
			joined := joinFilter(*c.audioChain, filter)
			c.audioChain = &joined
			return
		}
		var chain string
		if strings.Contains(filter, "aevalsrc") || strings.Contains(filter, "anoisesrc") {
			chain = filter
		} else {
			chain = fmt.Sprintf("[%s]%s", c.audioMap, filter)
		}
		c.audioChain = &chain
		c.audioMap = "[aout1]"
	case video:
		if c.videoChain != nil {
			joined := joinFilter(*c.videoChain, filter)
			c.videoChain = &joined
			return
		}
		chain := fmt.Sprintf("[0:v]%s", filter)
		c.videoChain = &chain
		c.videoMap = "[vout1]"
	}
}

func joinFilter(existing, filter string) string {
	if strings.HasPrefix(filter, ";") || strings.HasPrefix(filter, "[") {
		return existing + filter
	}
	return existing + "," + filter
}

// Build computes the clip's filter_complex chain and map arguments and
// stores them on c.Filter / c.FilterMaps. text is the current drawtext
// payload (from the live text bus or the filename-derived default); it may
// be empty.
func Build(cfg *config.PlayoutConfig, c *media.Clip, text string, log logging.Logger) error {
	fc := newChains()

	if c.ProbeResult != nil && c.ProbeResult.HasVideo() {
		vs := c.ProbeResult.Video[0]
		if !c.ProbeResult.HasAudio() || fileExists(c.Audio) {
			fc.audioMap = "1:a"
		}

		deinterlace(vs.FieldOrder, fc)
		pad(vs, cfg, fc)
		fpsFilter(vs.FPS, cfg, fc)
		scaleFilter(vs.Width, vs.Height, vs.Aspect, cfg, fc)
		extendVideo(c, vs, fc)

		addSilentAudio(c, fc, log)
		extendAudio(c, fc)
	} else {
		fpsFilter(0, cfg, fc)
		scaleFilter(0, 0, 1, cfg, fc)
	}

	addText(cfg, text, fc)
	fadeFilter(c, fc, video)
	overlay(c, cfg, fc)
	if err := realtimeFilter(c, cfg, fc); err != nil {
		return err
	}

	// Always present so -filter_complex has a deterministic audio split
	// point in HLS mode (spec §4.3 step 15).
	fc.add("anull", audio)

	if cfg.Processing.Loudnorm {
		fc.add(loudnormFilter(cfg), audio)
	}
	fadeFilter(c, fc, audio)
	if cfg.Processing.Volume != 1.0 {
		fc.add(fmt.Sprintf("volume=%v", cfg.Processing.Volume), audio)
	}

	applyCustom(cfg.Processing.CustomFilter, fc)
	applyCustom(c.CustomFilter, fc)

	c.Filter, c.FilterMaps = fc.assemble()
	return nil
}

// assemble renders the accumulated chains into a -filter_complex value and
// its -map arguments, matching the trailing assembly in filter_chains.
func (c *chains) assemble() (string, []string) {
	var filterStr strings.Builder
	var maps []string

	if c.videoChain != nil {
		filterStr.WriteString(*c.videoChain)
		filterStr.WriteString(c.videoMap)
		maps = append(maps, "-map", c.videoMap)
	} else {
		maps = append(maps, "-map", "0:v")
	}

	if c.audioChain != nil {
		if filterStr.Len() > 10 {
			filterStr.WriteByte(';')
		}
		filterStr.WriteString(*c.audioChain)
		filterStr.WriteString(c.audioMap)
		maps = append(maps, "-map", c.audioMap)
	} else {
		maps = append(maps, "-map", c.audioMap)
	}

	var filterComplex string
	if filterStr.Len() > 10 {
		filterComplex = filterStr.String()
	}
	return filterComplex, maps
}

func deinterlace(fieldOrder string, fc *chains) {
	if fieldOrder != "" && fieldOrder != "progressive" {
		fc.add("yadif=0:-1:0", video)
	}
}

func pad(vs media.VideoStream, cfg *config.PlayoutConfig, fc *chains) {
	if isClose(vs.Aspect, cfg.Processing.Aspect, 0.03) {
		return
	}
	var scale string
	if vs.Width > 0 && vs.Height > 0 {
		if vs.Width > cfg.Processing.Width && vs.Aspect > cfg.Processing.Aspect {
			scale = fmt.Sprintf("scale=%d:-1,", cfg.Processing.Width)
		} else if vs.Height > cfg.Processing.Height && vs.Aspect < cfg.Processing.Aspect {
			scale = fmt.Sprintf("scale=-1:%d,", cfg.Processing.Height)
		}
	}
	fc.add(fmt.Sprintf("%spad=max(iw\\,ih*(%d/%d)):ow/(%d/%d):(ow-iw)/2:(oh-ih)/2",
		scale, cfg.Processing.Width, cfg.Processing.Height, cfg.Processing.Width, cfg.Processing.Height), video)
}

func fpsFilter(sourceFPS float64, cfg *config.PlayoutConfig, fc *chains) {
	if sourceFPS != cfg.Processing.FPS {
		fc.add(fmt.Sprintf("fps=%v", cfg.Processing.FPS), video)
	}
}

func scaleFilter(width, height int, aspect float64, cfg *config.PlayoutConfig, fc *chains) {
	if width > 0 && height > 0 {
		if width != cfg.Processing.Width || height != cfg.Processing.Height {
			fc.add(fmt.Sprintf("scale=%d:%d", cfg.Processing.Width, cfg.Processing.Height), video)
		} else {
			fc.add("null", video)
		}
		if !isClose(aspect, cfg.Processing.Aspect, 0.03) {
			fc.add(fmt.Sprintf("setdar=dar=%v", cfg.Processing.Aspect), video)
		}
		return
	}
	fc.add(fmt.Sprintf("scale=%d:%d", cfg.Processing.Width, cfg.Processing.Height), video)
	fc.add(fmt.Sprintf("setdar=dar=%v", cfg.Processing.Aspect), video)
}

func extendVideo(c *media.Clip, vs media.VideoStream, fc *chains) {
	videoDuration := c.Duration
	if c.ProbeResult != nil {
		videoDuration = c.ProbeResult.Duration
	}
	if videoDuration <= 0 {
		return
	}
	if c.Out-c.Seek > videoDuration-c.Seek+0.1 && c.Duration >= c.Out {
		fc.add(fmt.Sprintf("tpad=stop_mode=add:stop_duration=%v", (c.Out-c.Seek)-(videoDuration-c.Seek)), video)
	}
}

func addSilentAudio(c *media.Clip, fc *chains, log logging.Logger) {
	hasAudio := c.ProbeResult != nil && c.ProbeResult.HasAudio()
	if hasAudio || fileExists(c.Audio) {
		return
	}
	if log != nil {
		log.Warning("clip has no audio", "source", c.Source)
	}
	fc.add(fmt.Sprintf("aevalsrc=0:channel_layout=stereo:duration=%v:sample_rate=48000", c.Out-c.Seek), audio)
}

func extendAudio(c *media.Clip, fc *chains) {
	audioDuration := c.Duration
	if c.ProbeAudioResult != nil {
		audioDuration = c.ProbeAudioResult.Duration
	} else if c.ProbeResult != nil && c.ProbeResult.HasAudio() {
		audioDuration = c.ProbeResult.Duration
	} else {
		return
	}
	if audioDuration <= 0 {
		return
	}
	if c.Out-c.Seek > audioDuration-c.Seek+0.1 && c.Duration >= c.Out {
		fc.add(fmt.Sprintf("apad=whole_dur=%v", c.Out-c.Seek), audio)
	}
}

func fadeFilter(c *media.Clip, fc *chains, k kind) {
	t := ""
	if k == audio {
		t = "a"
	}
	if c.Seek > 0 {
		fc.add(fmt.Sprintf("%sfade=in:st=0:d=0.5", t), k)
	}
	if c.Out != c.Duration && c.Out-c.Seek-1.0 > 0 {
		fc.add(fmt.Sprintf("%sfade=out:st=%v:d=1.0", t, c.Out-c.Seek-1.0), k)
	}
}

func overlay(c *media.Clip, cfg *config.PlayoutConfig, fc *chains) {
	if !cfg.Processing.AddLogo || c.Category == "advertisement" || !fileExists(cfg.Processing.LogoPath) {
		return
	}
	logoChain := fmt.Sprintf(
		"null[v];movie=%s:loop=0,setpts=N/(FRAME_RATE*TB),format=rgba,colorchannelmixer=aa=1.0[l];[v][l]%s:shortest=1",
		cfg.Processing.LogoPath, logoPosition(cfg.Processing.LogoPosition))
	if c.LastAd {
		logoChain += ",fade=in:st=0:d=1.0:alpha=1"
	}
	if c.NextAd {
		logoChain += fmt.Sprintf(",fade=out:st=%v:d=1.0:alpha=1", c.Out-c.Seek-1.0)
	}
	fc.add(logoChain, video)
}

func logoPosition(pos string) string {
	if pos == "" {
		return "overlay=W-w-12:12"
	}
	return "overlay=" + pos
}

func addText(cfg *config.PlayoutConfig, text string, fc *chains) {
	if !cfg.Text.Enable {
		return
	}
	if text == "" && !strings.EqualFold(string(cfg.Output.Mode), string(config.HLS)) {
		return
	}
	escaped := strings.NewReplacer(":", "\\:", "'", "\\'").Replace(text)
	font := ""
	if cfg.Text.FontPath != "" {
		font = fmt.Sprintf(":fontfile=%s", cfg.Text.FontPath)
	}
	fc.add(fmt.Sprintf("drawtext=text='%s'%s:fontsize=24:fontcolor=white:x=24:y=h-th-24", escaped, font), video)
}

func applyCustom(filter string, fc *chains) {
	v, a, ok := SplitCustomFilter(filter)
	if !ok {
		return
	}
	if v != "" {
		fc.add(v, video)
	}
	if a != "" {
		fc.add(a, audio)
	}
}

func isClose(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// clockDelta is a tiny indirection so realtime_filter can be unit tested
// without depending on clockutil.Now indirectly through this package.
var clockDelta = clockutil.Delta
