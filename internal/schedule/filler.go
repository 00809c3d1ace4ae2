package schedule

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/ffplayout/ffplayout-sub001/internal/config"
	"github.com/ffplayout/ffplayout-sub001/internal/media"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".gif": true, ".webp": true,
}

// GenerateFiller builds a dummy clip of exactly length seconds, per spec
// §4.5's three-way filler substitution: a configured filler directory
// yields one matching file, looped with `-stream_loop -1` and cut with
// `-t D`; a configured filler image loops via
// `-loop 1 -i image -t D`; anything else (including a missing filler path)
// falls back to a synthesised `lavfi` color+noise pair, grounded on
// original_source/src/utils/mod.rs's gen_dummy and
// engine/src/player/utils/mod.rs's gen_dummy.
func GenerateFiller(cfg *config.PlayoutConfig, length float64) *media.Clip {
	path := cfg.Storage.Filler

	if path != "" {
		if info, err := os.Stat(path); err == nil {
			if info.IsDir() {
				if c := directoryFiller(path, cfg.Storage.Extensions, length); c != nil {
					return c
				}
			} else if imageExtensions[strings.ToLower(filepath.Ext(path))] {
				return imageFiller(path, length)
			}
		}
	}

	return lavfiFiller(cfg, length)
}

func directoryFiller(dir string, extensions []string, length float64) *media.Clip {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var candidates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !hasExtension(e.Name(), extensions) {
			continue
		}
		candidates = append(candidates, filepath.Join(dir, e.Name()))
	}
	if len(candidates) == 0 {
		return nil
	}
	chosen := candidates[rand.Intn(len(candidates))]
	return &media.Clip{
		Source: chosen, Seek: 0, Out: length, Duration: length,
		Filler: true, Unit: media.Decoder,
		Cmd: []string{"-stream_loop", "-1", "-i", chosen, "-t", fmt.Sprintf("%v", length)},
	}
}

func imageFiller(path string, length float64) *media.Clip {
	return &media.Clip{
		Source: path, Seek: 0, Out: length, Duration: length,
		Filler: true, Unit: media.Decoder,
		Cmd: []string{"-loop", "1", "-i", path, "-t", fmt.Sprintf("%v", length)},
	}
}

// lavfiFiller synthesises a color card with pink noise audio, matching
// gen_dummy's source/cmd construction exactly (color #121212, 0.3 noise
// amplitude).
func lavfiFiller(cfg *config.PlayoutConfig, length float64) *media.Clip {
	const color = "#121212"
	source := fmt.Sprintf("color=c=%s:s=%dx%d:d=%v", color, cfg.Processing.Width, cfg.Processing.Height, length)
	cmd := []string{
		"-f", "lavfi", "-i", fmt.Sprintf("%s:r=%v,format=pix_fmts=yuv420p", source, cfg.Processing.FPS),
		"-f", "lavfi", "-i", fmt.Sprintf("anoisesrc=d=%v:c=pink:r=48000:a=0.3", length),
	}
	return &media.Clip{
		Source: source, Seek: 0, Out: length, Duration: length,
		Filler: true, Unit: media.Decoder, Cmd: cmd,
	}
}

func hasExtension(name string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range extensions {
		want := strings.ToLower(e)
		if !strings.HasPrefix(want, ".") {
			want = "." + want
		}
		if ext == want {
			return true
		}
	}
	return false
}
