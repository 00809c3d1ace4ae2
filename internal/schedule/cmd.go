package schedule

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ffplayout/ffplayout-sub001/internal/media"
)

// buildCmd builds the decoder source argument vector for a non-filler
// scheduled clip (spec §3's Clip.cmd), grounded on
// original_source/lib/src/utils/mod.rs's seek_and_length and loop_image:
// an image source loops via `-loop 1`, everything else seeks in and is
// truncated with `-t` only when the probed file is actually longer than
// the scheduled play length (or a shorter external audio track forces the
// cut).
func buildCmd(c *media.Clip) []string {
	if imageExtensions[strings.ToLower(filepath.Ext(c.Source))] {
		return loopImageCmd(c)
	}
	return seekAndLengthCmd(c)
}

func loopImageCmd(c *media.Clip) []string {
	duration := c.Out - c.Seek
	cmd := []string{"-loop", "1", "-i", c.Source}

	if c.Audio != "" && fileExists(c.Audio) {
		if c.Seek > 0 {
			cmd = append(cmd, "-ss", formatSeconds(c.Seek))
		}
		cmd = append(cmd, "-i", c.Audio)
	}

	cmd = append(cmd, "-t", formatSeconds(duration))
	return cmd
}

func seekAndLengthCmd(c *media.Clip) []string {
	var cmd []string
	cutAudio := false

	if c.Seek > 0 {
		cmd = append(cmd, "-ss", formatSeconds(c.Seek))
	}
	cmd = append(cmd, "-ignore_chapters", "1", "-i", c.Source)

	if c.Audio != "" && fileExists(c.Audio) {
		if c.Seek > 0 {
			cmd = append(cmd, "-ss", formatSeconds(c.Seek))
		}
		cmd = append(cmd, "-i", c.Audio)

		if c.ProbeAudioResult != nil && c.ProbeAudioResult.HasAudio() &&
			c.ProbeAudioResult.Duration > c.Out-c.Seek {
			cutAudio = true
		}
	}

	if c.Duration > c.Out || cutAudio {
		cmd = append(cmd, "-t", formatSeconds(c.Out-c.Seek))
	}

	return cmd
}

func formatSeconds(v float64) string {
	return fmt.Sprintf("%.3f", v)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
