// Package clockutil provides the playout engine's wall-clock source and the
// sync-drift delta computation (spec.md §4.1, component C1).
//
// now() is a package-level indirection rather than a struct method so that
// tests can patch it process-wide with bou.ke/monkey, the same technique
// the teacher uses in cmd/oceantv/broadcast_machine_test.go and
// broadcast_hardware_machine_test.go to pin time.Now for deterministic
// timeout/schedule assertions. The scheduling code goes through Now();
// cmd/playoutd and notify still call time.Now directly.
package clockutil

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Now returns the current wall-clock time. Tests replace this with
// monkey.Patch(time.Now, ...), which Now follows because it holds
// time.Now itself, or by assigning a deterministic closure directly —
// see clock_test.go.
var Now = time.Now

// DaySeconds returns the number of seconds since local midnight in the
// given location, as a float, matching spec §4.1's now_seconds(tz).
func DaySeconds(loc *time.Location) float64 {
	now := Now().In(loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return now.Sub(midnight).Seconds()
}

// Config captures the subset of PlayoutConfig the delta computation needs,
// to avoid an import cycle with the config package.
type Config struct {
	StartSec      float64 // playlist.day_start, in seconds
	LengthSec     float64 // playlist.length, in seconds (default 86400)
	StopThreshold float64 // general.stop_threshold
	Location      *time.Location
}

// Delta implements spec §4.1's delta(config, begin) -> (current_delta,
// total_delta).
func Delta(cfg Config, begin float64) (currentDelta, totalDelta float64) {
	const day = 86400.0

	start := cfg.StartSec
	length := cfg.LengthSec
	if length == 0 {
		length = day
	}

	current := DaySeconds(cfg.Location)

	// Pre-midnight tail of the previous day's playlist.
	if begin == start && start == 0 && day-current < 4 {
		current -= day
	} else if start >= current && begin != start {
		// The clip's scheduled time is tomorrow-relative.
		current += day
	}

	currentDelta = begin - current

	// Same-day wraparound fold.
	tol := cfg.StopThreshold + 2
	if absf(absf(currentDelta)-day) <= tol {
		if currentDelta > 0 {
			currentDelta -= day
		} else {
			currentDelta += day
		}
	}

	if current < start {
		totalDelta = start - current
	} else {
		totalDelta = length + start - current
	}

	return currentDelta, totalDelta
}

// InSync reports whether the given current_delta is within the configured
// stop_threshold, per spec §4.1's sync check. A stop_threshold of 0 (or
// less) disables the check entirely (spec §8 boundary behavior).
func InSync(cfg Config, currentDelta float64) bool {
	if cfg.StopThreshold <= 0 {
		return true
	}
	return absf(currentDelta) <= cfg.StopThreshold
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// SecToTime formats a seconds-since-midnight float as HH:MM:SS.sss, used
// for PlayoutConfig's day_start/length fields (spec §3). Grounded on
// original_source/engine/src/player/utils/mod.rs's sec_to_time, which
// rounds to the millisecond before splitting into components so that
// 59.9999 doesn't format as "00:00:60.000".
func SecToTime(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	s := math.Round(sec*1000) / 1000
	h := int64(s / 3600)
	m := int64(s/60) % 60
	rem := s - float64(h*3600) - float64(m*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, rem)
}

// TimeToSec parses a HH:MM:SS(.sss) string into seconds since midnight. It
// is the inverse of SecToTime to millisecond precision (spec §8 round-trip
// law: time_to_sec(sec_to_time(x)) == x for x in [0, 86400)), grounded on
// original_source/engine/src/player/utils/mod.rs's time_to_sec, which sums
// each ':'-separated component as a float rather than assuming whole
// seconds.
func TimeToSec(str string) (float64, error) {
	parts := strings.Split(str, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("could not parse time %q: expected HH:MM:SS", str)
	}
	var total float64
	weight := [3]float64{3600, 60, 1}
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, fmt.Errorf("could not parse time %q: %w", str, err)
		}
		total += v * weight[i]
	}
	return total, nil
}
