package fffilter

import (
	"fmt"

	"github.com/Knetic/govaluate"

	"github.com/ffplayout/ffplayout-sub001/internal/config"
	"github.com/ffplayout/ffplayout-sub001/internal/media"
)

// realtimeFilter appends the realtime=speed=s video filter used to keep
// HLS output in sync (spec §4.3 step 11): a clip running late
// (current_delta < 0) plays a touch faster to catch up. Grounded on
// original_source/lib/src/filter/mod.rs's realtime_filter; the speed
// formula is operator-overridable via Processing.RealtimeSpeedExpr,
// evaluated with govaluate (spec.md's Knetic/govaluate wiring, SPEC_FULL §3).
func realtimeFilter(c *media.Clip, cfg *config.PlayoutConfig, fc *chains) error {
	if cfg.Output.Mode != config.HLS {
		return nil
	}

	speedFilter := "realtime=speed=1"

	delta, _ := clockDelta(cfg.ClockConfig(), c.Begin)
	if delta < 0 && c.Seek == 0 {
		duration := c.Out - c.Seek
		speed, err := realtimeSpeed(cfg, duration, delta)
		if err != nil {
			return fmt.Errorf("realtime speed expression: %w", err)
		}
		if speed > 0 && speed < 1.1 && delta < cfg.General.StopThreshold {
			speedFilter = fmt.Sprintf("realtime=speed=%v", speed)
		}
	}

	fc.add(speedFilter, video)
	return nil
}

// realtimeSpeed computes the catch-up speed factor, using the operator's
// govaluate expression if configured, else the source engine's built-in
// formula: duration / (duration + delta).
func realtimeSpeed(cfg *config.PlayoutConfig, duration, delta float64) (float64, error) {
	expr := cfg.Processing.RealtimeSpeedExpr
	if expr == "" {
		return duration / (duration + delta), nil
	}

	evaluable, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return 0, fmt.Errorf("parse expression %q: %w", expr, err)
	}
	params := map[string]interface{}{
		"duration":       duration,
		"delta":          delta,
		"stop_threshold": cfg.General.StopThreshold,
	}
	result, err := evaluable.Evaluate(params)
	if err != nil {
		return 0, fmt.Errorf("evaluate expression %q: %w", expr, err)
	}
	speed, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("expression %q did not evaluate to a number, got %T", expr, result)
	}
	return speed, nil
}
