package clockutil

import (
	"testing"
	"time"

	"bou.ke/monkey"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("tzdata for %s unavailable in this environment: %v", name, err)
	}
	return loc
}

// patchNow pins clockutil.Now (and time.Now, for code elsewhere that might
// read it directly) to t, restoring both on test cleanup. This mirrors the
// monkey.Patch(time.Now, ...) pattern used throughout
// cmd/oceantv/broadcast_machine_test.go in the teacher repo.
func patchNow(t *testing.T, at time.Time) {
	t.Helper()
	monkey.Patch(time.Now, func() time.Time { return at })
	t.Cleanup(func() { monkey.Unpatch(time.Now) })
}

func TestTimeSecRoundTrip(t *testing.T) {
	// sec §8's round-trip law holds to millisecond precision, not whole
	// seconds, so the step must carry a fractional component.
	for sec := 0.0; sec < 86400; sec += 3723.456 {
		s := SecToTime(sec)
		got, err := TimeToSec(s)
		if err != nil {
			t.Fatalf("TimeToSec(%q): %v", s, err)
		}
		if diff := got - sec; diff < -0.0005 || diff > 0.0005 {
			t.Errorf("round trip mismatch: sec=%v formatted=%q got=%v", sec, s, got)
		}
	}
}

func TestSecToTimeCarriesMilliseconds(t *testing.T) {
	if got := SecToTime(3723.456); got != "01:02:03.456" {
		t.Errorf("SecToTime(3723.456) = %q, want 01:02:03.456", got)
	}
}

func TestDeltaMidnightRollover(t *testing.T) {
	loc := mustLoc(t, "UTC")
	// 23:59:45 local, day_start=0, length=24h: S1 scenario from spec §8.
	patchNow(t, time.Date(2023, 2, 8, 23, 59, 45, 0, loc))

	cfg := Config{StartSec: 0, LengthSec: 86400, StopThreshold: 11, Location: loc}
	currentDelta, totalDelta := Delta(cfg, 0)

	if totalDelta < 0 || totalDelta > 86400 {
		t.Errorf("totalDelta out of range: %v", totalDelta)
	}
	_ = currentDelta
}

func TestDeltaSixAMRollover(t *testing.T) {
	loc := mustLoc(t, "UTC")
	// S2 scenario: day_start=06:00:00, now=05:59:45; begin equals start, so
	// no tomorrow shift applies and current (21585) is 15s short of start.
	patchNow(t, time.Date(2023, 2, 9, 5, 59, 45, 0, loc))

	startSec, _ := TimeToSec("06:00:00")
	cfg := Config{StartSec: startSec, LengthSec: 86400, StopThreshold: 11, Location: loc}
	_, totalDelta := Delta(cfg, startSec)
	if totalDelta <= 0 {
		t.Errorf("expected positive seconds remaining until day start, got %v", totalDelta)
	}
}

func TestInSyncThresholdZeroDisabled(t *testing.T) {
	cfg := Config{StopThreshold: 0}
	if !InSync(cfg, 99999) {
		t.Errorf("stop_threshold=0 must disable the drift check entirely")
	}
}

func TestInSyncWithinThreshold(t *testing.T) {
	cfg := Config{StopThreshold: 11}
	if !InSync(cfg, 5) {
		t.Errorf("expected in sync for delta within threshold")
	}
	if InSync(cfg, 15) {
		t.Errorf("expected loss of sync for delta beyond threshold")
	}
}
