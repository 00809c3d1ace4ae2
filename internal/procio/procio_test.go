package procio

import (
	"net"
	"strings"
	"testing"
)

func TestClassifyDropsKnownBenignLine(t *testing.T) {
	c := &Classifier{}
	action, _ := c.Classify("[warning] corrupt decoded frame in stream 0")
	if action != ActionDrop {
		t.Errorf("expected ActionDrop, got %v", action)
	}
}

func TestClassifyDropsOperatorIgnoreLine(t *testing.T) {
	c := &Classifier{Ignore: []string{"custom noisy warning"}}
	action, _ := c.Classify("[info] custom noisy warning about nothing")
	if action != ActionDrop {
		t.Errorf("expected ActionDrop, got %v", action)
	}
}

func TestClassifyRoutesByLevel(t *testing.T) {
	c := &Classifier{}
	action, level := c.Classify("[error] something went sideways")
	if action != ActionLog {
		t.Errorf("expected ActionLog, got %v", action)
	}
	if level != "error" {
		t.Errorf("expected level error, got %q", level)
	}
}

func TestClassifyUnrecoverableErrorTriggersConflict(t *testing.T) {
	c := &Classifier{}
	action, _ := c.Classify("[fatal] Address already in use")
	if action != ActionUnrecoverable {
		t.Errorf("expected ActionUnrecoverable, got %v", action)
	}
}

func TestClassifyNoSuchFileUnrelatedToSegmentCleanupIsUnrecoverable(t *testing.T) {
	c := &Classifier{}
	action, _ := c.Classify("[error] hlsenc.mp4: No such file or directory")
	if action != ActionUnrecoverable {
		t.Errorf("expected ActionUnrecoverable, got %v", action)
	}
}

func TestClassifyNoSuchFileForSegmentCleanupIsNotUnrecoverable(t *testing.T) {
	c := &Classifier{}
	action, _ := c.Classify("[warning] failed to delete old segment: No such file or directory")
	if action == ActionUnrecoverable {
		t.Errorf("segment-cleanup 'No such file' should not be unrecoverable")
	}
}

func TestClassifyUnexpectedStreamMismatchStopsIngest(t *testing.T) {
	c := &Classifier{}
	action, _ := c.Classify("rtmp Unexpected stream live/foo, expecting live/bar")
	if action != ActionStopIngestStream {
		t.Errorf("expected ActionStopIngestStream, got %v", action)
	}
}

func TestClassifyUnexpectedStreamMatchModuloQuestionMarkIsBenign(t *testing.T) {
	c := &Classifier{}
	action, _ := c.Classify("rtmp Unexpected stream live/foo?, expecting live/foo")
	if action == ActionStopIngestStream {
		t.Errorf("matching stream names modulo '?' should not stop ingest")
	}
}

func TestIsFreeTCPPortDetectsOccupiedPort(t *testing.T) {
	// Bind a listener ourselves, then assert the helper reports the same
	// port as not free.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	addr := "rtmp://" + ln.Addr().String() + "/live"
	if IsFreeTCPPort(addr) {
		t.Errorf("expected port to be reported occupied")
	}
}

func TestStreamStderrStopsOnUnrecoverableLine(t *testing.T) {
	r := strings.NewReader("[info] starting\n[fatal] Invalid argument\n[info] never reached\n")
	c := &Classifier{}
	err := StreamStderr(r, c, nil, nil, nil)
	if err == nil {
		t.Fatalf("expected an unrecoverable error")
	}
	if !strings.Contains(err.Error(), "Invalid argument") {
		t.Errorf("error should mention the offending line, got: %v", err)
	}
}

func TestStreamStderrFiresOnFirstLineOnce(t *testing.T) {
	r := strings.NewReader("[info] a\n[info] b\n[info] c\n")
	c := &Classifier{}
	count := 0
	if err := StreamStderr(r, c, nil, func() { count++ }, nil); err != nil {
		t.Fatalf("StreamStderr: %v", err)
	}
	if count != 1 {
		t.Errorf("expected onFirstLine to fire exactly once, got %d", count)
	}
}

func TestStreamStderrFiresOnStopIngestAndReturnsNil(t *testing.T) {
	r := strings.NewReader("rtmp Unexpected stream live/foo, expecting live/bar\n[info] never reached\n")
	c := &Classifier{}
	var stopped string
	if err := StreamStderr(r, c, nil, nil, func(line string) { stopped = line }); err != nil {
		t.Fatalf("StreamStderr: %v", err)
	}
	if stopped == "" {
		t.Errorf("expected onStopIngest to fire")
	}
}
