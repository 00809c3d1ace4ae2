// Package procio implements the Stderr Classifier (spec.md §4.10,
// component C10) and the small set of child-process helpers shared by
// internal/ingestsvc and internal/player — both read a ffmpeg-style child's
// stderr line-by-line and need the exact same ignore/benign/unrecoverable
// routing. Grounded on original_source/engine/src/utils/config.rs's
// FFMPEG_IGNORE_ERRORS/FFMPEG_UNRECOVERABLE_ERRORS constants and
// player/input/ingest.rs's server_monitor / valid_stream.
package procio

import (
	"net"
	"regexp"
	"strings"
)

// IgnoreErrors are known-benign ffmpeg stderr substrings that are dropped
// without logging (spec §4.10, the "known benign" set).
var IgnoreErrors = []string{
	"ac-tex damaged",
	"codec s302m, is muxed as a private data stream",
	"corrupt decoded frame in stream",
	"corrupt input packet in stream",
	"end mismatch left",
	"Invalid mb type in I-frame at",
	"Packet corrupt",
	"Referenced QT chapter track not found",
	"skipped MB in I-frame at",
	"Thread message queue blocking",
	"timestamp discontinuity",
	"Warning MVs not available",
	"frame size not set",
}

// UnrecoverableErrors mark a line that should flip the channel's is_alive
// to false (spec §4.10, the "unrecoverable" set).
var UnrecoverableErrors = []string{
	"Address already in use",
	"Device creation failed",
	"Invalid argument",
	"Numerical result",
	"No such filter",
	"Error initializing complex filters",
	"Error while decoding stream #0:0: Invalid data found when processing input",
	"Unrecognized option",
	"Option not found",
}

// Action is the routing decision the classifier makes for one stderr line.
type Action int

const (
	// ActionDrop means the line matched the ignore or benign set and
	// should not reach the logger at all.
	ActionDrop Action = iota
	// ActionLog means the line should be routed to the channel logger at
	// the level parsed from its `[level]` tag (Level returns it).
	ActionLog
	// ActionStopIngestStream means the line is an "Unexpected stream"
	// sentinel for a name that does not match the expected stream; the
	// caller should stop only the ingest child.
	ActionStopIngestStream
	// ActionUnrecoverable means the line matched the unrecoverable set
	// (or an unrelated "No such file or directory"); the caller should
	// set is_alive=false for the whole channel.
	ActionUnrecoverable
)

// Classifier routes one child's stderr lines per spec §4.10.
type Classifier struct {
	// Ignore holds extra substrings to drop, on top of the built-in
	// IgnoreErrors. No config field feeds it; the ingest listener and the
	// player loop leave it empty.
	Ignore []string

	// ExpectedStream is not read by Classify: an "Unexpected stream"
	// sentinel is judged by validStream, which compares the two stream
	// names carried inside the line itself.
	ExpectedStream string
}

// Classify decides what to do with one stderr line, and the log level tag
// it carried (empty if none was found).
func (c *Classifier) Classify(line string) (Action, string) {
	dropped := containsAny(line, IgnoreErrors) || containsAny(line, c.Ignore)

	if strings.Contains(line, "rtmp") &&
		(strings.Contains(line, "Unexpected stream") || strings.Contains(line, "App field don't match up")) &&
		!validStream(line) {
		return ActionStopIngestStream, Level(line)
	}

	if containsAny(line, UnrecoverableErrors) ||
		(strings.Contains(line, "No such file or directory") && !strings.Contains(line, "failed to delete old segment")) {
		return ActionUnrecoverable, Level(line)
	}

	if dropped {
		return ActionDrop, ""
	}
	return ActionLog, Level(line)
}

func containsAny(line string, substrings []string) bool {
	for _, s := range substrings {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

var levelTags = []string{"fatal", "error", "warning", "info"}

// Level extracts the ffmpeg `[level]` tag from a stderr line, e.g.
// "warning" from "... [warning] ...". Returns "" if no recognized tag is
// present.
func Level(line string) string {
	for _, lvl := range levelTags {
		if strings.Contains(line, "["+lvl+"]") {
			return lvl
		}
	}
	return ""
}

var streamNoiseRe = regexp.MustCompile(`.*Unexpected stream|App field don't match up|expecting|\s+|\?$`)

// validStream implements original_source's valid_stream: an "Unexpected
// stream X, expecting Y" line is considered valid (not a real mismatch)
// when X and Y are equal once the sentinel wording, whitespace, and a
// trailing '?' are stripped.
func validStream(msg string) bool {
	unexpected, expected, ok := strings.Cut(msg, ",")
	if !ok {
		return false
	}
	return streamNoiseRe.ReplaceAllString(unexpected, "") == streamNoiseRe.ReplaceAllString(expected, "")
}

var hostPortRe = regexp.MustCompile(`^[\w]+://([^/]+)`)

// IsFreeTCPPort reports whether the host:port embedded in a url-ish
// ingest listen address (e.g. "rtmp://0.0.0.0:1935/live") is free to
// bind, per original_source's is_free_tcp_port.
func IsFreeTCPPort(url string) bool {
	addr := url
	if m := hostPortRe.FindStringSubmatch(url); m != nil {
		addr = m[1]
	}
	host, port, ok := strings.Cut(addr, ":")
	if !ok {
		return false
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
