package procio

import (
	"bufio"
	"fmt"
	"io"

	"github.com/ausocean/utils/logging"
)

// StreamStderr reads a child's stderr line by line through a Classifier,
// routing each surviving line to log at its parsed level. onFirstLine, if
// set, fires once for the very first line seen regardless of how it
// classifies — the "first-byte proxy for feed arrived" signal the ingest
// listener uses to set ingest_is_alive (spec §4.6 step 4). onStopIngest,
// if set, fires on an ActionStopIngestStream sentinel before StreamStderr
// returns.
//
// StreamStderr returns nil once the pipe closes normally, or a non-nil
// error the instant an ActionUnrecoverable line is seen — the caller sets
// the channel's is_alive to false in response (spec §4.10).
func StreamStderr(r io.Reader, c *Classifier, log logging.Logger, onFirstLine func(), onStopIngest func(line string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), 1<<20)

	seen := false
	for scanner.Scan() {
		line := scanner.Text()
		if !seen {
			seen = true
			if onFirstLine != nil {
				onFirstLine()
			}
		}

		action, level := c.Classify(line)
		switch action {
		case ActionDrop:
		case ActionLog:
			logLine(log, level, line)
		case ActionStopIngestStream:
			logLine(log, level, line)
			if onStopIngest != nil {
				onStopIngest(line)
			}
			return nil
		case ActionUnrecoverable:
			logLine(log, level, line)
			return fmt.Errorf("procio: unrecoverable child error: %s", line)
		}
	}
	return scanner.Err()
}

func logLine(log logging.Logger, level, line string) {
	if log == nil {
		return
	}
	switch level {
	case "fatal", "error":
		log.Error(line)
	case "warning":
		log.Warning(line)
	default:
		log.Info(line)
	}
}
