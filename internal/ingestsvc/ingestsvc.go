// Package ingestsvc implements the Ingest Listener (spec.md §4.6,
// component C6): the loop that spawns an external tool in listen mode so a
// live feed can interrupt the scheduled playlist, handing control to the
// Player Loop (C7) the instant its stderr shows any output. Grounded on
// original_source/engine/src/player/input/ingest.rs's ingest_server /
// server_monitor, with the port pre-check, restart loop, and sentinel
// handling kept but reworked around internal/procio's classifier and
// Go's exec.Cmd rather than tokio::process.
package ingestsvc

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ffplayout/ffplayout-sub001/internal/config"
	"github.com/ffplayout/ffplayout-sub001/internal/fffilter"
	"github.com/ffplayout/ffplayout-sub001/internal/media"
	"github.com/ffplayout/ffplayout-sub001/internal/procio"
	"github.com/ffplayout/ffplayout-sub001/internal/state"
)

const (
	portCheckAttempts = 5
	portCheckBackoff  = 2 * time.Second
)

// Listener runs the ingest lifecycle loop for one channel.
type Listener struct {
	Channel string
	Binary  string // external tool binary, e.g. "ffmpeg"
	CfgSnap *config.Snapshot
	Flags   *state.Flags
	Log     logging.Logger

	mu     sync.Mutex
	stdout io.ReadCloser // current ingest child's stdout, nil between spawns
	cmd    *exec.Cmd     // current ingest child, nil between spawns
}

// NewListener returns a Listener ready to Run.
func NewListener(channel, binary string, cfgSnap *config.Snapshot, flags *state.Flags, log logging.Logger) *Listener {
	return &Listener{
		Channel: channel,
		Binary:  binary,
		CfgSnap: cfgSnap,
		Flags:   flags,
		Log:     log,
	}
}

// Stdout returns the current ingest child's stdout pipe, or nil if none is
// running. The player loop (C7) reads from this whenever ingest_is_alive
// is true (spec §4.7 step 10).
func (l *Listener) Stdout() io.Reader {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stdout
}

// Kill terminates the current ingest child, if any. Used by the channel
// manager's stop_all (spec §4.8) when the player loop shuts down; a nil
// child (none running, or already exited) is a no-op.
func (l *Listener) Kill() error {
	l.mu.Lock()
	cmd := l.cmd
	l.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// Run executes the lifecycle loop described in spec §4.6, blocking until
// is_alive drops or an unrecoverable error is hit. The returned error is
// nil on a clean is_alive-driven exit.
func (l *Listener) Run(ctx context.Context) error {
	cfg := l.CfgSnap.Get()
	listenURL := firstURL(cfg.Ingest.InputCmd)

	if listenURL != "" {
		if err := l.precheckPort(listenURL); err != nil {
			l.Flags.IsAlive.Store(false)
			return err
		}
		if l.Log != nil {
			l.Log.Info("ingest listener starting", "channel", l.Channel, "listen", listenURL)
		}
	}

	for l.Flags.IsAlive.Load() {
		if err := l.runOnce(ctx, cfg); err != nil {
			return err
		}
		cfg = l.CfgSnap.Get()
	}
	return nil
}

// precheckPort implements spec §4.6 step 1: retry up to 5 times with a
// 2-second back-off before giving up.
func (l *Listener) precheckPort(url string) error {
	for attempt := 0; attempt < portCheckAttempts; attempt++ {
		if procio.IsFreeTCPPort(url) {
			return nil
		}
		if l.Log != nil {
			l.Log.Error("ingest listen address already in use", "channel", l.Channel, "listen", url, "attempt", attempt+1)
		}
		if attempt < portCheckAttempts-1 {
			time.Sleep(portCheckBackoff)
		}
	}
	return fmt.Errorf("ingestsvc: %s: listen address %s still in use after %d attempts", l.Channel, url, portCheckAttempts)
}

// runOnce spawns one ingest child, streams its stderr through the
// classifier, and waits for it to exit (spec §4.6 steps 2-5).
func (l *Listener) runOnce(ctx context.Context, cfg *config.PlayoutConfig) error {
	args, err := l.buildArgs(cfg)
	if err != nil {
		return fmt.Errorf("ingestsvc: %w", err)
	}
	return l.runOnceWithArgs(ctx, args)
}

func (l *Listener) runOnceWithArgs(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, l.Binary, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ingestsvc: stderr pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ingestsvc: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ingestsvc: start: %w", err)
	}

	l.mu.Lock()
	l.stdout = stdout
	l.cmd = cmd
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.stdout = nil
		l.cmd = nil
		l.mu.Unlock()
	}()

	classifier := &procio.Classifier{Ignore: nil}
	stopIngest := false
	streamErr := procio.StreamStderr(stderr, classifier, l.Log,
		func() { l.Flags.IngestIsAlive.Store(true) },
		func(line string) {
			stopIngest = true
			if l.Log != nil {
				l.Log.Warning("unexpected ingest stream, stopping ingest child", "channel", l.Channel, "line", line)
			}
		},
	)

	l.Flags.IngestIsAlive.Store(false)

	if stopIngest {
		_ = cmd.Process.Kill()
	}

	waitErr := cmd.Wait()

	if streamErr != nil {
		if l.Log != nil {
			l.Log.Error("ingest hit unrecoverable error", "channel", l.Channel, "error", streamErr.Error())
		}
		l.Flags.IsAlive.Store(false)
		return fmt.Errorf("ingestsvc: %w", streamErr)
	}
	_ = waitErr // a non-zero exit from a killed/ended stream is expected, not fatal

	return nil
}

// buildArgs assembles the ingest server command: hide_banner/nostats/level
// flags, the advanced ingest input override (if any), the configured
// stream input, and the standard processing filter for a synthetic Ingest
// clip (spec §4.6 step 2).
func (l *Listener) buildArgs(cfg *config.PlayoutConfig) ([]string, error) {
	args := []string{"-hide_banner", "-nostats", "-v", "level+info"}
	args = append(args, cfg.Advanced.IngestInputCmd...)
	args = append(args, cfg.Ingest.InputCmd...)

	dummy := &media.Clip{Unit: media.Ingest, Filler: true}
	if err := fffilter.Build(cfg, dummy, "", l.Log); err != nil {
		return nil, fmt.Errorf("build ingest filter: %w", err)
	}
	if dummy.Filter != "" {
		args = append(args, "-filter_complex", dummy.Filter)
		args = append(args, dummy.FilterMaps...)
	}
	return args, nil
}

func firstURL(cmd []string) string {
	for _, a := range cmd {
		if containsScheme(a) {
			return a
		}
	}
	return ""
}

func containsScheme(s string) bool {
	for i := 0; i+2 < len(s); i++ {
		if s[i] == ':' && s[i+1] == '/' && s[i+2] == '/' {
			return true
		}
	}
	return false
}
