// Package player implements the Player Loop (spec.md §4.7, component C7)
// and the Channel Manager (spec.md §4.8, component C8): the per-channel
// task tree that pulls clips from the Source Iterator (C5), spawns the
// decoder/encoder child processes, forwards bytes between them (or from
// the Ingest Listener during a live override), and tears everything down
// on any unrecoverable condition. Grounded on
// original_source/engine/src/player/controller.rs and
// original_source/engine/src/output/mod.rs's write loop, reworked around
// Go's exec.Cmd and io.Copy rather than tokio pipes, and on
// golang.org/x/sync/errgroup for the concurrent stderr-reader/ingest
// supervision (mirroring the teacher's use of errgroup-style task
// grouping in cmd/oceantv).
package player

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ausocean/utils/logging"

	"github.com/ffplayout/ffplayout-sub001/internal/config"
	"github.com/ffplayout/ffplayout-sub001/internal/ingestsvc"
	"github.com/ffplayout/ffplayout-sub001/internal/media"
	"github.com/ffplayout/ffplayout-sub001/internal/procio"
	"github.com/ffplayout/ffplayout-sub001/internal/schedule"
	"github.com/ffplayout/ffplayout-sub001/internal/state"
)

// shutdownGrace bounds how long the decoder gets to exit after SIGTERM,
// and the already-killed encoder to be reaped, before the loop escalates
// to Kill (spec §4.7 "Shutdown").
const shutdownGrace = 3 * time.Second

// forwardBufSize is the chunk size used by the byte-forwarding inner loop
// (spec §4.7 step 10).
const forwardBufSize = 64 * 1024

// Loop is the C7 Player Loop for one channel.
type Loop struct {
	Channel    string
	CfgSnap    *config.Snapshot
	Iterator   schedule.Source
	Ingest     *ingestsvc.Listener // nil if ingest.enable is false
	Manager    *ChannelManager
	Flags      *state.Flags
	Machine    *state.Machine
	Log        logging.Logger
	EncoderBin string
	DecoderBin string

	health *tsHealth
}

// Run executes the setup + per-clip loop + shutdown sequence of spec
// §4.7, blocking until the channel stops.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.health = newTSHealth(l.Log)
	l.Machine.Handle(state.StartEvent{})

	group, gctx := errgroup.WithContext(ctx)

	encoder, encStderr, err := l.spawnEncoder(gctx)
	if err != nil {
		return fmt.Errorf("player: spawn encoder: %w", err)
	}
	l.Manager.SetEncoder(encoder)

	group.Go(func() error {
		classifier := &procio.Classifier{}
		if err := procio.StreamStderr(encStderr, classifier, l.Log, nil, nil); err != nil {
			l.Flags.IsAlive.Store(false)
			return fmt.Errorf("player: encoder: %w", err)
		}
		return nil
	})

	if l.Ingest != nil {
		group.Go(func() error { return l.Ingest.Run(gctx) })
	}

	group.Go(func() error { return l.runClips(gctx, encoder) })

	err = group.Wait()

	l.Manager.StopAll(false)
	_ = l.Manager.WaitGrace(DecoderUnit, shutdownGrace)
	_ = l.Manager.WaitGrace(EncoderUnit, shutdownGrace)

	if err != nil {
		l.Machine.Handle(state.UnrecoverableErrorEvent{Err: err})
		return err
	}
	l.Machine.Handle(state.StopEvent{})
	return nil
}

// runClips is the per-clip loop body (spec §4.7 steps 4-11). It returns
// nil on a clean is_alive-driven shutdown, or the first unrecoverable
// error hit.
func (l *Loop) runClips(ctx context.Context, encoder *exec.Cmd) error {
	encIn, err := encoder.StdinPipe()
	if err != nil {
		return fmt.Errorf("player: encoder stdin: %w", err)
	}
	defer encIn.Close()

	for l.Flags.IsAlive.Load() {
		clip, err := l.Iterator.Next(ctx)
		if err != nil {
			return fmt.Errorf("player: iterator: %w", err)
		}
		if clip == nil {
			return nil // clean end of schedule, shutdown signal
		}
		if clip.Skip {
			continue
		}
		if clip.Cmd == nil {
			return nil
		}

		l.runTaskHook(clip)

		if err := l.playClip(ctx, clip, encIn); err != nil {
			return err
		}
	}
	return nil
}

// playClip spawns the decoder for one clip and runs the byte-forwarding
// inner loop until the decoder exits or an override/shutdown interrupts
// it (spec §4.7 steps 8-11).
func (l *Loop) playClip(ctx context.Context, clip *media.Clip, encIn io.Writer) error {
	cfg := l.CfgSnap.Get()

	args := []string{"-hide_banner", "-nostats", "-v", "level+info"}
	args = append(args, cfg.Advanced.DecoderInputCmd...)
	args = append(args, clip.Cmd...)
	if clip.Filter != "" {
		args = append(args, "-filter_complex", clip.Filter)
		args = append(args, clip.FilterMaps...)
	}
	args = append(args, cfg.Advanced.DecoderOutputCmd...)

	cmd := exec.CommandContext(ctx, l.DecoderBin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("player: decoder stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("player: decoder stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("player: decoder start: %w", err)
	}
	l.Manager.SetDecoder(cmd)

	stderrDone := make(chan error, 1)
	go func() {
		classifier := &procio.Classifier{}
		stderrDone <- procio.StreamStderr(stderr, classifier, l.Log, nil, nil)
	}()

	fwdErr := l.forward(ctx, stdout, encIn)

	_ = cmd.Wait()
	if err := <-stderrDone; err != nil {
		return fmt.Errorf("player: decoder: %w", err)
	}
	return fwdErr
}

// forward is the byte-forwarding inner loop (spec §4.7 step 10): it reads
// from the decoder's stdout by default, switching to the ingest child's
// stdout whenever ingest_is_alive is true, firing the playout mode
// machine's live_detected/live_ended transitions on each switch.
func (l *Loop) forward(ctx context.Context, decoderOut io.Reader, encIn io.Writer) error {
	buf := make([]byte, forwardBufSize)
	overridden := false

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !l.Flags.IsAlive.Load() {
			return nil
		}

		live := l.Ingest != nil && l.Flags.IngestIsAlive.Load()
		if live && !overridden {
			overridden = true
			_ = l.Manager.Stop(DecoderUnit) // stale clip abandoned, its stdout would otherwise block undrained
			l.Machine.Handle(state.LiveDetectedEvent{})
		} else if !live && overridden {
			overridden = false
			l.Machine.Handle(state.LiveEndedEvent{})
			l.Iterator.RequestResync()
			_ = l.Manager.Stop(DecoderUnit) // abandon the stale clip, resync on the next pull
			return nil
		}

		src := decoderOut
		if live {
			if ingestOut := l.Ingest.Stdout(); ingestOut != nil {
				src = ingestOut
			}
		}

		n, err := src.Read(buf)
		if n > 0 {
			if live {
				l.health.inspect(buf[:n])
			}
			if _, werr := encIn.Write(buf[:n]); werr != nil {
				return fmt.Errorf("player: encoder stdin write: %w", werr)
			}
		}
		if err != nil {
			if err == io.EOF {
				if live {
					// ingest child briefly between spawns; keep polling.
					continue
				}
				return nil
			}
			return fmt.Errorf("player: read: %w", err)
		}
	}
}

func (l *Loop) spawnEncoder(ctx context.Context) (*exec.Cmd, io.ReadCloser, error) {
	cfg := l.CfgSnap.Get()
	args := []string{"-hide_banner", "-nostats", "-v", "level+info", "-i", "pipe:0"}
	args = append(args, cfg.Output.OutputCmd...)

	cmd := exec.CommandContext(ctx, l.EncoderBin, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	return cmd, stderr, nil
}

// runTaskHook fires the operator-configured fire-and-forget subprocess,
// if enabled (spec §4.7 step 7). Its outcome never affects playback.
func (l *Loop) runTaskHook(clip *media.Clip) {
	cfg := l.CfgSnap.Get()
	if len(cfg.General.TaskCmd) == 0 {
		return
	}
	bin := cfg.General.TaskCmd[0]
	args := append([]string(nil), cfg.General.TaskCmd[1:]...)
	args = append(args, clip.Source)

	id := uuid.NewString()
	cmd := exec.Command(bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		if l.Log != nil {
			l.Log.Warning("task hook failed to start", "channel", l.Channel, "run", id, "error", err.Error())
		}
		return
	}
	go func() {
		if err := cmd.Wait(); err != nil && l.Log != nil {
			l.Log.Warning("task hook exited non-zero", "channel", l.Channel, "run", id, "error", err.Error(), "stderr", stderr.String())
		}
	}()
}
