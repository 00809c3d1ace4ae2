// Package schedule implements the Source Iterator (spec.md §4.5,
// component C5) — the scheduler at the core of the playout engine. It
// drives a channel's daily playlist forward in wall-clock time, handling
// day rollover, sync-drift-driven filler, and the list_init resync path
// used whenever playback must jump into the middle of a schedule (startup,
// or return from a live ingest override). The four-path structure (reload
// check, list-init, steady-state, end-of-list) is grounded on
// original_source/src/utils/playlist.rs's CurrentProgram iterator, with
// the drift/filler thresholds taken from spec.md §4.5 rather than that
// simpler early version's.
package schedule

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ffplayout/ffplayout-sub001/internal/clockutil"
	"github.com/ffplayout/ffplayout-sub001/internal/config"
	"github.com/ffplayout/ffplayout-sub001/internal/fffilter"
	"github.com/ffplayout/ffplayout-sub001/internal/media"
	"github.com/ffplayout/ffplayout-sub001/internal/playlist"
	"github.com/ffplayout/ffplayout-sub001/internal/probe"
)

// DummyLen bounds the filler yielded for an out-of-sync steady-state clip
// (spec §4.5 step 3), mirroring the source engine's DUMMY_LEN constant.
const DummyLen = 60.0

// Source is the interface the player loop (C7) actually drives: "give me
// the next clip" plus "re-locate on the next call". Playlist mode
// (*Iterator) and Folder Mode (*FolderIterator, spec §4.9, component C9)
// both implement it — a tagged variant of the same iterator shape rather
// than a subclass, per spec.md §9's folder-mode-coupling note.
type Source interface {
	Next(ctx context.Context) (*media.Clip, error)
	RequestResync()
}

// Iterator is the C5 Source Iterator for one channel.
type Iterator struct {
	channel string
	cfgSnap *config.Snapshot
	loader  *playlist.Loader
	prober  *probe.Prober
	log     logging.Logger

	// TextProvider, if set, supplies the current drawtext payload for the
	// filter builder (spec §4.3 step 10 / §4.11). Empty string if nil.
	TextProvider func() string

	mu          sync.Mutex
	nodes       []media.Clip
	index       int
	currentDate string
	modified    time.Time
	listInit    bool
}

// NewIterator loads startDate's playlist for channel and returns a
// ready-to-run Iterator in the list_init state (the first Next call must
// locate "now" within the schedule, per spec §4.5 step 2).
func NewIterator(ctx context.Context, channel string, cfgSnap *config.Snapshot, loader *playlist.Loader, prober *probe.Prober, startDate string, log logging.Logger) (*Iterator, error) {
	cfg := cfgSnap.Get()
	pl, err := loader.Load(ctx, channel, startDate, cfg.Playlist.StartSec)
	if err != nil {
		return nil, fmt.Errorf("schedule: initial load: %w", err)
	}
	return &Iterator{
		channel:     channel,
		cfgSnap:     cfgSnap,
		loader:      loader,
		prober:      prober,
		log:         log,
		nodes:       pl.Program,
		currentDate: startDate,
		modified:    pl.Modified,
		listInit:    true,
	}, nil
}

// RequestResync sets list_init, asking the next Next call to locate "now"
// within the schedule rather than advancing linearly — used when control
// returns to the scheduler after a live ingest override ends (spec §4.6,
// §4.7 step 10).
func (it *Iterator) RequestResync() {
	it.mu.Lock()
	it.listInit = true
	it.mu.Unlock()
}

// Next returns the next clip to play, or an error only for unrecoverable
// conditions (e.g. every fallback exhausted); a missing/corrupt scheduled
// source never propagates as an error — it is replaced with filler.
func (it *Iterator) Next(ctx context.Context) (*media.Clip, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	cfg := it.cfgSnap.Get()
	it.reloadIfChanged(ctx, cfg)

	for {
		if it.listInit {
			c, yield, done := it.handleListInit(cfg)
			if done {
				it.listInit = false
				return it.finalize(ctx, cfg, c)
			}
			if yield != nil {
				return yield, nil
			}
		}

		if it.index < len(it.nodes) {
			c, filler := it.handleSteadyState(cfg)
			if filler != nil {
				return filler, nil
			}
			return it.finalize(ctx, cfg, c)
		}

		advanced, filler, err := it.handleEndOfList(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if filler != nil {
			return filler, nil
		}
		if !advanced {
			return nil, fmt.Errorf("schedule: could not advance past end of list")
		}
		// Loop back around to re-evaluate list_init/steady-state for the
		// freshly loaded day.
	}
}

// reloadIfChanged implements spec §4.5 step 1.
func (it *Iterator) reloadIfChanged(ctx context.Context, cfg *config.PlayoutConfig) {
	modified, err := it.loader.Modified(ctx, it.currentDate)
	if err != nil || modified.IsZero() || modified.Equal(it.modified) {
		return
	}

	var priorBegin float64
	if it.index < len(it.nodes) {
		priorBegin = it.nodes[it.index].Begin
	}

	pl, err := it.loader.Load(ctx, it.channel, it.currentDate, cfg.Playlist.StartSec)
	if err != nil {
		if it.log != nil {
			it.log.Warning("playlist reload failed, keeping current list", "channel", it.channel, "error", err.Error())
		}
		return
	}

	it.nodes = pl.Program
	it.modified = pl.Modified
	it.index = nearestIndexByBegin(it.nodes, priorBegin)
	if it.log != nil {
		it.log.Info("playlist reloaded", "channel", it.channel, "date", it.currentDate)
	}
}

func nearestIndexByBegin(nodes []media.Clip, begin float64) int {
	for i, n := range nodes {
		if n.Begin >= begin {
			return i
		}
	}
	return 0
}

// handleListInit implements spec §4.5 step 2. Exactly one of (yield,
// done) is meaningful: done=true means c is the rebound clip to finalize
// and return; yield non-nil means a filler clip should be returned
// as-is (list_init remains set for the next call).
func (it *Iterator) handleListInit(cfg *config.PlayoutConfig) (c media.Clip, yield *media.Clip, done bool) {
	now := clockutil.DaySeconds(cfg.Location)

	if len(it.nodes) == 0 {
		return media.Clip{}, nil, false
	}

	if idx, found := findContaining(it.nodes, now); found {
		c = it.nodes[idx]
		c.Seek += now - c.Begin
		it.index = idx + 1
		return c, nil, true
	}

	first := it.nodes[0]
	if now < first.Begin {
		return media.Clip{}, GenerateFiller(cfg, first.Begin-now), false
	}

	last := it.nodes[len(it.nodes)-1]
	lastEnd := last.Begin + last.Length()
	dayEnd := cfg.Playlist.StartSec + cfg.Playlist.LengthSec
	if now >= lastEnd && now < dayEnd {
		return media.Clip{}, GenerateFiller(cfg, dayEnd-now), false
	}

	// now falls entirely outside today's schedule (e.g. an empty gap past
	// day end not yet rolled over); fall through to steady-state/end-of-list.
	return media.Clip{}, nil, false
}

func findContaining(nodes []media.Clip, now float64) (int, bool) {
	for i, n := range nodes {
		if n.Begin <= now && now < n.Begin+n.Length() {
			return i, true
		}
	}
	return 0, false
}

// handleSteadyState implements spec §4.5 step 3. Returns either a filler
// clip (drift recovery, index not advanced) or the advanced, possibly
// clipped/skipped scheduled clip.
func (it *Iterator) handleSteadyState(cfg *config.PlayoutConfig) (c media.Clip, filler *media.Clip) {
	c = it.nodes[it.index]
	currentDelta, totalDelta := clockutil.Delta(cfg.ClockConfig(), c.Begin)

	if cfg.General.StopThreshold > 0 && math.Abs(currentDelta) > cfg.General.StopThreshold {
		return media.Clip{}, GenerateFiller(cfg, math.Min(DummyLen, totalDelta))
	}

	isLast := it.index == len(it.nodes)-1
	if isLast && c.Out-c.Seek > totalDelta+1.2 {
		c.Out = c.Seek + math.Max(totalDelta, 1.0)
	}
	if isLast && totalDelta < 1.0 {
		c.Skip = true
	}

	it.index++
	return c, nil
}

// handleEndOfList implements spec §4.5 step 4. advanced is true once the
// next day's playlist (or its full-day filler fallback) is loaded and
// ready for re-evaluation.
func (it *Iterator) handleEndOfList(ctx context.Context, cfg *config.PlayoutConfig) (advanced bool, filler *media.Clip, err error) {
	dayEnd := cfg.Playlist.StartSec + cfg.Playlist.LengthSec
	_, remaining := clockutil.Delta(cfg.ClockConfig(), dayEnd)

	if math.Abs(remaining) > 1.2 && !cfg.Playlist.Infinit {
		return false, GenerateFiller(cfg, remaining), nil
	}

	nextDate, err := addDay(it.currentDate)
	if err != nil {
		return false, nil, fmt.Errorf("schedule: %w", err)
	}

	pl, err := it.loader.Load(ctx, it.channel, nextDate, cfg.Playlist.StartSec)
	if err != nil {
		if it.log != nil {
			it.log.Error("failed to load next day's playlist, using full-day filler", "channel", it.channel, "date", nextDate, "error", err.Error())
		}
		it.currentDate = nextDate
		it.nodes = nil
		it.index = 0
		return false, GenerateFiller(cfg, cfg.Playlist.LengthSec), nil
	}

	it.currentDate = nextDate
	it.nodes = pl.Program
	it.modified = pl.Modified
	it.index = 0
	return true, nil, nil
}

func addDay(date string) (string, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", date, err)
	}
	return t.AddDate(0, 0, 1).Format("2006-01-02"), nil
}

// finalize attaches the media probe (C2) and builds the filter graph (C3)
// for a scheduled (non-filler) clip, per spec §4.5 step 3's "attach probe
// and filter; return c". Filler clips already carry their synthetic Cmd
// and skip probing.
func (it *Iterator) finalize(ctx context.Context, cfg *config.PlayoutConfig, c media.Clip) (*media.Clip, error) {
	return FinalizeClip(ctx, cfg, it.prober, it.TextProvider, it.log, it.channel, c)
}

// FinalizeClip probes a scheduled clip, builds its decoder command vector
// and filter graph, and substitutes filler if the probe fails. Used by
// Iterator.finalize; FolderIterator.Next probes and builds its clips
// itself.
func FinalizeClip(ctx context.Context, cfg *config.PlayoutConfig, prober *probe.Prober, textProvider func() string, log logging.Logger, channel string, c media.Clip) (*media.Clip, error) {
	if c.Skip {
		return &c, nil
	}

	if !c.Filler && prober != nil {
		p, err := prober.Probe(ctx, c.Source)
		if err != nil {
			if log != nil {
				log.Warning("probe failed, substituting filler", "channel", channel, "source", c.Source, "error", err.Error())
			}
			filler := GenerateFiller(cfg, c.Length())
			filler.Index = c.Index
			filler.Begin = c.Begin
			return filler, nil
		}
		c.ProbeResult = p
		if c.Audio != "" {
			if ap, err := prober.Probe(ctx, c.Audio); err == nil {
				c.ProbeAudioResult = ap
			}
		}
		c.Cmd = buildCmd(&c)
	}

	text := ""
	if textProvider != nil {
		text = textProvider()
	}
	if err := fffilter.Build(cfg, &c, text, log); err != nil {
		return nil, fmt.Errorf("schedule: build filter for %s: %w", c.Source, err)
	}
	return &c, nil
}
