package schedule

import (
	"context"
	"fmt"

	"github.com/ausocean/utils/logging"

	"github.com/ffplayout/ffplayout-sub001/internal/config"
	"github.com/ffplayout/ffplayout-sub001/internal/fffilter"
	"github.com/ffplayout/ffplayout-sub001/internal/folder"
	"github.com/ffplayout/ffplayout-sub001/internal/media"
	"github.com/ffplayout/ffplayout-sub001/internal/probe"
)

// FolderIterator adapts a folder.Source (C9) to the Source interface the
// player loop drives, so Folder Mode is a tagged variant of C5 rather than
// a parallel code path through the player (spec.md §9's folder-mode
// coupling note). Each file drawn from the directory plays in full — no
// seek, no truncation — so the probe result is used to set Out/Duration
// directly rather than reconciling against a playlist-supplied length.
type FolderIterator struct {
	src     *folder.Source
	cfgSnap *config.Snapshot
	prober  *probe.Prober
	channel string
	log     logging.Logger

	// TextProvider mirrors Iterator.TextProvider (spec §4.3 step 10).
	TextProvider func() string
}

// NewFolderIterator wraps src for use as a channel's clip source.
func NewFolderIterator(channel string, src *folder.Source, cfgSnap *config.Snapshot, prober *probe.Prober, log logging.Logger) *FolderIterator {
	return &FolderIterator{channel: channel, src: src, cfgSnap: cfgSnap, prober: prober, log: log}
}

// Next draws the next file from the rotation, probes it for its real
// duration, and builds its decoder command and filter graph.
func (f *FolderIterator) Next(ctx context.Context) (*media.Clip, error) {
	c, err := f.src.Next()
	if err != nil {
		return nil, fmt.Errorf("schedule: folder mode: %w", err)
	}
	cfg := f.cfgSnap.Get()

	if f.prober != nil {
		p, err := f.prober.Probe(ctx, c.Source)
		if err != nil {
			if f.log != nil {
				f.log.Warning("folder mode: probe failed, substituting filler", "channel", f.channel, "source", c.Source, "error", err.Error())
			}
			filler := GenerateFiller(cfg, DummyLen)
			filler.Index = c.Index
			filler.Begin = c.Begin
			return filler, nil
		}
		c.ProbeResult = p
		c.Duration = p.Duration
		c.Out = p.Duration
		c.Cmd = buildCmd(c)
	}

	text := ""
	if f.TextProvider != nil {
		text = f.TextProvider()
	}
	if err := fffilter.Build(cfg, c, text, f.log); err != nil {
		return nil, fmt.Errorf("schedule: folder mode: build filter for %s: %w", c.Source, err)
	}
	return c, nil
}

// RequestResync is a no-op: folder mode has no playlist day boundary to
// re-locate against, it simply keeps drawing from the rotation.
func (f *FolderIterator) RequestResync() {}
