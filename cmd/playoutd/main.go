// playoutd is the 24/7 linear broadcast playout daemon (spec.md §1-§8):
// for each configured channel it runs the source iterator, decoder/encoder
// pipe, live ingest cutover, and offline pre-flight validation described by
// the rest of this module's internal/ packages.
//
// Flag parsing and the logging.New(fileLog, suppress) bootstrap mirror
// cmd/vidforward/main.go; the per-channel supervision loop and its
// notify.Notifier wiring mirror cmd/oceantv/main.go's setup; the daily
// validation cron mirrors cmd/oceancron/cron.go's scheduler.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/utils/logging"

	"github.com/ffplayout/ffplayout-sub001/internal/config"
	"github.com/ffplayout/ffplayout-sub001/internal/folder"
	"github.com/ffplayout/ffplayout-sub001/internal/ingestsvc"
	"github.com/ffplayout/ffplayout-sub001/internal/media"
	"github.com/ffplayout/ffplayout-sub001/internal/player"
	"github.com/ffplayout/ffplayout-sub001/internal/playlist"
	"github.com/ffplayout/ffplayout-sub001/internal/probe"
	"github.com/ffplayout/ffplayout-sub001/internal/schedule"
	"github.com/ffplayout/ffplayout-sub001/internal/state"
	"github.com/ffplayout/ffplayout-sub001/internal/statestore"
	"github.com/ffplayout/ffplayout-sub001/internal/textbus"
	"github.com/ffplayout/ffplayout-sub001/internal/validate"
	"github.com/ffplayout/ffplayout-sub001/notify"
)

// Logging configuration, taken verbatim from cmd/vidforward's own
// constants — this daemon has the same "long-running supervisor with a
// rotating log file" shape.
const (
	logPath      = "/var/log/playoutd/playoutd.log"
	logMaxSize   = 500 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
	logSuppress  = true
)

const appName = "playoutd"

func main() {
	var (
		configDir  = flag.String("config-dir", "/etc/playoutd", "directory of <channel>.toml config files")
		stateDir   = flag.String("state-dir", "/var/lib/playoutd", "directory for channel sync-state and datastore files")
		decoderBin = flag.String("decoder", "ffmpeg", "decoder binary")
		encoderBin = flag.String("encoder", "ffmpeg", "encoder binary")
		proberBin  = flag.String("prober", "ffprobe", "media probe binary")
		debug      = flag.Bool("debug", false, "run with debug-level logging")
		sender     = flag.String("notify-sender", "", "operator alert sender address; empty disables mail")
		recipient  = flag.String("notify-recipient", "", "operator alert recipient address")
	)
	flag.Parse()

	loggingLevel := logging.Info
	if *debug {
		loggingLevel = logging.Debug
	}
	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	log := logging.New(loggingLevel, io.MultiWriter(fileLog), logSuppress)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configs, err := loadConfigs(*configDir)
	if err != nil {
		log.Fatal("could not load channel configs", "error", err)
	}
	if len(configs) == 0 {
		log.Fatal("no channel configs found", "dir", *configDir)
	}

	stateStore, err := statestore.NewStore(ctx, appName, *stateDir, log)
	if err != nil {
		log.Fatal("could not open state store", "error", err)
	}

	store := notify.NewMemStore()

	var wg sync.WaitGroup
	channels := make([]*channelRuntime, 0, len(configs))

	for _, cfg := range configs {
		rt, err := bootstrapChannel(ctx, cfg, *decoderBin, *encoderBin, *proberBin, *sender, *recipient, stateStore, store, log)
		if err != nil {
			log.Error("channel bootstrap failed", "channel", cfg.Channel, "error", err)
			continue
		}
		channels = append(channels, rt)

		wg.Add(1)
		go func(rt *channelRuntime) {
			defer wg.Done()
			runChannel(ctx, rt)
		}(rt)
	}

	sched := cron.New(cron.WithLocation(time.UTC))
	for _, rt := range channels {
		rt := rt
		if _, err := sched.AddFunc("5 0 * * *", func() { runDailyValidation(ctx, rt) }); err != nil {
			log.Warning("could not schedule daily validation", "channel", rt.cfg.Channel, "error", err)
		}
	}
	sched.Start()

	log.Info("playoutd started", "channels", len(channels))
	<-ctx.Done()
	log.Info("shutdown signal received, stopping channels")

	for _, rt := range channels {
		rt.manager.StopAll(false)
	}
	wg.Wait()
	sched.Stop()
}

// loadConfigs reads every *.toml file in dir as a channel config.
func loadConfigs(dir string) ([]*config.PlayoutConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read config dir: %w", err)
	}
	var out []*config.PlayoutConfig
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		cfg, err := config.Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		if cfg.Channel == "" {
			cfg.Channel = strings.TrimSuffix(e.Name(), ".toml")
		}
		out = append(out, cfg)
	}
	return out, nil
}

// channelRuntime bundles one channel's wired-up components, assembled by
// bootstrapChannel and driven to completion by runChannel.
type channelRuntime struct {
	cfg       *config.PlayoutConfig
	cfgSnap   *config.Snapshot
	flags     *state.Flags
	machine   *state.Machine
	manager   *player.ChannelManager
	loop      *player.Loop
	validator *validate.Validator
	loader    *playlist.Loader
	prober    *probe.Prober
	bus       *textbus.Bus
	notifier  *notify.Notifier
	stateSt   *statestore.Store
}

// bootstrapChannel wires together one channel's full component tree,
// choosing playlist mode (*schedule.Iterator) or Folder Mode
// (*schedule.FolderIterator) per cfg.Folder.Enable — the tagged-variant
// choice spec.md §9 calls for, made once at startup rather than per-call.
func bootstrapChannel(
	ctx context.Context,
	cfg *config.PlayoutConfig,
	decoderBin, encoderBin, proberBin, sender, recipient string,
	stateSt *statestore.Store,
	notifyStore notify.TimeStore,
	log logging.Logger,
) (*channelRuntime, error) {
	channel := cfg.Channel
	cfgSnap := config.NewSnapshot(cfg, log)
	flags := state.NewFlags()
	machine := state.NewMachine(channel, flags, log)
	manager := player.NewChannelManager(channel, cfgSnap, flags, log)
	prober := probe.NewProber(proberBin, log)

	st, err := stateSt.Load(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("load channel state: %w", err)
	}
	startDate := st.Date
	if startDate == "" {
		startDate = time.Now().In(cfg.Location).Format("2006-01-02")
	}

	var source schedule.Source
	var loader *playlist.Loader
	if cfg.Folder.Enable {
		extensions := cfg.Storage.Extensions
		src, err := folder.NewSource(cfg.Folder.Root, cfg.Folder.Order, extensions, cfg.Location, log)
		if err != nil {
			return nil, fmt.Errorf("folder source: %w", err)
		}
		source = schedule.NewFolderIterator(channel, src, cfgSnap, prober, log)
	} else {
		loader = playlist.NewLoader(cfg.Playlist.Path, cfg.Storage.Filler, log)
		it, err := schedule.NewIterator(ctx, channel, cfgSnap, loader, prober, startDate, log)
		if err != nil {
			return nil, fmt.Errorf("schedule iterator: %w", err)
		}
		source = it
	}

	validator := validate.NewValidator(channel, decoderBin, cfgSnap, prober, flags, log)
	if loader != nil {
		loader.Validate = func(pl *media.Playlist) {
			if err := validator.Run(ctx, pl); err != nil {
				log.Warning("playlist-load validation failed", "channel", channel, "error", err)
			}
		}
	}

	var bus *textbus.Bus
	if cfg.Text.BusEnable {
		bus = textbus.NewBus(channel, cfg.Text.BusAddr, cfg.Text.BusJWTKey, log)
		go func() {
			if err := bus.Serve(); err != nil {
				log.Warning("textbus stopped", "channel", channel, "error", err)
			}
		}()
		if it, ok := source.(*schedule.Iterator); ok {
			it.TextProvider = bus.Current
		} else if fit, ok := source.(*schedule.FolderIterator); ok {
			fit.TextProvider = bus.Current
		}
	}

	var ingest *ingestsvc.Listener
	if cfg.Ingest.Enable {
		ingest = ingestsvc.NewListener(channel, decoderBin, cfgSnap, flags, log)
		manager.Ingest = ingest
	}

	notifier := &notify.Notifier{}
	if err := notifier.Init(ctx, channel, sender, recipient, notifyStore); err != nil {
		log.Warning("notifier init failed, operator alerts disabled", "channel", channel, "error", err)
	}

	loop := &player.Loop{
		Channel:    channel,
		CfgSnap:    cfgSnap,
		Iterator:   source,
		Ingest:     ingest,
		Manager:    manager,
		Flags:      flags,
		Machine:    machine,
		Log:        log,
		EncoderBin: encoderBin,
		DecoderBin: decoderBin,
	}

	return &channelRuntime{
		cfg: cfg, cfgSnap: cfgSnap, flags: flags, machine: machine,
		manager: manager, loop: loop, validator: validator, loader: loader,
		prober: prober, bus: bus, notifier: notifier, stateSt: stateSt,
	}, nil
}

// runChannel drives the channel's player loop, alerting the operator via
// rt.notifier when the loop returns an error (spec §4.7 "Shutdown" /
// §4.12). It runs the loop again after 2s only while is_alive is still
// set, and returns once ctx is cancelled or is_alive is false.
func runChannel(ctx context.Context, rt *channelRuntime) {
	log := rt.loop.Log
	for {
		err := rt.loop.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("channel loop exited", "channel", rt.cfg.Channel, "error", err)
			_ = rt.notifier.Send(ctx, rt.cfg.Channel, notify.UnrecoverableError, err.Error(), time.Minute)
		}
		if !rt.flags.IsAlive.Load() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

// runDailyValidation re-validates the channel's current playlist ahead of
// the next day boundary (spec §4.11's pre-flight pass, scheduled here
// rather than left to the load-time hook alone, per the DOMAIN STACK's
// robfig/cron/v3 entry).
func runDailyValidation(ctx context.Context, rt *channelRuntime) {
	if rt.loader == nil {
		return // Folder Mode has no playlist to pre-validate.
	}
	cfg := rt.cfgSnap.Get()
	date := time.Now().In(cfg.Location).Format("2006-01-02")
	pl, err := rt.loader.Load(ctx, rt.cfg.Channel, date, cfg.Playlist.StartSec)
	if err != nil {
		rt.loop.Log.Warning("daily validation load failed", "channel", rt.cfg.Channel, "error", err)
		return
	}
	if err := rt.validator.Run(ctx, pl); err != nil {
		rt.loop.Log.Warning("daily validation failed", "channel", rt.cfg.Channel, "error", err)
	}
}
