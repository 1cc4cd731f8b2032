package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unklstewy/globe-replay/internal/db"
	"github.com/unklstewy/globe-replay/internal/logging"
	"github.com/unklstewy/globe-replay/pkg/config"
	"github.com/unklstewy/globe-replay/pkg/feeds"
	"github.com/unklstewy/globe-replay/pkg/replay"
)

// Recorder continuously fuses the live feeds and records snapshots into the
// replay ring, autosaving to the local cache and optionally archiving to
// PostgreSQL. Runs as a background service so replay clients share one
// recording without each hitting the feeds.
func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	flag.Parse()

	log.Println("===========================================")
	log.Println("  Globe Replay Recorder Service")
	log.Println("===========================================")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Dir)

	log.Printf("Configuration loaded from: %s", *configPath)
	log.Printf("Sampling interval: %d ms, history window: %d minutes",
		cfg.Engine.SamplingIntervalMs, cfg.Engine.HistoryMinutes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the configured feeds.
	var pollFeed *feeds.PollFeed
	var pushFeed *feeds.PushFeed
	var sbsFeed *feeds.SBSFeed

	if cfg.Feeds.Poll.Enabled {
		pollFeed = feeds.NewPollFeed(cfg.Feeds.Poll.URL, feeds.DefaultPollInterval)
		go pollFeed.Run(ctx)
		log.Printf("✓ Poll feed: %s", cfg.Feeds.Poll.URL)
	}
	if cfg.Feeds.Push.Enabled {
		pushFeed = feeds.NewPushFeed(cfg.Feeds.Push.URL)
		go pushFeed.Run(ctx)
		log.Printf("✓ Push feed: %s", cfg.Feeds.Push.URL)
	}
	if cfg.Feeds.SBS.Enabled {
		sbsFeed = feeds.NewSBSFeed(cfg.Feeds.SBS.URL)
		go sbsFeed.Run(ctx)
		log.Printf("✓ SBS feed: %s", cfg.Feeds.SBS.URL)
	}
	if pollFeed == nil && pushFeed == nil && sbsFeed == nil {
		log.Fatal("Error: no feeds enabled")
	}

	opts := replay.Options{
		SamplingInterval: time.Duration(cfg.Engine.SamplingIntervalMs) * time.Millisecond,
		HistoryMinutes:   cfg.Engine.HistoryMinutes,
	}
	if pollFeed != nil {
		opts.Poll = pollFeed
	}
	if pushFeed != nil {
		opts.Push = pushFeed
	}
	if sbsFeed != nil {
		opts.Exclusive = sbsFeed
	}

	engine := replay.NewEngine(opts)
	defer engine.Close()
	if cfg.Feeds.UseSBS {
		engine.SelectExclusiveFeed(true)
		log.Println("✓ Exclusive SBS feed selected")
	}

	// Restore any autosaved recording from a previous run.
	autosave := replay.NewAutosave("recorder")
	if snapshots, savedAt, err := autosave.Load(); err == nil && len(snapshots) > 0 {
		engine.RestoreRecording(snapshots)
		log.Printf("✓ Restored %d snapshots autosaved at %s",
			len(snapshots), savedAt.Format(time.RFC3339))
	}

	// Optional snapshot archive.
	var repo *db.SnapshotRepository
	var database *db.DB
	if cfg.Database.Enabled {
		log.Println("Connecting to database...")
		database, err = db.ReconnectWithRetry(cfg.Database, 5, 1*time.Second)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()

		if err := database.InitSchema(ctx); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		log.Println("✓ Database schema initialized")
		repo = db.NewSnapshotRepository(database)
	}

	svc := &service{
		engine:           engine,
		logger:           logger,
		autosave:         autosave,
		repo:             repo,
		cfg:              cfg,
		samplingInterval: opts.SamplingInterval,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	doneChan := make(chan struct{})
	go func() {
		defer close(doneChan)
		svc.run(ctx)
	}()

	log.Println("===========================================")
	log.Println("  Recorder started")
	log.Println("  Press Ctrl+C to stop")
	log.Println("===========================================")

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case <-doneChan:
		log.Println("Recorder stopped")
	}

	cancel()
	svc.saveNow()
	log.Println("✓ Recorder service stopped")
}

// service owns the recording loop and its side channels.
type service struct {
	engine           *replay.Engine
	logger           *logging.Logger
	autosave         *replay.Autosave
	repo             *db.SnapshotRepository
	cfg              *config.Config
	samplingInterval time.Duration

	archived int64
}

// run drives the record, autosave, prune, and stats loops until ctx ends.
func (s *service) run(ctx context.Context) {
	recordTicker := time.NewTicker(s.samplingInterval)
	defer recordTicker.Stop()

	autosaveInterval := time.Duration(s.cfg.Engine.AutosaveIntervalSeconds) * time.Second
	if autosaveInterval <= 0 {
		autosaveInterval = time.Hour * 24 * 365 // effectively disabled
	}
	autosaveTicker := time.NewTicker(autosaveInterval)
	defer autosaveTicker.Stop()

	pruneTicker := time.NewTicker(1 * time.Hour)
	defer pruneTicker.Stop()

	statsTicker := time.NewTicker(30 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-recordTicker.C:
			s.record(ctx)
		case <-autosaveTicker.C:
			s.saveNow()
		case <-pruneTicker.C:
			s.prune(ctx)
		case <-statsTicker.C:
			s.printStats()
		}
	}
}

// record captures one fused snapshot and, when archiving, writes it through.
func (s *service) record(ctx context.Context) {
	s.engine.RecordFused()

	if s.repo == nil {
		return
	}
	snapshots := s.engine.RecordedSnapshots()
	if len(snapshots) == 0 {
		return
	}
	latest := snapshots[len(snapshots)-1]

	err := db.WithRetry(func() error {
		return s.repo.Insert(ctx, latest)
	}, 3)
	if err != nil {
		s.logger.Errorf("Failed to archive snapshot: %v", err)
		return
	}
	s.archived++
}

// saveNow persists the ring to the local cache.
func (s *service) saveNow() {
	snapshots := s.engine.RecordedSnapshots()
	if len(snapshots) == 0 {
		return
	}
	if err := s.autosave.Save(snapshots); err != nil {
		s.logger.Errorf("Autosave failed: %v", err)
		return
	}
	s.logger.Infof("Autosaved %d snapshots", len(snapshots))
}

// prune enforces the archive retention window.
func (s *service) prune(ctx context.Context) {
	if s.repo == nil || s.cfg.Database.RetentionHours <= 0 {
		return
	}
	retention := time.Duration(s.cfg.Database.RetentionHours) * time.Hour
	removed, err := s.repo.Prune(ctx, retention)
	if err != nil {
		s.logger.Errorf("Archive prune failed: %v", err)
		return
	}
	if removed > 0 {
		s.logger.Infof("Pruned %d archived snapshots older than %v", removed, retention)
	}
}

// printStats logs a periodic one-line status.
func (s *service) printStats() {
	status := s.engine.Status()
	frame := s.engine.Resolve()

	entities := len(frame.Current)

	log.Printf("[%s] 📊 %d entities, buffer %d/%d (%.0fs), archived %d",
		time.Now().Format("15:04:05"),
		entities, status.BufferLen, status.BufferCap,
		status.TotalSeconds, s.archived)
}
