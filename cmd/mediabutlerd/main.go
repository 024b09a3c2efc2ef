// Command mediabutlerd runs the MediaButler daemon: it wires Store,
// FileService, Organizer, Watcher, the CLASSIFY/ORGANIZE/BATCH_ORGANIZE
// worker pool, and the internal operations HTTP surface together and blocks
// until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chim331u/mediabutler/internal/adminhttp"
	"github.com/chim331u/mediabutler/internal/batch"
	"github.com/chim331u/mediabutler/internal/classifier"
	classifiercache "github.com/chim331u/mediabutler/internal/classifier/cache"
	"github.com/chim331u/mediabutler/internal/clock"
	"github.com/chim331u/mediabutler/internal/config"
	"github.com/chim331u/mediabutler/internal/eventbus"
	"github.com/chim331u/mediabutler/internal/eventbus/memorybus"
	"github.com/chim331u/mediabutler/internal/fileservice"
	"github.com/chim331u/mediabutler/internal/filemover"
	"github.com/chim331u/mediabutler/internal/mblog"
	"github.com/chim331u/mediabutler/internal/metrics"
	"github.com/chim331u/mediabutler/internal/organizer"
	"github.com/chim331u/mediabutler/internal/pathbuilder"
	"github.com/chim331u/mediabutler/internal/queue"
	"github.com/chim331u/mediabutler/internal/rollback"
	"github.com/chim331u/mediabutler/internal/store"
	"github.com/chim331u/mediabutler/internal/tracing"
	"github.com/chim331u/mediabutler/internal/vfs"
	"github.com/chim331u/mediabutler/internal/watcher"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "/etc/mediabutler/config.yaml", "path to config file (YAML)")
	adminAddr := flag.String("admin-addr", ":9191", "listen address for the internal operations HTTP surface")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	mblog.Configure(mblog.Config{Level: "info"})
	log := mblog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load configuration")
	}

	dbPath := filepath.Join(cfg.Paths.LibraryRoot, ".mediabutler", "state.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create state directory")
	}

	promReg := prometheus.NewRegistry()
	metricsReg := metrics.NewRegistry(promReg)
	tracingProvider := tracing.NewProvider(true)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracingProvider.Shutdown(shutdownCtx)
	}()

	bus := eventbus.Bus(memorybus.New())
	defer bus.Close()
	sink := eventbus.NewSink(bus)

	s, err := store.Open(dbPath, store.WithClock(clock.Real{}), store.WithEventSink(sink))
	if err != nil {
		log.Fatal().Err(err).Str("path", dbPath).Msg("failed to open store")
	}
	defer s.Close()

	fsys := vfs.OS{}
	pathOpts := pathbuilder.Options{LibraryRoot: cfg.Paths.LibraryRoot}

	svc := fileservice.New(s, fsys, clock.Real{}, cfg.Retries.MaxRetry, pathOpts)
	rb := rollback.New(s, fsys, filepath.Join(cfg.Paths.LibraryRoot, ".mediabutler", "rollback"))
	mover := filemover.New(fsys)
	org := organizer.New(s, fsys, svc, rb, mover, pathOpts, metricsReg)

	cls, closeClassifier := buildClassifier(cfg)
	if closeClassifier != nil {
		defer closeClassifier()
	} else if cfg.Classification.ServiceURL == "" {
		log.Warn().Msg("classification.service_url not set; every file will be suggested UNKNOWN")
	}

	q := queue.New(queue.Config{
		Capacity:         cfg.Retries.QueueCapacity,
		WorkerCount:      cfg.Retries.WorkerCount,
		MaxRetry:         cfg.Retries.MaxRetry,
		AutoThreshold:    cfg.Classification.AutoThreshold,
		SuggestThreshold: cfg.Classification.SuggestThreshold,
	}, s, svc, cls, org, bus, metricsReg, mblog.WithComponent("queue"))

	orch := batch.New(s, org, q, bus, metricsReg, mblog.WithComponent("batch"),
		int64(cfg.Retries.MaxBatchConcurrency), cfg.Retries.MaxBatchSize)
	q.RegisterHandler(queue.BatchOrganize, orch.Handler())

	w, err := watcher.New(watcher.Config{
		WatchDirs:           cfg.Paths.WatchFolders,
		DebounceSeconds:     cfg.Discovery.DebounceSeconds,
		ScanIntervalMinutes: cfg.Discovery.ScanIntervalMinutes,
		Extensions:          cfg.Discovery.FileExtensions,
		MinFileSizeMB:       int(cfg.Discovery.MinFileSizeMB),
		ExcludePatterns:     cfg.Discovery.ExcludePatterns,
		MaxConcurrentScans:  cfg.Discovery.MaxConcurrentScans,
	}, svc, classifyEnqueuer{q}, mblog.WithComponent("watcher"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build watcher")
	}
	defer w.Close()

	adminHandler := adminhttp.NewRouter(adminhttp.Config{
		Queue:           q,
		Batch:           batchView{orch},
		Rescanner:       w,
		MetricsRegistry: promReg,
		Log:             mblog.WithComponent("adminhttp"),
	})
	adminSrv := &http.Server{Addr: *adminAddr, Handler: adminHandler}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := q.Run(ctx); err != nil {
			log.Error().Err(err).Msg("queue run loop exited with error")
		}
	}()

	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		if err := w.Run(ctx); err != nil {
			log.Error().Err(err).Msg("watcher run loop exited with error")
		}
	}()

	go func() {
		log.Info().Str("addr", *adminAddr).Msg("admin HTTP surface listening")
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("admin HTTP server failed")
		}
	}()

	log.Info().Str("version", version).Str("library_root", cfg.Paths.LibraryRoot).Msg("mediabutlerd started")

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = adminSrv.Shutdown(shutdownCtx)

	<-done
	<-watcherDone
	log.Info().Msg("mediabutlerd stopped")
}

func loadConfig(path string) (config.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config.Config{}, fmt.Errorf("config file %q not found", path)
		}
		return config.Config{}, err
	}
	return config.Load(data)
}

// buildClassifier wires the external classifier behind the cache and timeout
// wrappers (spec §4.2, DOMAIN STACK D.1), falling back to a static "UNKNOWN"
// classifier when no service is configured.
func buildClassifier(cfg config.Config) (classifier.Classifier, func()) {
	if cfg.Classification.ServiceURL == "" {
		return classifier.Static{}, nil
	}

	httpCls := classifier.NewHTTP(cfg.Classification.ServiceURL, nil)
	ttl := time.Duration(cfg.Classification.CacheTTLSeconds) * time.Second
	cached, err := classifiercache.Open(cfg.Classification.CacheDir, httpCls, ttl)
	if err != nil {
		return classifier.WithTimeout(httpCls, cfg.ClassificationTimeout()), nil
	}
	return classifier.WithTimeout(cached, cfg.ClassificationTimeout()), func() { _ = cached.Close() }
}

// classifyEnqueuer adapts Queue to watcher.Enqueuer.
type classifyEnqueuer struct {
	q *queue.Queue
}

func (c classifyEnqueuer) EnqueueClassify(ctx context.Context, fileHash string) error {
	return c.q.Enqueue(ctx, queue.Job{Kind: queue.Classify, FileHash: fileHash})
}

// batchView adapts *batch.Orchestrator to adminhttp.BatchStatus without
// adminhttp importing internal/batch.
type batchView struct {
	orch *batch.Orchestrator
}

func (b batchView) List() []adminhttp.BatchProgressView {
	progress := b.orch.List()
	out := make([]adminhttp.BatchProgressView, 0, len(progress))
	for _, p := range progress {
		out = append(out, adminhttp.BatchProgressView{
			JobID:     p.JobID,
			Status:    string(p.Status),
			Total:     p.Total,
			Completed: p.Completed,
			Failed:    p.Failed,
			Skipped:   p.Skipped,
		})
	}
	return out
}
