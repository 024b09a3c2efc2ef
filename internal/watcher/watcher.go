// Package watcher discovers new media files under one or more watch folders
// and registers them with FileService (spec §4.10). It runs two cooperative
// loops: an fsnotify event loop for near-real-time discovery, and a periodic
// filepath.WalkDir scan that compensates for missed events.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/chim331u/mediabutler/internal/model"
)

// FileRegistrar is the subset of fileservice.Service Watcher drives.
type FileRegistrar interface {
	Register(ctx context.Context, path, fileName string, fileSize int64) (model.TrackedFile, error)
}

// Enqueuer accepts a classify job referencing a newly registered file.
type Enqueuer interface {
	EnqueueClassify(ctx context.Context, fileHash string) error
}

// Config parametrizes Watcher (spec §4.10, §6).
type Config struct {
	WatchDirs           []string
	DebounceSeconds     int
	ScanIntervalMinutes int
	Extensions          []string
	MinFileSizeMB       int
	ExcludePatterns     []string
	MaxConcurrentScans  int
}

func (c Config) debounce() time.Duration {
	if c.DebounceSeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.DebounceSeconds) * time.Second
}

func (c Config) scanInterval() time.Duration {
	if c.ScanIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.ScanIntervalMinutes) * time.Minute
}

func (c Config) maxConcurrentScans() int {
	if c.MaxConcurrentScans <= 0 {
		return 2
	}
	return c.MaxConcurrentScans
}

func (c Config) minFileSize() int64 {
	return int64(c.MinFileSizeMB) * 1024 * 1024
}

// Watcher implements spec §4.10.
type Watcher struct {
	cfg       Config
	fsWatcher *fsnotify.Watcher
	registrar FileRegistrar
	enqueuer  Enqueuer
	log       zerolog.Logger

	excludeRe []*regexp.Regexp
	extSet    map[string]bool

	scanLimiter *rate.Limiter

	mu         sync.Mutex
	debouncers map[string]*time.Timer
	knownDirs  map[string]bool
}

// New builds a Watcher over cfg. Call Run to start its loops.
func New(cfg Config, registrar FileRegistrar, enqueuer Enqueuer, log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		cfg:        cfg,
		fsWatcher:  fsw,
		registrar:  registrar,
		enqueuer:   enqueuer,
		log:        log,
		extSet:     make(map[string]bool),
		debouncers: make(map[string]*time.Timer),
		knownDirs:  make(map[string]bool),
		// a burst of maxConcurrentScans lets one manual rescan and the periodic
		// tick overlap briefly without serializing unnecessarily.
		scanLimiter: rate.NewLimiter(rate.Every(time.Second), cfg.maxConcurrentScans()),
	}
	for _, ext := range cfg.Extensions {
		w.extSet[strings.ToLower(ext)] = true
	}
	for _, pat := range cfg.ExcludePatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			_ = fsw.Close()
			return nil, err
		}
		w.excludeRe = append(w.excludeRe, re)
	}

	for _, dir := range cfg.WatchDirs {
		if err := w.addDirRecursive(dir); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsWatcher.Close()
}

// addDirRecursive adds dir and every existing subdirectory to the fsnotify
// watch set, following real paths only (symlink cycles are skipped).
func (w *Watcher) addDirRecursive(root string) error {
	visited := map[string]bool{}
	return w.walkAddingDirs(root, visited)
}

func (w *Watcher) walkAddingDirs(dir string, visited map[string]bool) error {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return err
	}
	if visited[real] {
		return nil
	}
	visited[real] = true

	if err := w.fsWatcher.Add(dir); err != nil {
		return err
	}
	w.mu.Lock()
	w.knownDirs[dir] = true
	w.mu.Unlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			_ = w.walkAddingDirs(filepath.Join(dir, e.Name()), visited)
		}
	}
	return nil
}

// Run drives both cooperative loops until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); w.eventLoop(ctx) }()
	go func() { defer wg.Done(); w.scanLoop(ctx) }()
	wg.Wait()
	return ctx.Err()
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watcher event stream error")
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err == nil && info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			_ = w.addDirRecursive(event.Name) // new watch-folder subdirectory, grown into the set
		}
		return
	}

	if !w.passesFilters(event.Name) {
		return
	}
	w.scheduleDiscovery(ctx, event.Name)
}

// scheduleDiscovery debounces rapid event sequences for the same path into
// one discovery, firing after cfg.debounce() of quiet (spec §4.10).
func (w *Watcher) scheduleDiscovery(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.debouncers[path]; ok {
		t.Stop()
	}
	w.debouncers[path] = time.AfterFunc(w.cfg.debounce(), func() {
		w.mu.Lock()
		delete(w.debouncers, path)
		w.mu.Unlock()
		w.discover(ctx, path)
	})
}

func (w *Watcher) discover(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		return // file vanished before debounce elapsed (partial download cleanup, etc.)
	}

	tf, err := w.registrar.Register(ctx, path, filepath.Base(path), info.Size())
	if err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("failed to register discovered file")
		return
	}
	if err := w.enqueuer.EnqueueClassify(ctx, tf.Hash); err != nil {
		w.log.Warn().Err(err).Str("hash", tf.Hash).Msg("failed to enqueue classify job")
	}
}

func (w *Watcher) passesFilters(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if len(w.extSet) > 0 && !w.extSet[ext] {
		return false
	}
	for _, re := range w.excludeRe {
		if re.MatchString(path) {
			return false
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() >= w.cfg.minFileSize()
}

// scanLoop periodically walks every watch folder to catch files the event
// loop missed (spec §4.10). Concurrent scans are bounded by scanLimiter.
func (w *Watcher) scanLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.scanInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ScanOnce(ctx)
		}
	}
}

// ScanOnce performs one bounded full-tree scan of every watch folder,
// feeding any unfiltered file into the same debounce path the event loop
// uses. Exposed for the admin surface's manual rescan trigger.
func (w *Watcher) ScanOnce(ctx context.Context) {
	if err := w.scanLimiter.Wait(ctx); err != nil {
		return
	}
	var wg sync.WaitGroup
	for _, dir := range w.cfg.WatchDirs {
		wg.Add(1)
		go func(dir string) {
			defer wg.Done()
			w.scanDir(ctx, dir)
		}(dir)
	}
	wg.Wait()
}

func (w *Watcher) scanDir(ctx context.Context, root string) {
	visited := map[string]bool{}
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort scan: skip unreadable entries
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			real, evalErr := filepath.EvalSymlinks(path)
			if evalErr == nil {
				if visited[real] {
					return filepath.SkipDir
				}
				visited[real] = true
			}
			return nil
		}
		if w.passesFilters(path) {
			w.scheduleDiscovery(ctx, path)
		}
		return nil
	})
}
