// Package queue implements the bounded job queue and fixed worker pool that
// drives CLASSIFY and ORGANIZE jobs (spec §4.11). BATCH_ORGANIZE jobs are
// dispatched through the same mechanism but handled by whatever package
// registers a handler for that kind (internal/batch), avoiding an import
// cycle between queue and batch.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chim331u/mediabutler/internal/classifier"
	"github.com/chim331u/mediabutler/internal/errorclassifier"
	"github.com/chim331u/mediabutler/internal/eventbus"
	"github.com/chim331u/mediabutler/internal/fileservice"
	"github.com/chim331u/mediabutler/internal/mberrors"
	"github.com/chim331u/mediabutler/internal/metrics"
	"github.com/chim331u/mediabutler/internal/model"
	"github.com/chim331u/mediabutler/internal/organizer"
	"github.com/chim331u/mediabutler/internal/tokenizer"
)

// Kind identifies the job family (spec §4.11).
type Kind string

const (
	Classify      Kind = "CLASSIFY"
	Organize      Kind = "ORGANIZE"
	BatchOrganize Kind = "BATCH_ORGANIZE"
)

// Job is one unit of queued work.
type Job struct {
	ID       string
	Kind     Kind
	FileHash string
	Category string  // ORGANIZE: target category
	BatchID  string  // BATCH_ORGANIZE: the owning batch job id
	Attempts int
}

// Handler processes one job. Returning an error marks the job failed; the
// queue decides whether to retry based on ErrorClassifier.
type Handler func(ctx context.Context, job Job) error

// EnqueuePolicy controls behavior when the queue is at capacity.
type EnqueuePolicy string

const (
	RejectWhenFull EnqueuePolicy = "reject"
	BlockWhenFull  EnqueuePolicy = "block"
)

// Repository is the narrow read port the CLASSIFY handler needs.
type Repository interface {
	GetByHash(ctx context.Context, hash string, includeInactive bool) (model.TrackedFile, bool, error)
}

// Config parametrizes Queue (spec §4.11, §6 defaults).
type Config struct {
	Capacity         int
	WorkerCount      int
	EnqueuePolicy    EnqueuePolicy
	ShutdownTimeout  time.Duration
	MaxRetry         int
	AutoThreshold    float64
	SuggestThreshold float64
}

func (c Config) capacity() int {
	if c.Capacity <= 0 {
		return 100
	}
	return c.Capacity
}

func (c Config) workerCount() int {
	if c.WorkerCount <= 0 {
		return 2
	}
	return c.WorkerCount
}

func (c Config) policy() EnqueuePolicy {
	if c.EnqueuePolicy == "" {
		return RejectWhenFull
	}
	return c.EnqueuePolicy
}

func (c Config) shutdownTimeout() time.Duration {
	if c.ShutdownTimeout <= 0 {
		return 10 * time.Second
	}
	return c.ShutdownTimeout
}

func (c Config) maxRetry() int {
	if c.MaxRetry <= 0 {
		return 3
	}
	return c.MaxRetry
}

func (c Config) autoThreshold() float64 {
	if c.AutoThreshold <= 0 {
		return 0.85
	}
	return c.AutoThreshold
}

func (c Config) suggestThreshold() float64 {
	if c.SuggestThreshold <= 0 {
		return 0.50
	}
	return c.SuggestThreshold
}

const classificationCompletedTopic = "classification.completed"

// classificationCompleted is published on classificationCompletedTopic
// after a CLASSIFY job resolves a category for a file (spec §4.11).
type classificationCompleted struct {
	FileHash          string
	SuggestedCategory string
	Confidence        float64
}

// Queue is a bounded FIFO job channel drained by a fixed worker pool.
type Queue struct {
	cfg Config
	jobs chan Job

	repo       Repository
	fileSvc    *fileservice.Service
	tok        func(filename string) tokenizer.Result
	cls        classifier.Classifier
	organizer  *organizer.Organizer
	bus        eventbus.Bus
	metrics    *metrics.Registry
	log        zerolog.Logger

	mu       sync.RWMutex
	handlers map[Kind]Handler
	running  bool
	draining bool
	wg       sync.WaitGroup
}

// New builds a Queue. bus and metricsReg may be nil.
func New(cfg Config, repo Repository, fileSvc *fileservice.Service, cls classifier.Classifier, org *organizer.Organizer, bus eventbus.Bus, metricsReg *metrics.Registry, log zerolog.Logger) *Queue {
	q := &Queue{
		cfg:       cfg,
		jobs:      make(chan Job, cfg.capacity()),
		repo:      repo,
		fileSvc:   fileSvc,
		tok:       tokenizer.Tokenize,
		cls:       cls,
		organizer: org,
		bus:       bus,
		metrics:   metricsReg,
		log:       log,
		handlers:  make(map[Kind]Handler),
	}
	q.handlers[Classify] = q.handleClassify
	q.handlers[Organize] = q.handleOrganize
	return q
}

// RegisterHandler installs (or replaces) the Handler for kind. Used by
// internal/batch to wire BATCH_ORGANIZE without queue depending on batch.
func (q *Queue) RegisterHandler(kind Kind, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = h
}

// Running reports whether the worker pool is up. Enqueue and batch
// submission check it and surface mberrors.Unavailable rather than treat a
// down pool as not-found.
func (q *Queue) Running() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.running && !q.draining
}

// Enqueue admits job per cfg's EnqueuePolicy. Rejects immediately if the
// queue is draining or not yet running.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if !q.Running() {
		return mberrors.New(mberrors.Unavailable, "queue.enqueue", "worker pool is not running", nil)
	}

	if q.cfg.policy() == BlockWhenFull {
		select {
		case q.jobs <- job:
			q.observeDepth()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case q.jobs <- job:
		q.observeDepth()
		return nil
	default:
		return mberrors.New(mberrors.Unavailable, "queue.enqueue", "queue full", nil)
	}
}

func (q *Queue) observeDepth() {
	if q.metrics != nil {
		q.metrics.QueueDepth.Set(float64(len(q.jobs)))
	}
}

// Run starts worker_count workers and blocks until ctx is cancelled or
// Shutdown completes. Jobs left undrained when ShutdownTimeout elapses are
// abandoned; their TrackedFile stays in its last persisted state (spec §4.11).
func (q *Queue) Run(ctx context.Context) error {
	q.mu.Lock()
	q.running = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
	}()

	for i := 0; i < q.cfg.workerCount(); i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}

	<-ctx.Done()
	return q.Shutdown(context.Background())
}

// Shutdown stops accepting new jobs and waits up to ShutdownTimeout for
// in-flight jobs to complete before returning.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return nil
	}
	q.draining = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(q.cfg.shutdownTimeout()):
		return mberrors.New(mberrors.Unavailable, "queue.shutdown", "workers did not drain within shutdown_timeout", nil)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.dispatch(ctx, job)
		}
	}
}

func (q *Queue) dispatch(ctx context.Context, job Job) {
	if q.metrics != nil {
		q.metrics.WorkerBusy.Inc()
		defer q.metrics.WorkerBusy.Dec()
	}
	q.observeDepth()

	q.mu.RLock()
	handler, ok := q.handlers[job.Kind]
	q.mu.RUnlock()
	if !ok {
		q.log.Error().Str("kind", string(job.Kind)).Msg("no handler registered for job kind")
		return
	}

	if err := handler(ctx, job); err != nil {
		q.handleFailure(ctx, job, err)
	}
}

// handleFailure applies ErrorClassifier's verdict: transient/timeout errors
// that can still retry are re-enqueued after RecommendedDelay with
// FileService.BeginRetry first; anything else is left terminal.
func (q *Queue) handleFailure(ctx context.Context, job Job, jobErr error) {
	classification := errorclassifier.Classify(ctx, errorclassifier.ErrorContext{
		Err:           jobErr,
		OperationType: string(job.Kind),
		FileHash:      job.FileHash,
		RetryAttempts: job.Attempts,
	})

	if !classification.CanRetry || job.Attempts >= q.cfg.maxRetry() {
		q.log.Warn().Err(jobErr).Str("hash", job.FileHash).Str("kind", string(job.Kind)).Msg("job failed terminally")
		return
	}

	if q.metrics != nil {
		q.metrics.RetryTotal.WithLabelValues(string(job.Kind)).Inc()
	}

	next := job
	next.Attempts++
	q.log.Info().Str("hash", job.FileHash).Int("attempt", next.Attempts).Dur("delay", classification.RecommendedDelay).Msg("re-enqueuing job after transient failure")

	time.AfterFunc(classification.RecommendedDelay, func() {
		if _, err := q.fileSvc.BeginRetry(ctx, job.FileHash); err != nil {
			q.log.Warn().Err(err).Str("hash", job.FileHash).Msg("failed to transition to RETRY before re-enqueue")
		}
		if err := q.Enqueue(ctx, next); err != nil {
			q.log.Warn().Err(err).Str("hash", job.FileHash).Msg("failed to re-enqueue job")
		}
	})
}

// handleClassify runs the CLASSIFY pipeline: load -> Tokenizer -> Classifier
// (timeout-bounded) -> FileService.UpdateClassification -> publish
// classification.completed (spec §4.11, confidence interpretation §4.2).
func (q *Queue) handleClassify(ctx context.Context, job Job) error {
	tf, found, err := q.repo.GetByHash(ctx, job.FileHash, false)
	if err != nil {
		return err
	}
	if !found {
		return mberrors.New(mberrors.NotFound, "queue.classify", "tracked file not found", nil)
	}

	tokens := q.tok(tf.FileName)
	result, err := q.cls.Classify(ctx, tokens.SeriesTokens, tf.FileName)
	if err != nil {
		return mberrors.New(mberrors.ClassifierTimeout, "queue.classify", "classifier call failed", err)
	}

	suggested := result.Category
	if result.Confidence < q.cfg.suggestThreshold() {
		suggested = "UNKNOWN"
	}

	if _, err := q.fileSvc.UpdateClassification(ctx, job.FileHash, suggested, result.Confidence); err != nil {
		return err
	}

	if q.bus != nil {
		_ = q.bus.Publish(ctx, classificationCompletedTopic, classificationCompleted{
			FileHash:          job.FileHash,
			SuggestedCategory: suggested,
			Confidence:        result.Confidence,
		})
	}
	return nil
}

// handleOrganize runs the ORGANIZE pipeline via Organizer (spec §4.11).
func (q *Queue) handleOrganize(ctx context.Context, job Job) error {
	_, err := q.organizer.Organize(ctx, job.FileHash, job.Category)
	return err
}
