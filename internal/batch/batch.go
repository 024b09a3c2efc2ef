// Package batch implements BatchOrchestrator (spec §4.12): validate, submit,
// and track bulk organize requests as a single BATCH_ORGANIZE job with
// bounded per-batch parallelism and cooperative mid-batch cancellation.
package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/chim331u/mediabutler/internal/eventbus"
	"github.com/chim331u/mediabutler/internal/mberrors"
	"github.com/chim331u/mediabutler/internal/metrics"
	"github.com/chim331u/mediabutler/internal/model"
	"github.com/chim331u/mediabutler/internal/organizer"
	"github.com/chim331u/mediabutler/internal/queue"
)

// Status is a batch job's lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Item is one file/category pair within a batch request.
type Item struct {
	FileHash string
	Category string
}

// Request is a batch_submit/batch_validate input (spec §4.12).
type Request struct {
	Items []Item
}

// ItemResult records one file's organize outcome within a batch.
type ItemResult struct {
	FileHash string
	Success  bool
	Skipped  bool
	Error    string
}

// ValidationIssue is one pre-flight failure (spec §4.12's validate).
type ValidationIssue struct {
	Code    string
	Message string
}

// Progress is batch_status's return value; a point-in-time snapshot.
type Progress struct {
	JobID      string
	Status     Status
	Total      int
	Completed  int
	Failed     int
	Skipped    int
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []ItemResult
}

// Repository is the narrow read port validate/preview needs.
type Repository interface {
	GetByHash(ctx context.Context, hash string, includeInactive bool) (model.TrackedFile, bool, error)
}

// Enqueuer is the subset of queue.Queue the orchestrator drives: it submits
// one BATCH_ORGANIZE job per batch and must know the worker pool is up
// before accepting new work (spec §4.11 OQ-2).
type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) error
	Running() bool
}

const (
	batchStartedTopic   = "batch.started"
	batchProgressTopic  = "batch.progress"
	batchCompletedTopic = "batch.completed"
)

type batchStarted struct {
	JobID string
	Total int
}

type batchProgress struct {
	JobID     string
	Completed int
	Failed    int
	Current   string
}

type batchCompleted struct {
	JobID      string
	Success    int
	Failed     int
	DurationMS int64
}

type job struct {
	req Request

	mu       sync.RWMutex
	progress Progress

	cancelled atomic.Bool
}

// Orchestrator implements spec §4.12.
type Orchestrator struct {
	repo    Repository
	org     *organizer.Organizer
	enq     Enqueuer
	bus     eventbus.Bus
	metrics *metrics.Registry
	log     zerolog.Logger

	maxConcurrency int64
	maxBatchSize   int

	mu   sync.RWMutex
	jobs map[string]*job
}

// New returns an Orchestrator. bus and metricsReg may be nil. maxConcurrency
// is max_batch_concurrency (spec default 2); maxBatchSize is max_batch_size
// (spec default 50).
func New(repo Repository, org *organizer.Organizer, enq Enqueuer, bus eventbus.Bus, metricsReg *metrics.Registry, log zerolog.Logger, maxConcurrency int64, maxBatchSize int) *Orchestrator {
	if maxConcurrency <= 0 {
		maxConcurrency = 2
	}
	if maxBatchSize <= 0 {
		maxBatchSize = 50
	}
	return &Orchestrator{
		repo:           repo,
		org:            org,
		enq:            enq,
		bus:            bus,
		metrics:        metricsReg,
		log:            log,
		maxConcurrency: maxConcurrency,
		maxBatchSize:   maxBatchSize,
		jobs:           make(map[string]*job),
	}
}

// Handler returns the queue.Handler to register for queue.BatchOrganize:
//
//	q.RegisterHandler(queue.BatchOrganize, orch.Handler())
func (o *Orchestrator) Handler() queue.Handler {
	return o.runJob
}

// Validate runs submit's pre-flight checks without executing anything
// (spec §4.12's validate).
func (o *Orchestrator) Validate(ctx context.Context, req Request) ([]ValidationIssue, error) {
	return o.validate(ctx, req)
}

func (o *Orchestrator) validate(ctx context.Context, req Request) ([]ValidationIssue, error) {
	if len(req.Items) == 0 {
		return []ValidationIssue{{Code: "EMPTY", Message: "batch contains no items"}}, nil
	}
	if len(req.Items) > o.maxBatchSize {
		return []ValidationIssue{{Code: "TOO_LARGE", Message: fmt.Sprintf("batch of %d exceeds max_batch_size %d", len(req.Items), o.maxBatchSize)}}, nil
	}

	var issues []ValidationIssue
	seenTargets := make(map[string]string)
	var totalRequired, availableSpace uint64

	for _, item := range req.Items {
		tf, found, err := o.repo.GetByHash(ctx, item.FileHash, false)
		if err != nil {
			return nil, err
		}
		if !found {
			issues = append(issues, ValidationIssue{Code: "NOT_FOUND", Message: "no tracked file for hash " + item.FileHash})
			continue
		}
		if tf.Status != model.StatusClassified && tf.Status != model.StatusReadyToMove {
			issues = append(issues, ValidationIssue{Code: "INELIGIBLE", Message: fmt.Sprintf("%s is not eligible for organization (status %s)", item.FileHash, tf.Status)})
			continue
		}

		preview, err := o.org.Preview(ctx, item.FileHash, item.Category)
		if err != nil {
			issues = append(issues, ValidationIssue{Code: "PREVIEW_FAILED", Message: err.Error()})
			continue
		}
		if existing, ok := seenTargets[preview.TargetPath]; ok {
			issues = append(issues, ValidationIssue{Code: "COLLISION", Message: fmt.Sprintf("target path collision between %s and %s", existing, item.FileHash)})
		}
		seenTargets[preview.TargetPath] = item.FileHash
		for _, vi := range preview.ValidationIssues {
			issues = append(issues, ValidationIssue{Code: vi.Code, Message: vi.Message})
		}

		totalRequired += preview.RequiredSpace
		availableSpace = preview.AvailableSpace // same library volume across items, last write wins
	}

	if availableSpace > 0 && totalRequired > availableSpace {
		issues = append(issues, ValidationIssue{Code: "SPACE", Message: "total required space for the batch exceeds available space"})
	}
	return issues, nil
}

// Submit validates req and, if it passes, registers a new batch job and
// enqueues one BATCH_ORGANIZE job to drive it (spec §4.12).
func (o *Orchestrator) Submit(ctx context.Context, req Request) (string, error) {
	if !o.enq.Running() {
		return "", mberrors.New(mberrors.Unavailable, "batch.submit", "worker pool is not running", nil)
	}

	issues, err := o.validate(ctx, req)
	if err != nil {
		return "", err
	}
	if len(issues) > 0 {
		return "", mberrors.New(mberrors.Validation, "batch.submit", issues[0].Message, nil)
	}

	id := uuid.NewString()
	j := &job{
		req: req,
		progress: Progress{
			JobID:  id,
			Status: StatusPending,
			Total:  len(req.Items),
		},
	}
	o.mu.Lock()
	o.jobs[id] = j
	o.mu.Unlock()

	if err := o.enq.Enqueue(ctx, queue.Job{Kind: queue.BatchOrganize, BatchID: id}); err != nil {
		o.mu.Lock()
		delete(o.jobs, id)
		o.mu.Unlock()
		return "", err
	}
	return id, nil
}

// Status returns job_id's current progress snapshot.
func (o *Orchestrator) Status(jobID string) (Progress, bool) {
	o.mu.RLock()
	j, ok := o.jobs[jobID]
	o.mu.RUnlock()
	if !ok {
		return Progress{}, false
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.progress, true
}

// List returns every known batch job's current progress snapshot.
func (o *Orchestrator) List() []Progress {
	o.mu.RLock()
	ids := make([]*job, 0, len(o.jobs))
	for _, j := range o.jobs {
		ids = append(ids, j)
	}
	o.mu.RUnlock()

	out := make([]Progress, 0, len(ids))
	for _, j := range ids {
		j.mu.RLock()
		out = append(out, j.progress)
		j.mu.RUnlock()
	}
	return out
}

// Cancel requests cooperative cancellation of job_id: the in-flight file
// completes, no further files start (spec §4.12).
func (o *Orchestrator) Cancel(jobID string) error {
	o.mu.RLock()
	j, ok := o.jobs[jobID]
	o.mu.RUnlock()
	if !ok {
		return mberrors.New(mberrors.NotFound, "batch.cancel", "no such batch job", nil)
	}
	j.cancelled.Store(true)
	return nil
}

// runJob executes job.BatchID's items with bounded parallelism
// (max_batch_concurrency via a weighted semaphore), publishing
// batch.started/batch.progress/batch.completed (spec §4.12).
func (o *Orchestrator) runJob(ctx context.Context, qj queue.Job) error {
	o.mu.RLock()
	j, ok := o.jobs[qj.BatchID]
	o.mu.RUnlock()
	if !ok {
		return mberrors.New(mberrors.NotFound, "batch.run", "no such batch job", nil)
	}

	start := time.Now()
	j.mu.Lock()
	j.progress.Status = StatusRunning
	j.progress.StartedAt = start
	j.progress.Results = make([]ItemResult, 0, len(j.req.Items))
	j.mu.Unlock()

	o.publish(ctx, batchStartedTopic, batchStarted{JobID: qj.BatchID, Total: len(j.req.Items)})

	sem := semaphore.NewWeighted(o.maxConcurrency)
	var wg sync.WaitGroup
	var completed, failed int32

	for _, item := range j.req.Items {
		if j.cancelled.Load() {
			j.mu.Lock()
			j.progress.Skipped++
			j.progress.Results = append(j.progress.Results, ItemResult{FileHash: item.FileHash, Skipped: true})
			j.mu.Unlock()
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			j.mu.Lock()
			j.progress.Skipped++
			j.mu.Unlock()
			continue
		}

		if j.cancelled.Load() {
			sem.Release(1)
			j.mu.Lock()
			j.progress.Skipped++
			j.progress.Results = append(j.progress.Results, ItemResult{FileHash: item.FileHash, Skipped: true})
			j.mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(item Item) {
			defer wg.Done()
			defer sem.Release(1)

			_, err := o.org.Organize(ctx, item.FileHash, item.Category)
			result := ItemResult{FileHash: item.FileHash, Success: err == nil}
			if err != nil {
				result.Error = err.Error()
				atomic.AddInt32(&failed, 1)
			} else {
				atomic.AddInt32(&completed, 1)
			}

			j.mu.Lock()
			j.progress.Results = append(j.progress.Results, result)
			j.progress.Completed = int(atomic.LoadInt32(&completed))
			j.progress.Failed = int(atomic.LoadInt32(&failed))
			j.mu.Unlock()

			if o.metrics != nil {
				o.metrics.BatchProgress.WithLabelValues(qj.BatchID, "completed").Set(float64(atomic.LoadInt32(&completed)))
				o.metrics.BatchProgress.WithLabelValues(qj.BatchID, "failed").Set(float64(atomic.LoadInt32(&failed)))
			}
			o.publish(ctx, batchProgressTopic, batchProgress{
				JobID:     qj.BatchID,
				Completed: int(atomic.LoadInt32(&completed)),
				Failed:    int(atomic.LoadInt32(&failed)),
				Current:   item.FileHash,
			})
		}(item)
	}
	wg.Wait()

	j.mu.Lock()
	finishedAt := time.Now()
	j.progress.FinishedAt = finishedAt
	switch {
	case j.cancelled.Load():
		j.progress.Status = StatusCancelled
	case j.progress.Failed > 0 && j.progress.Completed == 0:
		j.progress.Status = StatusFailed
	default:
		j.progress.Status = StatusCompleted
	}
	finalStatus := j.progress.Status
	c, f := j.progress.Completed, j.progress.Failed
	j.mu.Unlock()

	o.publish(ctx, batchCompletedTopic, batchCompleted{
		JobID:      qj.BatchID,
		Success:    c,
		Failed:     f,
		DurationMS: finishedAt.Sub(start).Milliseconds(),
	})
	o.log.Info().Str("job_id", qj.BatchID).Str("status", string(finalStatus)).Int("completed", c).Int("failed", f).Msg("batch job finished")
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, topic string, msg eventbus.Message) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, topic, msg); err != nil {
		o.log.Warn().Err(err).Str("topic", topic).Msg("failed to publish batch event")
	}
}
