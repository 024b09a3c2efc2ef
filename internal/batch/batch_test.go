package batch_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chim331u/mediabutler/internal/batch"
	"github.com/chim331u/mediabutler/internal/clock"
	"github.com/chim331u/mediabutler/internal/eventbus"
	"github.com/chim331u/mediabutler/internal/eventbus/memorybus"
	"github.com/chim331u/mediabutler/internal/fileservice"
	"github.com/chim331u/mediabutler/internal/filemover"
	"github.com/chim331u/mediabutler/internal/model"
	"github.com/chim331u/mediabutler/internal/organizer"
	"github.com/chim331u/mediabutler/internal/pathbuilder"
	"github.com/chim331u/mediabutler/internal/queue"
	"github.com/chim331u/mediabutler/internal/rollback"
	"github.com/chim331u/mediabutler/internal/store"
	"github.com/chim331u/mediabutler/internal/vfs"
)

type fakeEnqueuer struct {
	running bool
	handler func(ctx context.Context, job queue.Job) error
}

func (f *fakeEnqueuer) Running() bool { return f.running }

func (f *fakeEnqueuer) Enqueue(ctx context.Context, job queue.Job) error {
	return f.handler(ctx, job)
}

type harness struct {
	orch *batch.Orchestrator
	svc  *fileservice.Service
	s    *store.Store
	mem  *vfs.Mem
	bus  eventbus.Bus
	enq  *fakeEnqueuer
}

func newHarness(t *testing.T, maxConcurrency int64, maxBatchSize int) *harness {
	t.Helper()
	fixed := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s, err := store.OpenInMemory(store.WithClock(fixed))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	mem := vfs.NewMem(1 << 30)
	pathOpts := pathbuilder.Options{LibraryRoot: "/library"}
	svc := fileservice.New(s, mem, fixed, 3, pathOpts)
	rb := rollback.New(s, mem, "")
	mover := filemover.New(mem)
	org := organizer.New(s, mem, svc, rb, mover, pathOpts, nil)
	bus := memorybus.New()

	enq := &fakeEnqueuer{running: true}
	h := &harness{svc: svc, s: s, mem: mem, bus: bus, enq: enq}
	h.orch = batch.New(s, org, enq, bus, nil, zerolog.Nop(), maxConcurrency, maxBatchSize)
	enq.handler = func(ctx context.Context, job queue.Job) error {
		return h.orch.Handler()(ctx, job)
	}
	return h
}

func (h *harness) registerClassifiedFile(t *testing.T, ctx context.Context, path, name string, size int64, category string) model.TrackedFile {
	t.Helper()
	h.mem.WriteFile(path, make([]byte, size))
	tf, err := h.svc.Register(ctx, path, name, size)
	require.NoError(t, err)
	_, err = h.svc.UpdateClassification(ctx, tf.Hash, category, 0.9)
	require.NoError(t, err)
	updated, _, err := h.s.GetByHash(ctx, tf.Hash, false)
	require.NoError(t, err)
	return updated
}

func TestValidateFlagsNotFound(t *testing.T) {
	h := newHarness(t, 2, 50)
	ctx := context.Background()

	tf := h.registerClassifiedFile(t, ctx, "/inbox/show.mkv", "show.mkv", 10, "THE OFFICE")

	issues, err := h.orch.Validate(ctx, batch.Request{Items: []batch.Item{
		{FileHash: tf.Hash, Category: "THE OFFICE"},
		{FileHash: "missing-hash", Category: "OTHER"},
	}})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "NOT_FOUND", issues[0].Code)
}

func TestValidateFlagsIneligibleStatus(t *testing.T) {
	h := newHarness(t, 2, 50)
	ctx := context.Background()

	h.mem.WriteFile("/inbox/new.mkv", make([]byte, 10))
	tf, err := h.svc.Register(ctx, "/inbox/new.mkv", "new.mkv", 10)
	require.NoError(t, err)

	issues, err := h.orch.Validate(ctx, batch.Request{Items: []batch.Item{
		{FileHash: tf.Hash, Category: "THE OFFICE"},
	}})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "INELIGIBLE", issues[0].Code)
}

func TestValidateRejectsOversizedBatch(t *testing.T) {
	h := newHarness(t, 2, 1)
	ctx := context.Background()

	tf1 := h.registerClassifiedFile(t, ctx, "/inbox/a.mkv", "a.mkv", 10, "A")
	tf2 := h.registerClassifiedFile(t, ctx, "/inbox/b.mkv", "b.mkv", 10, "B")

	issues, err := h.orch.Validate(ctx, batch.Request{Items: []batch.Item{
		{FileHash: tf1.Hash, Category: "A"},
		{FileHash: tf2.Hash, Category: "B"},
	}})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "TOO_LARGE", issues[0].Code)
}

func TestSubmitRunsBatchToCompletion(t *testing.T) {
	h := newHarness(t, 2, 50)
	ctx := context.Background()

	tf1 := h.registerClassifiedFile(t, ctx, "/inbox/ep1.mkv", "ep1.mkv", 10, "THE OFFICE")
	tf2 := h.registerClassifiedFile(t, ctx, "/inbox/ep2.mkv", "ep2.mkv", 10, "THE OFFICE")

	sub, err := h.bus.Subscribe(ctx, "batch.completed")
	require.NoError(t, err)
	defer sub.Close()

	id, err := h.orch.Submit(ctx, batch.Request{Items: []batch.Item{
		{FileHash: tf1.Hash, Category: "THE OFFICE"},
		{FileHash: tf2.Hash, Category: "THE OFFICE"},
	}})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	select {
	case <-sub.C():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch.completed")
	}

	progress, ok := h.orch.Status(id)
	require.True(t, ok)
	assert.Equal(t, batch.StatusCompleted, progress.Status)
	assert.Equal(t, 2, progress.Completed)
	assert.Equal(t, 0, progress.Failed)

	updated1, _, _ := h.s.GetByHash(ctx, tf1.Hash, false)
	updated2, _, _ := h.s.GetByHash(ctx, tf2.Hash, false)
	assert.Equal(t, model.StatusMoved, updated1.Status)
	assert.Equal(t, model.StatusMoved, updated2.Status)

	found := false
	for _, p := range h.orch.List() {
		if p.JobID == id {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSubmitRejectsWhenWorkerPoolDown(t *testing.T) {
	h := newHarness(t, 2, 50)
	h.enq.running = false
	ctx := context.Background()

	tf := h.registerClassifiedFile(t, ctx, "/inbox/ep1.mkv", "ep1.mkv", 10, "THE OFFICE")

	_, err := h.orch.Submit(ctx, batch.Request{Items: []batch.Item{{FileHash: tf.Hash, Category: "THE OFFICE"}}})
	require.Error(t, err)
}

func TestSubmitRejectsInvalidBatch(t *testing.T) {
	h := newHarness(t, 2, 50)
	ctx := context.Background()

	_, err := h.orch.Submit(ctx, batch.Request{})
	require.Error(t, err)
}

func TestCancelStopsFurtherItemsFromStarting(t *testing.T) {
	h := newHarness(t, 1, 50)
	ctx := context.Background()

	tf1 := h.registerClassifiedFile(t, ctx, "/inbox/ep1.mkv", "ep1.mkv", 10, "THE OFFICE")
	tf2 := h.registerClassifiedFile(t, ctx, "/inbox/ep2.mkv", "ep2.mkv", 10, "THE OFFICE")
	tf3 := h.registerClassifiedFile(t, ctx, "/inbox/ep3.mkv", "ep3.mkv", 10, "THE OFFICE")

	var jobID string
	enqCh := make(chan struct{})
	origHandler := h.enq.handler
	h.enq.handler = func(ctx context.Context, job queue.Job) error {
		jobID = job.BatchID
		close(enqCh)
		return origHandler(ctx, job)
	}

	go func() {
		_, _ = h.orch.Submit(ctx, batch.Request{Items: []batch.Item{
			{FileHash: tf1.Hash, Category: "THE OFFICE"},
			{FileHash: tf2.Hash, Category: "THE OFFICE"},
			{FileHash: tf3.Hash, Category: "THE OFFICE"},
		}})
	}()

	<-enqCh
	require.NoError(t, h.orch.Cancel(jobID))

	require.Eventually(t, func() bool {
		p, ok := h.orch.Status(jobID)
		return ok && (p.Status == batch.StatusCancelled || p.Status == batch.StatusCompleted)
	}, 2*time.Second, 10*time.Millisecond)

	p, ok := h.orch.Status(jobID)
	require.True(t, ok)
	assert.Equal(t, 3, p.Completed+p.Failed+p.Skipped)
	assert.GreaterOrEqual(t, p.Skipped, 1, "expected cancellation to skip at least one queued item")
}

func TestStatusUnknownJobReturnsFalse(t *testing.T) {
	h := newHarness(t, 2, 50)
	_, ok := h.orch.Status("does-not-exist")
	assert.False(t, ok)
}
