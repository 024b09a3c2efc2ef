package organizer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chim331u/mediabutler/internal/clock"
	"github.com/chim331u/mediabutler/internal/fileservice"
	"github.com/chim331u/mediabutler/internal/filemover"
	"github.com/chim331u/mediabutler/internal/mberrors"
	"github.com/chim331u/mediabutler/internal/model"
	"github.com/chim331u/mediabutler/internal/organizer"
	"github.com/chim331u/mediabutler/internal/pathbuilder"
	"github.com/chim331u/mediabutler/internal/rollback"
	"github.com/chim331u/mediabutler/internal/store"
	"github.com/chim331u/mediabutler/internal/vfs"
)

func newHarness(t *testing.T) (*organizer.Organizer, *fileservice.Service, *store.Store, *vfs.Mem) {
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
	return org, svc, s, mem
}

func TestOrganizeMovesFileAndMarksMoved(t *testing.T) {
	org, svc, _, mem := newHarness(t)
	ctx := context.Background()

	mem.WriteFile("/inbox/show.mkv", []byte("content-bytes"))
	tf, err := svc.Register(ctx, "/inbox/show.mkv", "show.mkv", 13)
	require.NoError(t, err)
	_, err = svc.UpdateClassification(ctx, tf.Hash, "THE OFFICE", 0.9)
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, tf.Hash, "THE OFFICE")
	require.NoError(t, err)

	result, err := org.Organize(ctx, tf.Hash, "THE OFFICE")
	require.NoError(t, err)
	assert.Equal(t, model.StatusMoved, result.TrackedFile.Status)
	assert.NotEmpty(t, result.RollbackID)

	_, statErr := mem.Stat(result.Receipt.TargetPath)
	assert.NoError(t, statErr)
	_, srcErr := mem.Stat("/inbox/show.mkv")
	assert.Error(t, srcErr)
}

func TestOrganizeInsufficientSpaceRecordsErrorAndReturnsSpaceKind(t *testing.T) {
	org, svc, s, mem := newHarness(t)
	ctx := context.Background()

	mem.WriteFile("/inbox/big.mkv", make([]byte, 1000))
	mem.SetFreeSpace(500) // below 1.1x required

	tf, err := svc.Register(ctx, "/inbox/big.mkv", "big.mkv", 1000)
	require.NoError(t, err)
	_, err = svc.UpdateClassification(ctx, tf.Hash, "MOVIES", 0.9)
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, tf.Hash, "MOVIES")
	require.NoError(t, err)

	_, err = org.Organize(ctx, tf.Hash, "MOVIES")
	require.Error(t, err)
	assert.True(t, mberrors.Is(err, mberrors.Space))

	row, ok, err := s.GetByHash(ctx, tf.Hash, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.StatusRetry, row.Status)
	assert.Equal(t, 1, row.RetryCount)
}

func TestOrganizeConfirmsClassifiedFileBeforeMoving(t *testing.T) {
	org, svc, _, mem := newHarness(t)
	ctx := context.Background()

	mem.WriteFile("/inbox/show.mkv", []byte("content-bytes"))
	tf, err := svc.Register(ctx, "/inbox/show.mkv", "show.mkv", 13)
	require.NoError(t, err)
	tf, err = svc.UpdateClassification(ctx, tf.Hash, "THE OFFICE", 0.9)
	require.NoError(t, err)
	require.Equal(t, model.StatusClassified, tf.Status)

	// Note: no Confirm call here — a batch item (spec §4.12) may reach
	// Organize while still CLASSIFIED, having never been explicitly confirmed.
	result, err := org.Organize(ctx, tf.Hash, "THE OFFICE")
	require.NoError(t, err)
	assert.Equal(t, model.StatusMoved, result.TrackedFile.Status)
}

func TestPreviewDoesNotMutateState(t *testing.T) {
	org, svc, s, mem := newHarness(t)
	ctx := context.Background()

	mem.WriteFile("/inbox/show.mkv", []byte("content-bytes"))
	tf, err := svc.Register(ctx, "/inbox/show.mkv", "show.mkv", 13)
	require.NoError(t, err)
	_, err = svc.UpdateClassification(ctx, tf.Hash, "THE OFFICE", 0.9)
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, tf.Hash, "THE OFFICE")
	require.NoError(t, err)

	preview, err := org.Preview(ctx, tf.Hash, "THE OFFICE")
	require.NoError(t, err)
	assert.True(t, preview.IsSafe)
	assert.NotEmpty(t, preview.TargetPath)

	unchanged, ok, err := s.GetByHash(ctx, tf.Hash, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.StatusReadyToMove, unchanged.Status)
}
