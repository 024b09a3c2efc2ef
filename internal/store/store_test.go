package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chim331u/mediabutler/internal/clock"
	"github.com/chim331u/mediabutler/internal/mberrors"
	"github.com/chim331u/mediabutler/internal/model"
	"github.com/chim331u/mediabutler/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "mediabutler.db")
	s, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPragmasAppliedOnOpen(t *testing.T) {
	s := openTestStore(t)

	var mode string
	require.NoError(t, s.DB().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, s.DB().QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func newTrackedFile(hash string) model.TrackedFile {
	return model.TrackedFile{
		Hash:         hash,
		OriginalPath: "/inbox/" + hash + ".mkv",
		FileName:     hash + ".mkv",
		FileSize:     1024,
		Status:       model.StatusNew,
		Audit:        model.Audit{Active: true},
	}
}

func TestInsertThenGetByHashRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tf := newTrackedFile("aaaa")
	require.NoError(t, s.InsertTrackedFile(ctx, tf))

	got, ok, err := s.GetByHash(ctx, "aaaa", false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.StatusNew, got.Status)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
}

func TestInsertDuplicateHashReturnsConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tf := newTrackedFile("bbbb")
	require.NoError(t, s.InsertTrackedFile(ctx, tf))

	err := s.InsertTrackedFile(ctx, tf)
	require.Error(t, err)
	assert.True(t, mberrors.Is(err, mberrors.Conflict))
}

func TestUpdatePreservesCreatedAt(t *testing.T) {
	fixed := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s, err := store.Open(filepath.Join(t.TempDir(), "db.sqlite"), store.WithClock(fixed))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	tf := newTrackedFile("cccc")
	require.NoError(t, s.InsertTrackedFile(ctx, tf))

	fixed.Advance(time.Hour)
	updated, _, err := s.GetByHash(ctx, "cccc", false)
	require.NoError(t, err)
	updated.Status = model.StatusProcessing
	require.NoError(t, s.UpdateTrackedFile(ctx, updated))

	final, ok, err := s.GetByHash(ctx, "cccc", false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.StatusProcessing, final.Status)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), final.CreatedAt.UTC())
	assert.Equal(t, time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC), final.UpdatedAt.UTC())
}

func TestListByStatusFiltersCorrectly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	new1 := newTrackedFile("dddd")
	errored := newTrackedFile("eeee")
	errored.Status = model.StatusError
	require.NoError(t, s.InsertTrackedFile(ctx, new1))
	require.NoError(t, s.InsertTrackedFile(ctx, errored))

	rows, err := s.ListByStatus(ctx, []model.Status{model.StatusError}, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "eeee", rows[0].Hash)
}

func TestSearchUsesLikeWildcards(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tf := newTrackedFile("ffff")
	tf.FileName = "The.Walking.Dead.S11E24.mkv"
	require.NoError(t, s.InsertTrackedFile(ctx, tf))

	rows, err := s.Search(ctx, "%Walking%", false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestDistinctCategoriesExcludesEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tf1 := newTrackedFile("gggg")
	tf1.Category = "THE WALKING DEAD"
	tf2 := newTrackedFile("hhhh")
	tf2.Category = "FRIENDS"
	tf3 := newTrackedFile("iiii")
	require.NoError(t, s.InsertTrackedFile(ctx, tf1))
	require.NoError(t, s.InsertTrackedFile(ctx, tf2))
	require.NoError(t, s.InsertTrackedFile(ctx, tf3))

	cats, err := s.DistinctCategories(ctx, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"FRIENDS", "THE WALKING DEAD"}, cats)
}

func TestAppendLogThenQueryByCategorySubstring(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendLog(ctx, model.ProcessingLog{
		FileHash: "jjjj", Level: model.LogInfo, Category: "FILE_ORGANIZATION", Message: "moved",
	}))
	require.NoError(t, s.AppendLog(ctx, model.ProcessingLog{
		FileHash: "jjjj", Level: model.LogError, Category: "CLASSIFIER", Message: "timed out",
	}))

	logs, err := s.QueryLogs(ctx, "jjjj", "ORGANIZ")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "moved", logs[0].Message)
}

func TestPagedListReturnsTotalAndRespectsCategoryFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tf := newTrackedFile(string(rune('l' + i)))
		tf.Category = "FRIENDS"
		require.NoError(t, s.InsertTrackedFile(ctx, tf))
	}
	other := newTrackedFile("other")
	other.Category = "THE OFFICE"
	require.NoError(t, s.InsertTrackedFile(ctx, other))

	rows, total, err := s.PagedList(ctx, "FRIENDS", 0, 2, false)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, rows, 2)
}

func TestRollbackPointRepositoryRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rp := model.RollbackPoint{ID: "rp-1", FileHash: "kkkk", OperationType: "MOVE", OriginalPath: "/a", TargetPath: "/b", CreatedAt: time.Now().UTC(), Active: true}
	require.NoError(t, s.Insert(ctx, rp))

	got, ok, err := s.Get(ctx, "rp-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "kkkk", got.FileHash)

	require.NoError(t, s.SoftDelete(ctx, "rp-1"))
	_, ok, err = s.NewestActiveByHash(ctx, "kkkk")
	require.NoError(t, err)
	assert.False(t, ok)
}
