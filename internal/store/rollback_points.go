package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/chim331u/mediabutler/internal/mberrors"
	"github.com/chim331u/mediabutler/internal/model"
	"github.com/chim331u/mediabutler/internal/rollback"
)

var _ rollback.Repository = (*Store)(nil)

// Insert satisfies rollback.Repository.
func (s *Store) Insert(ctx context.Context, rp model.RollbackPoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rollback_points (id, file_hash, operation_type, original_path, target_path, info, created_at, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
	`, rp.ID, rp.FileHash, rp.OperationType, rp.OriginalPath, rp.TargetPath, rp.Info, timeToStr(rp.CreatedAt))
	if err != nil {
		return mberrors.New(mberrors.Transient, "store.insert_rollback_point", "insert failed", err)
	}
	return nil
}

// Get satisfies rollback.Repository.
func (s *Store) Get(ctx context.Context, id string) (model.RollbackPoint, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_hash, operation_type, original_path, target_path, info, created_at, active
		FROM rollback_points WHERE id = ?
	`, id)
	rp, err := scanRollbackPoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RollbackPoint{}, false, nil
	}
	if err != nil {
		return model.RollbackPoint{}, false, mberrors.New(mberrors.Transient, "store.get_rollback_point", "query failed", err)
	}
	return rp, true, nil
}

// NewestActiveByHash satisfies rollback.Repository.
func (s *Store) NewestActiveByHash(ctx context.Context, fileHash string) (model.RollbackPoint, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_hash, operation_type, original_path, target_path, info, created_at, active
		FROM rollback_points WHERE file_hash = ? AND active = 1
		ORDER BY created_at DESC LIMIT 1
	`, fileHash)
	rp, err := scanRollbackPoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RollbackPoint{}, false, nil
	}
	if err != nil {
		return model.RollbackPoint{}, false, mberrors.New(mberrors.Transient, "store.newest_active_rollback_point", "query failed", err)
	}
	return rp, true, nil
}

// SoftDelete satisfies rollback.Repository.
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE rollback_points SET active = 0 WHERE id = ?", id)
	if err != nil {
		return mberrors.New(mberrors.Transient, "store.soft_delete_rollback_point", "update failed", err)
	}
	return nil
}

// ActiveOlderThan satisfies rollback.Repository.
func (s *Store) ActiveOlderThan(ctx context.Context, cutoff time.Time) ([]model.RollbackPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_hash, operation_type, original_path, target_path, info, created_at, active
		FROM rollback_points WHERE active = 1 AND created_at < ?
	`, timeToStr(cutoff))
	if err != nil {
		return nil, mberrors.New(mberrors.Transient, "store.active_older_than", "query failed", err)
	}
	defer rows.Close()

	var out []model.RollbackPoint
	for rows.Next() {
		rp, err := scanRollbackPoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rp)
	}
	return out, rows.Err()
}

func scanRollbackPoint(scanner interface{ Scan(dest ...any) error }) (model.RollbackPoint, error) {
	var rp model.RollbackPoint
	var info sql.NullString
	var createdAt string
	var active int
	err := scanner.Scan(&rp.ID, &rp.FileHash, &rp.OperationType, &rp.OriginalPath, &rp.TargetPath, &info, &createdAt, &active)
	if err != nil {
		return model.RollbackPoint{}, err
	}
	rp.Info = info.String
	rp.CreatedAt = strToTime(createdAt)
	rp.Active = active != 0
	return rp, nil
}
