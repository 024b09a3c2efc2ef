package store

import (
	"context"
	"database/sql"

	"github.com/chim331u/mediabutler/internal/mberrors"
	"github.com/chim331u/mediabutler/internal/model"
)

// AppendLog appends an immutable ProcessingLog row (spec §4.7; never
// mutated, never soft-deleted).
func (s *Store) AppendLog(ctx context.Context, log model.ProcessingLog) error {
	now := s.clock.NowUTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_logs (file_hash, level, category, message, details_json, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, log.FileHash, string(log.Level), log.Category, log.Message, log.DetailsJSON, log.DurationMS, timeToStr(now))
	if err != nil {
		return mberrors.New(mberrors.Transient, "store.append_log", "insert failed", err)
	}
	return nil
}

// QueryLogs returns logs for fileHash, optionally filtered by a category
// substring (spec §4.7).
func (s *Store) QueryLogs(ctx context.Context, fileHash, categorySubstring string) ([]model.ProcessingLog, error) {
	query := "SELECT id, file_hash, level, category, message, details_json, duration_ms, created_at FROM processing_logs WHERE file_hash = ?"
	args := []any{fileHash}
	if categorySubstring != "" {
		query += " AND category LIKE ?"
		args = append(args, "%"+categorySubstring+"%")
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mberrors.New(mberrors.Transient, "store.query_logs", "query failed", err)
	}
	defer rows.Close()

	var out []model.ProcessingLog
	for rows.Next() {
		var l model.ProcessingLog
		var createdAt string
		var details sql.NullString
		if err := rows.Scan(&l.ID, &l.FileHash, &l.Level, &l.Category, &l.Message, &details, &l.DurationMS, &createdAt); err != nil {
			return nil, err
		}
		l.DetailsJSON = details.String
		l.CreatedAt = strToTime(createdAt)
		out = append(out, l)
	}
	return out, rows.Err()
}
