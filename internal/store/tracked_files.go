package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/chim331u/mediabutler/internal/mberrors"
	"github.com/chim331u/mediabutler/internal/model"
)

const trackedFileColumns = `
	hash, original_path, file_name, file_size, status,
	suggested_category, confidence, classified_at,
	category, target_path, moved_to_path, moved_at,
	retry_count, last_error, last_error_at,
	created_at, updated_at, note, active
`

// GetByHash returns the row for hash. Inactive rows are excluded unless
// includeInactive is true (spec §4.7's default active-filter + explicit
// include_inactive path).
func (s *Store) GetByHash(ctx context.Context, hash string, includeInactive bool) (model.TrackedFile, bool, error) {
	query := "SELECT " + trackedFileColumns + " FROM tracked_files WHERE hash = ?"
	if !includeInactive {
		query += " AND active = 1"
	}
	row := s.db.QueryRowContext(ctx, query, hash)
	tf, err := scanTrackedFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TrackedFile{}, false, nil
	}
	if err != nil {
		return model.TrackedFile{}, false, mberrors.New(mberrors.Transient, "store.get_by_hash", "query failed", err)
	}
	return tf, true, nil
}

// InsertTrackedFile inserts a new row, stamping created_at/updated_at per
// spec §4.7's rule. Returns mberrors.Conflict if hash already exists.
func (s *Store) InsertTrackedFile(ctx context.Context, tf model.TrackedFile) error {
	return s.withUnitOfWork(ctx, func(tx *sql.Tx) ([]DomainEvent, error) {
		now := s.clock.NowUTC()
		created, updated := stampInsert(now, tf.CreatedAt, tf.UpdatedAt)

		_, err := tx.ExecContext(ctx, `
			INSERT INTO tracked_files (`+trackedFileColumns+`)
			VALUES (?,?,?,?,?, ?,?,?, ?,?,?,?, ?,?,?, ?,?,?,?)
		`,
			tf.Hash, tf.OriginalPath, tf.FileName, tf.FileSize, string(tf.Status),
			nullableString(tf.SuggestedCategory), nullableFloat(tf.Confidence), nullableTimeToStr(tf.ClassifiedAt),
			nullableString(tf.Category), nullableString(tf.TargetPath), nullableString(tf.MovedToPath), nullableTimeToStr(tf.MovedAt),
			tf.RetryCount, nullableString(tf.LastError), nullableTimeToStr(tf.LastErrorAt),
			timeToStr(created), timeToStr(updated), nullableString(tf.Note), boolToInt(tf.Active),
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return nil, mberrors.New(mberrors.Conflict, "store.insert_tracked_file", "a row already exists for this hash", err)
			}
			return nil, mberrors.New(mberrors.Transient, "store.insert_tracked_file", "insert failed", err)
		}
		return []DomainEvent{{Type: "tracked_file.created", FileHash: tf.Hash, OccurredAt: now}}, nil
	})
}

// UpdateTrackedFile replaces the mutable fields of an existing row.
// created_at is read-only: the UPDATE never writes it, so the stored value is
// kept regardless of what tf.CreatedAt holds (spec §4.7).
func (s *Store) UpdateTrackedFile(ctx context.Context, tf model.TrackedFile) error {
	return s.withUnitOfWork(ctx, func(tx *sql.Tx) ([]DomainEvent, error) {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM tracked_files WHERE hash = ?", tf.Hash).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, mberrors.New(mberrors.NotFound, "store.update_tracked_file", "no row for hash", nil)
		}
		if err != nil {
			return nil, mberrors.New(mberrors.Transient, "store.update_tracked_file", "read failed", err)
		}

		now := s.clock.NowUTC()
		result, err := tx.ExecContext(ctx, `
			UPDATE tracked_files SET
				original_path = ?, file_name = ?, file_size = ?, status = ?,
				suggested_category = ?, confidence = ?, classified_at = ?,
				category = ?, target_path = ?, moved_to_path = ?, moved_at = ?,
				retry_count = ?, last_error = ?, last_error_at = ?,
				updated_at = ?, note = ?, active = ?
			WHERE hash = ?
		`,
			tf.OriginalPath, tf.FileName, tf.FileSize, string(tf.Status),
			nullableString(tf.SuggestedCategory), nullableFloat(tf.Confidence), nullableTimeToStr(tf.ClassifiedAt),
			nullableString(tf.Category), nullableString(tf.TargetPath), nullableString(tf.MovedToPath), nullableTimeToStr(tf.MovedAt),
			tf.RetryCount, nullableString(tf.LastError), nullableTimeToStr(tf.LastErrorAt),
			timeToStr(now), nullableString(tf.Note), boolToInt(tf.Active),
			tf.Hash,
		)
		if err != nil {
			return nil, mberrors.New(mberrors.Transient, "store.update_tracked_file", "update failed", err)
		}
		n, _ := result.RowsAffected()
		if n == 0 {
			return nil, mberrors.New(mberrors.NotFound, "store.update_tracked_file", "no row affected", nil)
		}
		return []DomainEvent{{Type: "tracked_file.updated", FileHash: tf.Hash, OccurredAt: now, Payload: map[string]any{"status": string(tf.Status)}}}, nil
	})
}

// ListByStatus returns rows whose status is in statuses.
func (s *Store) ListByStatus(ctx context.Context, statuses []model.Status, includeInactive bool) ([]model.TrackedFile, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	query := "SELECT " + trackedFileColumns + " FROM tracked_files WHERE status IN (" + placeholders + ")"
	if !includeInactive {
		query += " AND active = 1"
	}
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	return s.queryTrackedFiles(ctx, query, args...)
}

// PagedList returns a page of rows optionally filtered by category, plus the
// total matching row count (spec §4.7).
func (s *Store) PagedList(ctx context.Context, category string, offset, limit int, includeInactive bool) ([]model.TrackedFile, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	if !includeInactive {
		where += " AND active = 1"
	}
	if category != "" {
		where += " AND category = ?"
		args = append(args, category)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tracked_files "+where, args...).Scan(&total); err != nil {
		return nil, 0, mberrors.New(mberrors.Transient, "store.paged_list", "count failed", err)
	}

	query := "SELECT " + trackedFileColumns + " FROM tracked_files " + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)
	rows, err := s.queryTrackedFiles(ctx, query, args...)
	return rows, total, err
}

// Search matches file_name against a SQL LIKE pattern (caller-supplied %, _).
func (s *Store) Search(ctx context.Context, pattern string, includeInactive bool) ([]model.TrackedFile, error) {
	query := "SELECT " + trackedFileColumns + " FROM tracked_files WHERE file_name LIKE ?"
	if !includeInactive {
		query += " AND active = 1"
	}
	return s.queryTrackedFiles(ctx, query, pattern)
}

// DistinctCategories returns every non-empty confirmed category in use.
func (s *Store) DistinctCategories(ctx context.Context, includeInactive bool) ([]string, error) {
	query := "SELECT DISTINCT category FROM tracked_files WHERE category IS NOT NULL AND category != ''"
	if !includeInactive {
		query += " AND active = 1"
	}
	query += " ORDER BY category"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mberrors.New(mberrors.Transient, "store.distinct_categories", "query failed", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) queryTrackedFiles(ctx context.Context, query string, args ...any) ([]model.TrackedFile, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mberrors.New(mberrors.Transient, "store.query", "query failed", err)
	}
	defer rows.Close()

	var out []model.TrackedFile
	for rows.Next() {
		tf, err := scanTrackedFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracked_file: %w", err)
		}
		out = append(out, tf)
	}
	return out, rows.Err()
}

func scanTrackedFile(scanner interface{ Scan(dest ...any) error }) (model.TrackedFile, error) {
	var tf model.TrackedFile
	var suggestedCategory, category, targetPath, movedToPath, lastError, note sql.NullString
	var classifiedAt, movedAt, lastErrorAt sql.NullString
	var confidence sql.NullFloat64
	var createdAt, updatedAt string
	var active int

	err := scanner.Scan(
		&tf.Hash, &tf.OriginalPath, &tf.FileName, &tf.FileSize, &tf.Status,
		&suggestedCategory, &confidence, &classifiedAt,
		&category, &targetPath, &movedToPath, &movedAt,
		&tf.RetryCount, &lastError, &lastErrorAt,
		&createdAt, &updatedAt, &note, &active,
	)
	if err != nil {
		return model.TrackedFile{}, err
	}

	tf.SuggestedCategory = suggestedCategory.String
	tf.Confidence = confidence.Float64
	tf.ClassifiedAt = strToNullableTime(classifiedAt)
	tf.Category = category.String
	tf.TargetPath = targetPath.String
	tf.MovedToPath = movedToPath.String
	tf.MovedAt = strToNullableTime(movedAt)
	tf.LastError = lastError.String
	tf.LastErrorAt = strToNullableTime(lastErrorAt)
	tf.CreatedAt = strToTime(createdAt)
	tf.UpdatedAt = strToTime(updatedAt)
	tf.Note = note.String
	tf.Active = active != 0

	return tf, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableFloat(f float64) sql.NullFloat64 {
	if f == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
