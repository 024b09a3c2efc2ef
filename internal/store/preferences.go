package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/chim331u/mediabutler/internal/mberrors"
)

// GetPreference returns the raw value and type tag for key, if present and
// active (spec §3's UserPreference, out of scope for core behavior but
// persisted alongside it).
func (s *Store) GetPreference(ctx context.Context, key string) (value, valueType string, found bool, err error) {
	row := s.db.QueryRowContext(ctx, "SELECT value, value_type FROM user_preferences WHERE key = ? AND active = 1", key)
	err = row.Scan(&value, &valueType)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, mberrors.New(mberrors.Transient, "store.get_preference", "query failed", err)
	}
	return value, valueType, true, nil
}

// SetPreference upserts key's value/type, stamping audit fields.
func (s *Store) SetPreference(ctx context.Context, key, value, valueType string) error {
	now := s.clock.NowUTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (key, value, value_type, created_at, updated_at, active)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			value_type = excluded.value_type,
			updated_at = excluded.updated_at,
			active = 1
	`, key, value, valueType, timeToStr(now), timeToStr(now))
	if err != nil {
		return mberrors.New(mberrors.Transient, "store.set_preference", "upsert failed", err)
	}
	return nil
}
