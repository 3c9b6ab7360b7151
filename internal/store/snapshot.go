package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// SaveSnapshot stores the serialized collection for a cache key,
// replacing any previous snapshot for the same key.
//
// The data must be valid JSON - it is returned verbatim by GetSnapshot
// and served directly to callers on fallback.
func (s *Store) SaveSnapshot(ctx context.Context, key string, data json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (key, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`,
		key,
		string(data),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return unavailable("save snapshot", err)
	}
	return nil
}

// GetSnapshot returns the last stored snapshot for a key, or nil if no
// snapshot exists. The caller cannot distinguish "never fetched" from
// "fetched an empty collection" - both are valid fallback states.
func (s *Store) GetSnapshot(ctx context.Context, key string) (json.RawMessage, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM snapshots WHERE key = ?
	`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get snapshot", err)
	}
	return json.RawMessage(data), nil
}
