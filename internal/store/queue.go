package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Operation is one pending write recorded while offline.
//
// ID is the durable FIFO position (AUTOINCREMENT rowid). OpID is a
// generated correlation identifier that survives export/import of the
// queue. Payload is the opaque record data, possibly carrying deferred
// image staging fields that the drain resolves before replay.
type Operation struct {
	ID         int64
	OpID       string
	UserID     string
	Action     string
	TempID     string
	OriginalID string
	TableName  string
	Payload    json.RawMessage
	CreatedAt  time.Time
}

// AddOperation appends an operation to the queue and returns its
// assigned FIFO id. If OpID is empty a new one is generated.
func (s *Store) AddOperation(ctx context.Context, op Operation) (int64, error) {
	if op.OpID == "" {
		op.OpID = uuid.NewString()
	}
	payload := "{}"
	if len(op.Payload) > 0 {
		payload = string(op.Payload)
	}
	createdAt := op.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO queue
		(op_id, user_id, action, temp_id, original_id, table_name, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		op.OpID,
		op.UserID,
		op.Action,
		op.TempID,
		op.OriginalID,
		op.TableName,
		payload,
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, unavailable("add operation", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, unavailable("add operation: last insert id", err)
	}
	return id, nil
}

// ListOperations returns all pending operations for a user in enqueue
// order. Returns an empty slice (not nil) if the queue is empty.
func (s *Store) ListOperations(ctx context.Context, userID string) ([]Operation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, op_id, user_id, action, temp_id, original_id, table_name, payload, created_at
		FROM queue
		WHERE user_id = ?
		ORDER BY id ASC
	`, userID)
	if err != nil {
		return nil, unavailable("list operations", err)
	}
	defer rows.Close()

	ops := []Operation{}
	for rows.Next() {
		var (
			op        Operation
			payload   string
			createdAt string
		)
		if err := rows.Scan(&op.ID, &op.OpID, &op.UserID, &op.Action, &op.TempID,
			&op.OriginalID, &op.TableName, &payload, &createdAt); err != nil {
			return nil, unavailable("scan operation", err)
		}
		op.Payload = json.RawMessage(payload)
		op.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, unavailable("scan operation", fmt.Errorf("parse created_at: %w", err))
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate operations", err)
	}

	return ops, nil
}

// RemoveOperation deletes a replayed operation by its FIFO id.
// Removing an id that no longer exists is a no-op.
func (s *Store) RemoveOperation(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM queue WHERE id = ?`, id)
	if err != nil {
		return unavailable("remove operation", err)
	}
	return nil
}

// QueueCount returns the number of pending operations for a user.
func (s *Store) QueueCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM queue WHERE user_id = ?
	`, userID).Scan(&count)
	if err != nil {
		return 0, unavailable("queue count", err)
	}
	return count, nil
}
