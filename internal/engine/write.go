package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukkanhq/dukkan/internal/remote"
	"github.com/dukkanhq/dukkan/internal/store"
)

// Write upserts a record, degrading to the durable queue when offline.
//
// Decision table:
//   - offline and queueing allowed: enqueue, return the optimistic echo.
//   - otherwise: attempt the remote upsert.
//   - remote cancelled: propagate unchanged (cancellation is not a
//     failure to recover from - nothing is enqueued).
//   - remote failed with a network-class error and queueing allowed:
//     enqueue as fallback, return the optimistic echo.
//   - any other remote error: propagate unchanged.
//
// skipQueue is set by queue replay so a repeat failure cannot enqueue a
// duplicate of an operation that is still in the queue.
func (e *Engine) Write(ctx context.Context, table string, payload Payload, action Action, skipQueue bool) (json.RawMessage, error) {
	uid := e.identity.UserID()
	if uid == "" {
		return nil, ErrUnauthenticated
	}

	if !e.conn.Online() && !skipQueue {
		return e.queueOffline(ctx, uid, action, "", payload)
	}

	cleaned := sanitize(payload)
	cleaned["user_id"] = uid
	record, err := encodePayload(cleaned)
	if err != nil {
		return nil, err
	}

	stored, err := e.remote.Upsert(ctx, table, record, "id")
	if err != nil {
		if remote.IsCancelled(err) {
			slog.Warn("upsert cancelled", "table", table, "action", action)
			return nil, err
		}
		if remote.IsTransient(err) && !skipQueue {
			slog.Info("upsert failed over network, queueing offline", "table", table, "action", action)
			return e.queueOffline(ctx, uid, action, "", payload)
		}
		slog.Error("upsert failed", "table", table, "action", action, "error", err)
		return nil, err
	}

	if key, ok := cacheKeys[table]; ok {
		e.cache.Invalidate(key)
	}
	return stored, nil
}

// UpdateSettings upserts the per-user settings document, keyed by
// user_id rather than record id.
func (e *Engine) UpdateSettings(ctx context.Context, settings Payload, skipQueue bool) (json.RawMessage, error) {
	uid := e.identity.UserID()
	if uid == "" {
		return nil, ErrUnauthenticated
	}

	if !e.conn.Online() && !skipQueue {
		return e.queueOffline(ctx, uid, ActionUpdateSettings, "", settings)
	}

	record, err := encodePayload(Payload{
		"user_id":             uid,
		"accounting_settings": sanitize(settings),
	})
	if err != nil {
		return nil, err
	}

	stored, err := e.remote.Upsert(ctx, "user_settings", record, "user_id")
	if err != nil {
		if remote.IsCancelled(err) {
			return nil, err
		}
		if remote.IsTransient(err) && !skipQueue {
			return e.queueOffline(ctx, uid, ActionUpdateSettings, "", settings)
		}
		return nil, err
	}
	return stored, nil
}

// MarkAllNotificationsRead flags every unread notification for the
// session user as read, degrading to the durable queue when offline.
func (e *Engine) MarkAllNotificationsRead(ctx context.Context, skipQueue bool) error {
	uid := e.identity.UserID()
	if uid == "" {
		return ErrUnauthenticated
	}

	if !e.conn.Online() && !skipQueue {
		op := store.Operation{
			UserID: uid,
			Action: string(ActionMarkAllRead),
		}
		op.Payload = json.RawMessage(`{}`)
		if _, err := e.store.AddOperation(ctx, op); err != nil {
			return err
		}
		e.notifyQueueCount(ctx)
		return nil
	}

	patch := json.RawMessage(`{"read":true}`)
	filters := map[string]string{"user_id": uid, "read": "false"}
	if err := e.remote.Update(ctx, "notifications", filters, patch); err != nil {
		if remote.IsCancelled(err) {
			slog.Warn("mark notifications read cancelled")
			return err
		}
		if remote.IsTransient(err) && !skipQueue {
			slog.Info("mark notifications read failed over network, queueing offline")
			op := store.Operation{
				UserID: uid,
				Action: string(ActionMarkAllRead),
			}
			op.Payload = json.RawMessage(`{}`)
			if _, qerr := e.store.AddOperation(ctx, op); qerr != nil {
				return qerr
			}
			e.notifyQueueCount(ctx)
			return nil
		}
		return err
	}

	e.cache.Invalidate(cacheKeys["notifications"])
	return nil
}

// LogActivity appends an audit entry to the activity log. Best effort:
// a failed audit insert is logged and swallowed so it never fails the
// operation that produced it; only cancellation propagates.
func (e *Engine) LogActivity(ctx context.Context, action, details, logType string) error {
	uid := e.identity.UserID()
	if uid == "" {
		return ErrUnauthenticated
	}

	record, err := encodePayload(Payload{
		"user_id":   uid,
		"action":    action,
		"details":   details,
		"type":      logType,
		"timestamp": e.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	if err := e.remote.Insert(ctx, "activity_log", record); err != nil {
		if remote.IsCancelled(err) {
			slog.Warn("activity log insert cancelled", "action", action)
			return err
		}
		slog.Error("activity log insert failed", "action", action, "error", err)
		return nil
	}

	e.cache.Invalidate(cacheKeys["activity_log"])
	return nil
}

// Delete removes a record, degrading to the durable queue when offline.
// When the record carries an invoice image, the image is deleted first;
// image-store failures other than cancellation are logged, not fatal -
// an orphaned image must not block the record deletion.
func (e *Engine) Delete(ctx context.Context, table, id, imageURL, recordType string, skipQueue bool) error {
	uid := e.identity.UserID()
	if uid == "" {
		return ErrUnauthenticated
	}

	if !e.conn.Online() && !skipQueue {
		payload := Payload{"id": id}
		if imageURL != "" {
			payload["image_url"] = imageURL
		}
		if recordType != "" {
			payload["record_type_for_image"] = recordType
		}
		op := store.Operation{
			UserID:     uid,
			Action:     string(ActionDeleteRecord),
			OriginalID: id,
			TableName:  table,
		}
		op.Payload, _ = encodePayload(payload)
		if _, err := e.store.AddOperation(ctx, op); err != nil {
			return err
		}
		e.notifyQueueCount(ctx)
		return nil
	}

	if imageURL != "" && e.assets != nil {
		if err := e.assets.Delete(ctx, imageURL); err != nil {
			if remote.IsCancelled(err) {
				return err
			}
			slog.Warn("invoice image delete failed", "table", table, "id", id, "error", err)
		}
	}

	err := e.remote.Delete(ctx, table, map[string]string{"id": id, "user_id": uid})
	if err != nil {
		if remote.IsCancelled(err) {
			return err
		}
		if remote.IsTransient(err) && !skipQueue {
			slog.Info("delete failed over network, queueing offline", "table", table, "id", id)
			payload := Payload{"id": id}
			if imageURL != "" {
				payload["image_url"] = imageURL
			}
			if recordType != "" {
				payload["record_type_for_image"] = recordType
			}
			op := store.Operation{
				UserID:     uid,
				Action:     string(ActionDeleteRecord),
				OriginalID: id,
				TableName:  table,
			}
			op.Payload, _ = encodePayload(payload)
			if _, qerr := e.store.AddOperation(ctx, op); qerr != nil {
				return qerr
			}
			e.notifyQueueCount(ctx)
			return nil
		}
		return err
	}

	if key, ok := cacheKeys[table]; ok {
		e.cache.Invalidate(key)
	}
	return nil
}

// ReturnSale replays a sale into returned state via the remote stored
// procedure. Offline, the return is queued like any other write.
func (e *Engine) ReturnSale(ctx context.Context, id string, skipQueue bool) error {
	return e.returnRecord(ctx, ActionReturnSale, "return_sale", "sale_uuid", id, skipQueue)
}

// ReturnPurchase is the purchase counterpart of ReturnSale.
func (e *Engine) ReturnPurchase(ctx context.Context, id string, skipQueue bool) error {
	return e.returnRecord(ctx, ActionReturnPurchase, "return_purchase", "purchase_uuid", id, skipQueue)
}

func (e *Engine) returnRecord(ctx context.Context, action Action, fn, idArg, id string, skipQueue bool) error {
	uid := e.identity.UserID()
	if uid == "" {
		return ErrUnauthenticated
	}

	if !e.conn.Online() && !skipQueue {
		op := store.Operation{
			UserID:     uid,
			Action:     string(action),
			OriginalID: id,
		}
		op.Payload, _ = encodePayload(Payload{"id": id})
		if _, err := e.store.AddOperation(ctx, op); err != nil {
			return err
		}
		e.notifyQueueCount(ctx)
		return nil
	}

	if err := e.remote.RPC(ctx, fn, map[string]any{idArg: id, "user_uuid": uid}); err != nil {
		return err
	}
	return nil
}

// queueOffline durably enqueues a write and synthesizes the optimistic
// echo: the payload with a generated temp id, a local creation
// timestamp, and the unsynced marker.
func (e *Engine) queueOffline(ctx context.Context, uid string, action Action, table string, payload Payload) (json.RawMessage, error) {
	tempID, _ := payload["id"].(string)
	if tempID == "" {
		tempID = uuid.NewString()
	}

	queued := make(Payload, len(payload)+2)
	for k, v := range payload {
		queued[k] = v
	}
	queued["id"] = tempID
	queued["user_id"] = uid

	op := store.Operation{
		UserID:    uid,
		Action:    string(action),
		TempID:    tempID,
		TableName: table,
	}
	var err error
	if op.Payload, err = encodePayload(queued); err != nil {
		return nil, err
	}

	if _, err := e.store.AddOperation(ctx, op); err != nil {
		// No remote and no queue: the write would be lost silently.
		return nil, err
	}
	e.notifyQueueCount(ctx)

	echo := make(Payload, len(payload)+3)
	for k, v := range payload {
		echo[k] = v
	}
	echo["id"] = tempID
	echo["created_at"] = e.now().UTC().Format(time.RFC3339)
	echo["_offline"] = true
	return encodePayload(echo)
}
