package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukkanhq/dukkan/internal/remote"
	"github.com/dukkanhq/dukkan/internal/store"
)

// ProcessQueue drains the pending-operation queue for the session user.
//
// The pass works on a snapshot of the queue taken at the start -
// operations enqueued during the pass wait for the next one. Order is
// strictly FIFO. Per operation:
//
//   - cancellation stops the pass, leaving the remainder queued
//   - a payload that fails schema validation is logged and kept (it
//     will be re-examined next pass; it is never silently dropped)
//   - staged invoice-image bytes are uploaded first and replaced by the
//     resulting asset URL
//   - the operation's action is replayed with skipQueue=true
//   - success removes the operation durably; any non-cancellation
//     failure is logged and the pass continues with the next operation
//
// A pass while offline or signed out is a no-op.
func (e *Engine) ProcessQueue(ctx context.Context) error {
	uid := e.identity.UserID()
	if uid == "" {
		return nil
	}
	if !e.conn.Online() {
		return nil
	}

	ops, err := e.store.ListOperations(ctx, uid)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	slog.Info("syncing queued operations", "count", len(ops))

	for _, op := range ops {
		if ctx.Err() != nil {
			slog.Warn("sync pass stopped by cancellation", "remaining_from", op.ID)
			break
		}

		if err := e.replayOperation(ctx, uid, op); err != nil {
			if remote.IsCancelled(err) {
				slog.Warn("sync operation cancelled, stopping pass", "action", op.Action, "id", op.ID)
				break
			}
			slog.Error("sync operation failed", "action", op.Action, "id", op.ID, "error", err)
			continue
		}

		if err := e.removeSynced(op.ID); err != nil {
			slog.Error("failed to remove synced operation", "id", op.ID, "error", err)
			continue
		}
		e.notifyQueueCount(context.Background())
	}

	e.notifyQueueCount(context.Background())
	return nil
}

// removeSynced commits a replayed operation's removal. Runs on a
// detached context: once the remote store confirmed the write, the
// removal must happen even if the pass was cancelled mid-flight,
// otherwise the next pass would replay a confirmed operation.
func (e *Engine) removeSynced(id int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.store.RemoveOperation(ctx, id)
}

// replayOperation re-attempts one queued operation against the remote
// store, resolving deferred uploads first.
func (e *Engine) replayOperation(ctx context.Context, uid string, op store.Operation) error {
	action, err := ParseAction(op.Action)
	if err != nil {
		return err
	}

	payload, err := decodePayload(op.Payload)
	if err != nil {
		return err
	}

	if err := e.validator.validate(action, op.Payload); err != nil {
		return fmt.Errorf("payload rejected by schema: %w", err)
	}

	if img, err := stagedImageFrom(payload); err != nil {
		return err
	} else if img != nil {
		url, err := e.uploadStagedImage(ctx, uid, op, img)
		if err != nil {
			return err
		}
		payload["image_url"] = url
		dropStagedImage(payload)
	}

	return e.dispatch(ctx, action, op, payload)
}

// uploadStagedImage sends deferred image bytes to the asset store,
// keyed by the operation's temp or original id.
func (e *Engine) uploadStagedImage(ctx context.Context, uid string, op store.Operation, img *stagedImage) (string, error) {
	if e.assets == nil {
		return "", fmt.Errorf("staged image present but no asset store configured")
	}

	recordID := op.TempID
	if recordID == "" {
		recordID = op.OriginalID
	}
	if recordID == "" {
		recordID = "offline"
	}

	path := fmt.Sprintf("%s/%s/%s/%s", uid, img.RecordType, recordID, img.FileName)
	return e.assets.Upload(ctx, path, img.Data, img.MIMEType)
}

// dispatch replays the operation's action. The switch is exhaustive
// over the Action set; ParseAction already rejected anything else.
func (e *Engine) dispatch(ctx context.Context, action Action, op store.Operation, payload Payload) error {
	switch action {
	case ActionSaveSale, ActionSavePurchase, ActionSaveCustomer, ActionSaveSupplier,
		ActionSaveVoucher, ActionSaveExpense, ActionSaveExpenseTemplate,
		ActionSaveCategory, ActionSaveWaste, ActionSaveOpeningBalance,
		ActionSaveNotification:
		_, err := e.Write(ctx, upsertTables[action], payload, action, true)
		return err

	case ActionMarkAllRead:
		return e.MarkAllNotificationsRead(ctx, true)

	case ActionUpdateSettings:
		// queueOffline stamps id/user_id onto every queued payload;
		// the settings document itself carries neither.
		settings := sanitize(payload)
		delete(settings, "id")
		delete(settings, "user_id")
		_, err := e.UpdateSettings(ctx, settings, true)
		return err

	case ActionDeleteRecord:
		id, _ := payload["id"].(string)
		if id == "" {
			id = op.OriginalID
		}
		imageURL, _ := payload["image_url"].(string)
		recordType, _ := payload["record_type_for_image"].(string)
		return e.Delete(ctx, op.TableName, id, imageURL, recordType, true)

	case ActionReturnSale:
		return e.ReturnSale(ctx, replayID(op, payload), true)

	case ActionReturnPurchase:
		return e.ReturnPurchase(ctx, replayID(op, payload), true)

	default:
		return fmt.Errorf("unhandled action %q", action)
	}
}

func replayID(op store.Operation, payload Payload) string {
	if id, _ := payload["id"].(string); id != "" {
		return id
	}
	return op.OriginalID
}
