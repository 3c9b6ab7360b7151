package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukkanhq/dukkan/internal/remote"
	"github.com/dukkanhq/dukkan/internal/store"
)

func TestProcessQueue_RoundTrip(t *testing.T) {
	rc := &fakeRemote{}
	conn := &toggleConn{online: false}
	e := newTestEngine(t, rc, WithConnectivity(conn))
	ctx := context.Background()

	var counts []int
	e.OnQueueCountChange(func(n int) { counts = append(counts, n) })

	// Write while offline: queued, not sent.
	_, err := e.Write(ctx, "sales", Payload{"total": 500, "currency": "YER"}, ActionSaveSale, false)
	require.NoError(t, err)
	require.Empty(t, rc.callsOf("upsert"))

	// Seed the read cache so the drain's invalidation is observable.
	e.cache.Put("sales", json.RawMessage(`[{"stale":true}]`))

	// Connectivity returns; the drain replays and empties the queue.
	conn.set(true)
	require.NoError(t, e.ProcessQueue(ctx))

	upserts := rc.callsOf("upsert")
	require.Len(t, upserts, 1)
	assert.Equal(t, "sales", upserts[0].Table)
	assert.Equal(t, float64(500), upserts[0].Record["total"])
	assert.Equal(t, "YER", upserts[0].Record["currency"])
	assert.NotContains(t, upserts[0].Record, "_offline")

	count, err := e.store.QueueCount(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, count)

	// Queue depth observable saw 1 (enqueue) then 0 (drain).
	require.NotEmpty(t, counts)
	assert.Equal(t, 1, counts[0])
	assert.Equal(t, 0, counts[len(counts)-1])

	// The drained write invalidated the collection's cache slot.
	_, ok := e.cache.Get("sales")
	assert.False(t, ok, "drain must invalidate the written collection")
}

func TestProcessQueue_FIFO(t *testing.T) {
	rc := &fakeRemote{}
	conn := &toggleConn{online: false}
	e := newTestEngine(t, rc, WithConnectivity(conn))
	ctx := context.Background()

	_, err := e.Write(ctx, "sales", Payload{"total": 1}, ActionSaveSale, false)
	require.NoError(t, err)
	_, err = e.Write(ctx, "expenses", Payload{"amount": 2}, ActionSaveExpense, false)
	require.NoError(t, err)

	conn.set(true)
	require.NoError(t, e.ProcessQueue(ctx))

	upserts := rc.callsOf("upsert")
	require.Len(t, upserts, 2)
	assert.Equal(t, "sales", upserts[0].Table, "A enqueued before B must replay first")
	assert.Equal(t, "expenses", upserts[1].Table)
}

func TestProcessQueue_OfflineNoOp(t *testing.T) {
	rc := &fakeRemote{}
	conn := &toggleConn{online: false}
	e := newTestEngine(t, rc, WithConnectivity(conn))
	ctx := context.Background()

	_, err := e.Write(ctx, "sales", Payload{"total": 1}, ActionSaveSale, false)
	require.NoError(t, err)

	require.NoError(t, e.ProcessQueue(ctx))
	assert.Empty(t, rc.callsOf("upsert"))

	count, _ := e.store.QueueCount(ctx, "u1")
	assert.Equal(t, 1, count)
}

func TestProcessQueue_CancellationLeavesRemainderQueued(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	rc := &fakeRemote{}
	rc.upsertHook = func(n int, table string, record json.RawMessage) (json.RawMessage, error) {
		// First replay succeeds, then the pass is cancelled.
		cancel()
		return record, nil
	}

	conn := &toggleConn{online: false}
	e := newTestEngine(t, rc, WithConnectivity(conn))

	_, err := e.Write(context.Background(), "sales", Payload{"total": 1}, ActionSaveSale, false)
	require.NoError(t, err)
	_, err = e.Write(context.Background(), "expenses", Payload{"amount": 2}, ActionSaveExpense, false)
	require.NoError(t, err)

	conn.set(true)
	require.NoError(t, e.ProcessQueue(ctx))

	ops, err := e.store.ListOperations(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, ops, 1, "operation B stays queued after mid-pass cancellation")
	assert.Equal(t, string(ActionSaveExpense), ops[0].Action)

	// A later pass with a live context completes the remainder.
	rc.upsertHook = nil
	require.NoError(t, e.ProcessQueue(context.Background()))
	count, _ := e.store.QueueCount(context.Background(), "u1")
	assert.Zero(t, count)
}

func TestProcessQueue_BadOperationDoesNotBlockRest(t *testing.T) {
	rc := &fakeRemote{}
	rc.upsertHook = func(n int, table string, record json.RawMessage) (json.RawMessage, error) {
		if table == "sales" {
			return nil, &remote.Error{Kind: remote.KindPermanent, Op: "upsert", Table: table, Status: 422}
		}
		return record, nil
	}

	conn := &toggleConn{online: false}
	e := newTestEngine(t, rc, WithConnectivity(conn))
	ctx := context.Background()

	_, err := e.Write(ctx, "sales", Payload{"total": 1}, ActionSaveSale, false)
	require.NoError(t, err)
	_, err = e.Write(ctx, "expenses", Payload{"amount": 2}, ActionSaveExpense, false)
	require.NoError(t, err)

	conn.set(true)
	require.NoError(t, e.ProcessQueue(ctx))

	// The failing sale stays; the expense behind it still synced.
	ops, err := e.store.ListOperations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, string(ActionSaveSale), ops[0].Action)
}

func TestProcessQueue_UploadsStagedImageBeforeReplay(t *testing.T) {
	rc := &fakeRemote{}
	fa := &fakeAssets{}
	conn := &toggleConn{online: false}
	e := newTestEngine(t, rc, WithConnectivity(conn), WithAssets(fa))
	ctx := context.Background()

	payload := Payload{
		"total":                 500,
		"image_base64_data":     base64.StdEncoding.EncodeToString([]byte("jpegbytes")),
		"image_mime_type":       "image/jpeg",
		"image_file_name":       "invoice.jpg",
		"record_type_for_image": "sales",
	}
	echoRaw, err := e.Write(ctx, "sales", payload, ActionSaveSale, false)
	require.NoError(t, err)

	var echo Payload
	require.NoError(t, json.Unmarshal(echoRaw, &echo))
	tempID := echo["id"].(string)

	conn.set(true)
	require.NoError(t, e.ProcessQueue(ctx))

	require.Len(t, fa.uploads, 1)
	assert.Equal(t, "u1/sales/"+tempID+"/invoice.jpg", fa.uploads[0])

	upserts := rc.callsOf("upsert")
	require.Len(t, upserts, 1)
	assert.Equal(t, "https://assets.test/public/invoices/u1/sales/"+tempID+"/invoice.jpg",
		upserts[0].Record["image_url"])
	assert.NotContains(t, upserts[0].Record, "image_base64_data",
		"raw bytes must be dropped before replay")
}

func TestProcessQueue_DeleteReplay(t *testing.T) {
	rc := &fakeRemote{}
	conn := &toggleConn{online: false}
	e := newTestEngine(t, rc, WithConnectivity(conn))
	ctx := context.Background()

	require.NoError(t, e.Delete(ctx, "sales", "s1", "", "", false))

	conn.set(true)
	require.NoError(t, e.ProcessQueue(ctx))

	require.Len(t, rc.callsOf("delete"), 1)
	count, _ := e.store.QueueCount(ctx, "u1")
	assert.Zero(t, count)
}

func TestProcessQueue_InvalidPayloadKeptForNextPass(t *testing.T) {
	rc := &fakeRemote{}
	e := newTestEngine(t, rc)
	ctx := context.Background()

	// A delete without an id would be rejected remotely; the schema
	// stops it locally and the row stays for inspection.
	_, err := e.store.AddOperation(ctx, store.Operation{
		UserID:    "u1",
		Action:    string(ActionDeleteRecord),
		TableName: "sales",
		Payload:   json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	require.NoError(t, e.ProcessQueue(ctx))

	assert.Empty(t, rc.callsOf("delete"))
	count, _ := e.store.QueueCount(ctx, "u1")
	assert.Equal(t, 1, count, "invalid rows are never silently dropped")
}

func TestProcessQueue_UnknownActionKept(t *testing.T) {
	rc := &fakeRemote{}
	e := newTestEngine(t, rc)
	ctx := context.Background()

	_, err := e.store.AddOperation(ctx, store.Operation{
		UserID:  "u1",
		Action:  "launchMissiles",
		Payload: json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	require.NoError(t, e.ProcessQueue(ctx))
	count, _ := e.store.QueueCount(ctx, "u1")
	assert.Equal(t, 1, count)
}

func TestProcessQueue_SignedOutNoOp(t *testing.T) {
	rc := &fakeRemote{}
	e := newTestEngine(t, rc, WithIdentity(StaticIdentity("")))
	require.NoError(t, e.ProcessQueue(context.Background()))
	assert.Empty(t, rc.calls)
}

func TestProcessQueue_MarkAllReadReplay(t *testing.T) {
	rc := &fakeRemote{}
	conn := &toggleConn{online: false}
	e := newTestEngine(t, rc, WithConnectivity(conn))
	ctx := context.Background()

	require.NoError(t, e.MarkAllNotificationsRead(ctx, false))

	conn.set(true)
	require.NoError(t, e.ProcessQueue(ctx))

	updates := rc.callsOf("update")
	require.Len(t, updates, 1)
	assert.Equal(t, "notifications", updates[0].Table)

	count, err := e.store.QueueCount(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestProcessQueue_SettingsReplayStripsBookkeeping(t *testing.T) {
	rc := &fakeRemote{}
	conn := &toggleConn{online: false}
	e := newTestEngine(t, rc, WithConnectivity(conn))
	ctx := context.Background()

	_, err := e.UpdateSettings(ctx, Payload{"currency": "YER", "tax_rate": 0.05}, false)
	require.NoError(t, err)

	conn.set(true)
	require.NoError(t, e.ProcessQueue(ctx))

	upserts := rc.callsOf("upsert")
	require.Len(t, upserts, 1)
	assert.Equal(t, "user_settings", upserts[0].Table)
	assert.Equal(t, "u1", upserts[0].Record["user_id"])

	settings, ok := upserts[0].Record["accounting_settings"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "YER", settings["currency"])
	assert.Equal(t, 0.05, settings["tax_rate"])
	assert.NotContains(t, settings, "id", "queue bookkeeping must not leak into settings")
	assert.NotContains(t, settings, "user_id", "queue bookkeeping must not leak into settings")
}
