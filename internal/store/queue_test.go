package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddOperation_AssignsIncreasingIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.AddOperation(ctx, Operation{UserID: "u1", Action: "saveSale"})
	if err != nil {
		t.Fatalf("AddOperation(a) failed: %v", err)
	}
	b, err := s.AddOperation(ctx, Operation{UserID: "u1", Action: "saveExpense"})
	if err != nil {
		t.Fatalf("AddOperation(b) failed: %v", err)
	}

	if b <= a {
		t.Errorf("ids not increasing: a=%d b=%d", a, b)
	}
}

func TestListOperations_FIFOOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	actions := []string{"saveSale", "saveCustomer", "saveExpense"}
	for _, action := range actions {
		if _, err := s.AddOperation(ctx, Operation{UserID: "u1", Action: action}); err != nil {
			t.Fatalf("AddOperation(%s) failed: %v", action, err)
		}
	}

	ops, err := s.ListOperations(ctx, "u1")
	if err != nil {
		t.Fatalf("ListOperations() failed: %v", err)
	}
	if len(ops) != len(actions) {
		t.Fatalf("got %d operations, want %d", len(ops), len(actions))
	}
	for i, op := range ops {
		if op.Action != actions[i] {
			t.Errorf("position %d: got action %q, want %q", i, op.Action, actions[i])
		}
	}
}

func TestListOperations_EmptyQueue(t *testing.T) {
	s := openTestStore(t)

	ops, err := s.ListOperations(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListOperations() failed: %v", err)
	}
	if ops == nil {
		t.Error("expected empty slice, got nil")
	}
	if len(ops) != 0 {
		t.Errorf("expected empty queue, got %d operations", len(ops))
	}
}

func TestListOperations_ScopedToUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.AddOperation(ctx, Operation{UserID: "u1", Action: "saveSale"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddOperation(ctx, Operation{UserID: "u2", Action: "saveWaste"}); err != nil {
		t.Fatal(err)
	}

	ops, err := s.ListOperations(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 || ops[0].Action != "saveSale" {
		t.Errorf("u1 queue = %+v, want only saveSale", ops)
	}
}

func TestRemoveOperation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.AddOperation(ctx, Operation{UserID: "u1", Action: "saveSale"})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RemoveOperation(ctx, id); err != nil {
		t.Fatalf("RemoveOperation() failed: %v", err)
	}

	count, err := s.QueueCount(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("queue count = %d after removal, want 0", count)
	}

	// Removing the same id again is a no-op
	if err := s.RemoveOperation(ctx, id); err != nil {
		t.Errorf("second RemoveOperation() should be no-op: %v", err)
	}
}

func TestOperation_RoundTripFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	payload := json.RawMessage(`{"total":500,"currency":"YER"}`)
	_, err := s.AddOperation(ctx, Operation{
		UserID:     "u1",
		Action:     "saveSale",
		TempID:     "tmp-1",
		OriginalID: "orig-1",
		TableName:  "sales",
		Payload:    payload,
	})
	if err != nil {
		t.Fatal(err)
	}

	ops, err := s.ListOperations(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 {
		t.Fatalf("got %d operations, want 1", len(ops))
	}

	op := ops[0]
	if op.OpID == "" {
		t.Error("OpID was not generated")
	}
	if op.TempID != "tmp-1" || op.OriginalID != "orig-1" || op.TableName != "sales" {
		t.Errorf("identifier fields not preserved: %+v", op)
	}
	if string(op.Payload) != string(payload) {
		t.Errorf("payload = %s, want %s", op.Payload, payload)
	}
	if op.CreatedAt.IsZero() {
		t.Error("CreatedAt was not set")
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveSnapshot(ctx, "sales", json.RawMessage(`[{"id":"s1"}]`)); err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}

	data, err := s.GetSnapshot(ctx, "sales")
	if err != nil {
		t.Fatalf("GetSnapshot() failed: %v", err)
	}
	if string(data) != `[{"id":"s1"}]` {
		t.Errorf("snapshot = %s", data)
	}

	// Overwrite wins
	if err := s.SaveSnapshot(ctx, "sales", json.RawMessage(`[]`)); err != nil {
		t.Fatal(err)
	}
	data, err = s.GetSnapshot(ctx, "sales")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `[]` {
		t.Errorf("snapshot after overwrite = %s, want []", data)
	}
}

func TestGetSnapshot_Missing(t *testing.T) {
	s := openTestStore(t)

	data, err := s.GetSnapshot(context.Background(), "never-written")
	if err != nil {
		t.Fatalf("GetSnapshot() failed: %v", err)
	}
	if data != nil {
		t.Errorf("expected nil for missing key, got %s", data)
	}
}
