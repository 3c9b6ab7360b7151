package engine

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukkanhq/dukkan/internal/remote"
	"github.com/dukkanhq/dukkan/internal/store"
)

// remoteCall records one call against the fake remote store.
type remoteCall struct {
	Op     string
	Table  string
	Record Payload
}

// fakeRemote is a scriptable remote.Client.
type fakeRemote struct {
	mu    sync.Mutex
	calls []remoteCall

	selectData json.RawMessage
	selectErr  error

	// upsertHook, if set, decides each upsert's outcome. n is the
	// 1-based upsert count.
	upsertHook func(n int, table string, record json.RawMessage) (json.RawMessage, error)

	insertErr error
	updateErr error
	deleteErr error
	rpcErr    error
}

func (f *fakeRemote) record(op, table string, record json.RawMessage) {
	c := remoteCall{Op: op, Table: table}
	if record != nil {
		_ = json.Unmarshal(record, &c.Record)
	}
	f.calls = append(f.calls, c)
}

func (f *fakeRemote) Select(ctx context.Context, table string, q remote.Query) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("select", table, nil)
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	if f.selectData != nil {
		return f.selectData, nil
	}
	return json.RawMessage("[]"), nil
}

func (f *fakeRemote) Upsert(ctx context.Context, table string, record json.RawMessage, conflictKey string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("upsert", table, record)
	if f.upsertHook != nil {
		n := 0
		for _, c := range f.calls {
			if c.Op == "upsert" {
				n++
			}
		}
		return f.upsertHook(n, table, record)
	}
	return record, nil
}

func (f *fakeRemote) Insert(ctx context.Context, table string, record json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("insert", table, record)
	return f.insertErr
}

func (f *fakeRemote) Update(ctx context.Context, table string, filters map[string]string, patch json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("update", table, patch)
	return f.updateErr
}

func (f *fakeRemote) Delete(ctx context.Context, table string, filters map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete", table, nil)
	return f.deleteErr
}

func (f *fakeRemote) RPC(ctx context.Context, fn string, args map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("rpc", fn, nil)
	return f.rpcErr
}

func (f *fakeRemote) callsOf(op string) []remoteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []remoteCall
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// toggleConn is connectivity that tests can flip mid-scenario.
type toggleConn struct {
	mu     sync.Mutex
	online bool
}

func (c *toggleConn) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *toggleConn) set(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = v
}

// fakeAssets records uploads and returns deterministic URLs.
type fakeAssets struct {
	mu      sync.Mutex
	uploads []string
	deletes []string
}

func (f *fakeAssets) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, path)
	return "https://assets.test/public/invoices/" + path, nil
}

func (f *fakeAssets) Delete(ctx context.Context, publicURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, publicURL)
	return nil
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// noSleep replaces backoff waits in tests that do not inspect them.
func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func newTestEngine(t *testing.T, rc remote.Client, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithIdentity(StaticIdentity("u1")),
		WithSleeper(noSleep),
	}
	return New(setupTestStore(t), rc, append(base, opts...)...)
}
