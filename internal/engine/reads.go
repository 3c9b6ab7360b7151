package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukkanhq/dukkan/internal/remote"
)

// Collection describes one remotely stored collection and how to read
// it. Keys are short stable strings - one cache slot per collection,
// filtering and sorting happen on the full set client-side.
type Collection struct {
	Key        string
	Table      string
	OrderBy    string
	Descending bool
	Limit      int
	// ForceFresh bypasses the cache on every read of this collection.
	ForceFresh bool
}

// Collections is the full read registry, in initial-load order.
var Collections = []Collection{
	{Key: "sales", Table: "sales", OrderBy: "date", Descending: true, Limit: 200},
	{Key: "purchs", Table: "purchases", OrderBy: "date", Descending: true, Limit: 200},
	{Key: "cats", Table: "categories", OrderBy: "name"},
	{Key: "waste", Table: "waste", OrderBy: "date", Descending: true},
	{Key: "custs", Table: "customers", OrderBy: "name"},
	{Key: "supps", Table: "suppliers", OrderBy: "name"},
	{Key: "vchs", Table: "vouchers", OrderBy: "date", Descending: true},
	{Key: "exps", Table: "expenses", OrderBy: "date", Descending: true},
	{Key: "exp_templates", Table: "expense_templates", OrderBy: "title"},
	{Key: "notifs", Table: "notifications", OrderBy: "date", Descending: true, Limit: 50},
	// The activity log is an audit surface: always read fresh so a just
	// written entry is visible immediately.
	{Key: "logs", Table: "activity_log", OrderBy: "timestamp", Descending: true, Limit: 50, ForceFresh: true},
}

// CollectionByKey looks up a registry entry by cache key.
func CollectionByKey(key string) (Collection, bool) {
	for _, c := range Collections {
		if c.Key == key {
			return c, true
		}
	}
	return Collection{}, false
}

// CollectionByTable looks up a registry entry by remote table name.
func CollectionByTable(table string) (Collection, bool) {
	for _, c := range Collections {
		if c.Table == table {
			return c, true
		}
	}
	return Collection{}, false
}

// FetchCollection reads a registered collection through the full
// cache/retry/fallback pipeline. Unknown keys are an error - the
// registry is closed.
func (e *Engine) FetchCollection(ctx context.Context, key string, forceFresh bool) (json.RawMessage, error) {
	col, ok := CollectionByKey(key)
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", key)
	}

	data := e.Fetch(ctx, col.Key, forceFresh || col.ForceFresh, func(ctx context.Context) (json.RawMessage, error) {
		return e.remote.Select(ctx, col.Table, remote.Query{
			OrderBy:    col.OrderBy,
			Descending: col.Descending,
			Limit:      col.Limit,
		})
	})
	return data, nil
}

// LoadAll performs the initial full load: every registered collection,
// in order, through the normal read pipeline. Individual collections
// cannot fail a load - each degrades to its own snapshot - so LoadAll
// only stops early on cancellation.
func (e *Engine) LoadAll(ctx context.Context, forceFresh bool) error {
	for _, col := range Collections {
		if err := ctx.Err(); err != nil {
			slog.Warn("initial load cancelled", "at", col.Key)
			return err
		}
		if _, err := e.FetchCollection(ctx, col.Key, forceFresh); err != nil {
			return err
		}
	}
	return nil
}
