// Package remote is the boundary adapter for the hosted record store.
//
// The transport speaks the PostgREST dialect: one URL path per table,
// filters as query parameters, JSON bodies, upserts via the
// resolution=merge-duplicates preference. Nothing above this package
// knows the dialect - callers receive serialized records or a classified
// *Error and branch on its Kind.
package remote

import (
	"context"
	"encoding/json"
)

// Query narrows a Select call. All fields are optional.
type Query struct {
	// Filters are column -> required value pairs (equality only).
	Filters map[string]string
	// OrderBy is the sort column; Descending flips the direction.
	OrderBy    string
	Descending bool
	// Limit caps the number of returned rows. 0 means no cap.
	Limit int
}

// Client is the abstract remote record store.
//
// Every method observes ctx and returns a classified *Error on failure.
// Select returns the serialized JSON array of matching records; Upsert
// returns the stored record as the remote persisted it.
type Client interface {
	Select(ctx context.Context, table string, q Query) (json.RawMessage, error)
	Upsert(ctx context.Context, table string, record json.RawMessage, conflictKey string) (json.RawMessage, error)
	Insert(ctx context.Context, table string, record json.RawMessage) error
	Update(ctx context.Context, table string, filters map[string]string, patch json.RawMessage) error
	Delete(ctx context.Context, table string, filters map[string]string) error
	RPC(ctx context.Context, fn string, args map[string]any) error
}
