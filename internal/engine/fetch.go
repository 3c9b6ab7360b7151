package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dukkanhq/dukkan/internal/remote"
)

// emptyCollection is the read result of last resort: no remote data, no
// cached data, no durable snapshot.
var emptyCollection = json.RawMessage("[]")

// Fetcher performs one remote read attempt for a collection.
type Fetcher func(ctx context.Context) (json.RawMessage, error)

// Fetch reads a collection through the cache/retry/fallback pipeline.
//
// Order of resort:
//  1. Fresh in-process cache entry (unless forceFresh).
//  2. The fetcher, retried with linear backoff on transient failures.
//  3. The durable snapshot saved by a previous successful read.
//  4. An empty collection.
//
// Fetch never returns an error: cancellation and permanent exhaustion
// both land on the snapshot fallback. A successful fetch populates the
// cache and the durable snapshot even when forceFresh was requested, so
// subsequent non-forced reads hit the fresh entry.
func (e *Engine) Fetch(ctx context.Context, key string, forceFresh bool, fetch Fetcher) json.RawMessage {
	if !forceFresh {
		if data, ok := e.cache.Get(key); ok {
			return data
		}
	}

	// Identical concurrent reads share one fetch; the loser of the race
	// still observes the winner's result.
	result, _, _ := e.flight.Do(key, func() (any, error) {
		return e.fetchWithRetry(ctx, key, fetch), nil
	})
	return result.(json.RawMessage)
}

// fetchWithRetry runs the bounded retry loop and the fallback path.
func (e *Engine) fetchWithRetry(ctx context.Context, key string, fetch Fetcher) json.RawMessage {
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if ctx.Err() != nil {
			slog.Warn("fetch cancelled before attempt", "key", key, "attempt", attempt)
			return e.fallback(key)
		}

		data, err := fetch(ctx)

		// Cancellation during the call must not be mistaken for data.
		if ctx.Err() != nil || remote.IsCancelled(err) {
			slog.Warn("fetch cancelled", "key", key, "attempt", attempt)
			return e.fallback(key)
		}

		if err == nil && data != nil {
			e.cache.Put(key, data)
			e.persistSnapshot(key, data)
			return data
		}

		if remote.IsTransient(err) && attempt < e.maxRetries && e.conn.Online() {
			wait := e.backoff * time.Duration(attempt+1)
			if serr := e.sleep(ctx, wait); serr != nil {
				slog.Warn("fetch cancelled during backoff", "key", key)
				return e.fallback(key)
			}
			continue
		}

		if remote.IsTransient(err) || !e.conn.Online() {
			slog.Info("offline or network error, falling back to snapshot", "key", key)
		} else {
			slog.Warn("remote fetch failed", "key", key, "error", err)
		}
		return e.fallback(key)
	}

	return e.fallback(key)
}

// persistSnapshot saves the fetched collection durably, fire-and-forget.
// Uses a detached context: the read that triggered it may finish first.
func (e *Engine) persistSnapshot(key string, data json.RawMessage) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.store.SaveSnapshot(ctx, key, data); err != nil {
			slog.Warn("snapshot persist failed", "key", key, "error", err)
		}
	}()
}

// fallback serves the last durable snapshot, or an empty collection.
func (e *Engine) fallback(key string) json.RawMessage {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := e.store.GetSnapshot(ctx, key)
	if err != nil {
		slog.Warn("durable fallback unavailable", "key", key, "error", err)
		return emptyCollection
	}
	if data == nil {
		return emptyCollection
	}
	return data
}
