// Package engine implements the offline-resilient synchronization core.
//
// Reads go through FetchCollection: an in-process TTL cache, then a
// bounded-retry fetch against the remote record store, then a durable
// snapshot fallback. A read never fails - the worst case is an empty
// collection.
//
// Writes go through Write (and Delete / the return RPCs): when the
// remote store is reachable the write goes out immediately; otherwise
// the operation is appended to the durable queue and the caller gets an
// optimistic local echo. ProcessQueue later drains the queue in strict
// FIFO order, resolving any deferred invoice-image upload before each
// replay, removing operations only after the remote store confirmed
// them.
//
// Cancellation is cooperative throughout: every remote call, store call
// and backoff wait observes the operation's context. A cancelled read
// falls back to the durable snapshot; a cancelled drain pass stops after
// the current operation and leaves the remainder queued.
//
// All cache and observer state is mutex-guarded - the engine is driven
// concurrently by HTTP handlers, the session coordinator and the
// background drain loop.
package engine
