package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dukkanhq/dukkan/internal/assets"
	"github.com/dukkanhq/dukkan/internal/cache"
	"github.com/dukkanhq/dukkan/internal/remote"
	"github.com/dukkanhq/dukkan/internal/store"
)

// DefaultMaxRetries is the number of additional attempts after the
// first failed fetch (three attempts total).
const DefaultMaxRetries = 2

// ErrUnauthenticated is returned by every write entry point when no
// session identity is resolvable. Raised before any I/O.
var ErrUnauthenticated = errors.New("unauthenticated: no resolvable session")

// Identity resolves the current session's user. An empty string means
// signed out. Implemented by session.Coordinator in production and by
// StaticIdentity in tests.
type Identity interface {
	UserID() string
}

// StaticIdentity is a fixed user identity.
type StaticIdentity string

// UserID implements Identity.
func (s StaticIdentity) UserID() string { return string(s) }

// Engine owns the offline data layer: cache, durable store, remote
// client, asset store and the pending-operation queue.
type Engine struct {
	store    *store.Store
	cache    *cache.Cache
	remote   remote.Client
	assets   assets.Store
	conn     remote.Connectivity
	identity Identity

	maxRetries int
	backoff    time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
	validator  *payloadValidator

	// Collapses concurrent reads of the same collection into one fetch.
	flight singleflight.Group

	// Single observer slot for queue-depth changes - the last
	// registration wins, matching the one-consumer contract.
	obsMu        sync.Mutex
	onQueueCount func(int)

	// Coalesced drain trigger for the background loop.
	kick chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithAssets sets the binary asset store used for deferred image uploads.
func WithAssets(a assets.Store) Option {
	return func(e *Engine) { e.assets = a }
}

// WithConnectivity overrides the reachability probe.
func WithConnectivity(c remote.Connectivity) Option {
	return func(e *Engine) { e.conn = c }
}

// WithIdentity sets the session identity source.
func WithIdentity(id Identity) Option {
	return func(e *Engine) { e.identity = id }
}

// WithCache overrides the in-process result cache.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithMaxRetries overrides the retry budget for reads.
func WithMaxRetries(n int) Option {
	return func(e *Engine) { e.maxRetries = n }
}

// WithBackoffUnit overrides the linear backoff unit (default 1s).
// Tests use a tiny unit to keep retry paths fast.
func WithBackoffUnit(d time.Duration) Option {
	return func(e *Engine) { e.backoff = d }
}

// WithSleeper overrides the backoff wait. Tests record the requested
// durations instead of sleeping.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// WithNow overrides the time source for optimistic echo timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over the durable store and remote client.
// Unless overridden, connectivity is assumed online and identity is
// empty (signed out).
func New(st *store.Store, rc remote.Client, opts ...Option) *Engine {
	e := &Engine{
		store:      st,
		cache:      cache.New(),
		remote:     rc,
		conn:       remote.StaticConnectivity(true),
		identity:   StaticIdentity(""),
		maxRetries: DefaultMaxRetries,
		backoff:    time.Second,
		now:        time.Now,
		validator:  newPayloadValidator(),
		kick:       make(chan struct{}, 1),
	}
	e.sleep = func(ctx context.Context, d time.Duration) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnQueueCountChange registers the queue-depth observer. A later
// registration replaces the callback; nil unregisters.
func (e *Engine) OnQueueCountChange(fn func(int)) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.onQueueCount = fn
}

// notifyQueueCount recomputes the queue depth for the current user and
// invokes the observer, if any. Count failures are silently ignored -
// the observable is best-effort UI state.
func (e *Engine) notifyQueueCount(ctx context.Context) {
	uid := e.identity.UserID()
	if uid == "" {
		return
	}
	count, err := e.store.QueueCount(ctx, uid)
	if err != nil {
		return
	}

	e.obsMu.Lock()
	fn := e.onQueueCount
	e.obsMu.Unlock()
	if fn != nil {
		fn(count)
	}
}

// QueueCount returns the pending-operation count for the session user.
func (e *Engine) QueueCount(ctx context.Context) (int, error) {
	uid := e.identity.UserID()
	if uid == "" {
		return 0, ErrUnauthenticated
	}
	return e.store.QueueCount(ctx, uid)
}

// Online reports whether the remote store is currently reachable.
func (e *Engine) Online() bool {
	return e.conn.Online()
}
