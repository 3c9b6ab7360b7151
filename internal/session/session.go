// Package session owns process-wide authentication state and the
// startup/lifecycle choreography around it: a deadline-bounded session
// probe on start, a full data load plus queue drain whenever a session
// is established, and teardown on sign-out.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultProbeTimeout bounds the startup session probe so the caller is
// never left on an indefinite loading state.
const DefaultProbeTimeout = 7 * time.Second

// Session is an established remote session.
type Session struct {
	UserID string
	Email  string
}

// EventType tags an asynchronous session-change notification.
type EventType string

const (
	// EventSignedIn announces a newly established session.
	EventSignedIn EventType = "SIGNED_IN"
	// EventSignedOut announces an explicit sign-out.
	EventSignedOut EventType = "SIGNED_OUT"
)

// Event is an out-of-band session change.
type Event struct {
	Type    EventType
	Session *Session
}

// Auth is the remote authentication collaborator.
type Auth interface {
	// GetSession resolves the current session, nil if signed out.
	// Must observe ctx.
	GetSession(ctx context.Context) (*Session, error)
	// Events delivers session changes for the coordinator's lifetime.
	Events() <-chan Event
}

// Loader is the data layer driven on session establishment.
// Implemented by engine.Engine.
type Loader interface {
	LoadAll(ctx context.Context, forceFresh bool) error
	ProcessQueue(ctx context.Context) error
}

// Coordinator tracks the signed-in user and reacts to session changes.
// It implements engine.Identity: UserID returns the current user, empty
// when signed out.
type Coordinator struct {
	auth         Auth
	loader       Loader
	probeTimeout time.Duration
	notify       func(title, message string)
	navigate     func(page string)

	mu       sync.Mutex
	userID   string
	loggedIn bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithProbeTimeout overrides the startup probe deadline.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.probeTimeout = d }
}

// WithNotify sets the non-blocking user notification hook.
func WithNotify(fn func(title, message string)) Option {
	return func(c *Coordinator) { c.notify = fn }
}

// WithNavigate sets the navigation hook ("dashboard", "login").
func WithNavigate(fn func(page string)) Option {
	return func(c *Coordinator) { c.navigate = fn }
}

// New creates a Coordinator. The loader is attached separately with
// SetLoader because the engine needs the coordinator as its identity
// source first.
func New(auth Auth, opts ...Option) *Coordinator {
	c := &Coordinator{
		auth:         auth,
		probeTimeout: DefaultProbeTimeout,
		notify:       func(string, string) {},
		navigate:     func(string) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetLoader attaches the data layer driven on session establishment.
func (c *Coordinator) SetLoader(l Loader) {
	c.loader = l
}

// UserID implements engine.Identity.
func (c *Coordinator) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// LoggedIn reports current session state.
func (c *Coordinator) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// Start probes the current session under the startup deadline, then
// subscribes to session changes until ctx is cancelled or Stop is
// called. Non-blocking; the work runs in a background goroutine.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		c.probe(ctx)
		c.watch(ctx)
	}()
}

// Stop cancels the in-flight probe and unsubscribes. Blocks until the
// background goroutine exits.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.done != nil {
		<-c.done
	}
}

// probe races the session check against the startup deadline. Whichever
// finishes first wins; the loser's effect is suppressed.
func (c *Coordinator) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	type result struct {
		sess *Session
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		sess, err := c.auth.GetSession(probeCtx)
		ch <- result{sess, err}
	}()

	select {
	case r := <-ch:
		switch {
		case r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil:
			// The probe observed its own deadline and returned before
			// the Done branch fired. Same timeout, same handling.
			c.probeTimedOut()
		case r.err != nil && errors.Is(r.err, context.Canceled):
			slog.Warn("session probe cancelled")
			c.setSignedOut()
		case r.err != nil:
			slog.Error("session probe failed", "error", r.err)
			c.notify("Connection error", "Could not verify your session. Check your network and try again.")
			c.setSignedOut()
		case r.sess != nil:
			c.establish(ctx, r.sess)
		default:
			c.setSignedOut()
		}

	case <-probeCtx.Done():
		if ctx.Err() != nil {
			// Coordinator shutdown, not a timeout.
			return
		}
		c.probeTimedOut()
	}
}

// probeTimedOut forces the signed-out fallback after a probe deadline.
// Called at most once per Start: both timeout detections sit in the
// same select, so only one branch can run.
func (c *Coordinator) probeTimedOut() {
	slog.Warn("session probe timed out", "deadline", c.probeTimeout)
	c.notify("Load failed", "Initial data load timed out. The server may be busy or your connection weak.")
	c.setSignedOut()
	c.navigate("login")
}

// watch reacts to asynchronous session changes for the remaining
// lifetime.
func (c *Coordinator) watch(ctx context.Context) {
	events := c.auth.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch {
			case ev.Session != nil:
				c.establish(ctx, ev.Session)
			case ev.Type == EventSignedOut:
				slog.Info("signed out")
				c.setSignedOut()
				c.navigate("login")
			}
		}
	}
}

// establish marks the session active and triggers the initial load and
// a forced-fresh drain pass.
func (c *Coordinator) establish(ctx context.Context, sess *Session) {
	c.mu.Lock()
	c.userID = sess.UserID
	c.loggedIn = true
	c.mu.Unlock()

	slog.Info("session established", "user", sess.UserID)
	c.navigate("dashboard")

	if c.loader == nil {
		return
	}
	if err := c.loader.LoadAll(ctx, true); err != nil {
		slog.Warn("initial load incomplete", "error", err)
	}
	if err := c.loader.ProcessQueue(ctx); err != nil {
		slog.Error("startup sync failed", "error", err)
	}
}

func (c *Coordinator) setSignedOut() {
	c.mu.Lock()
	c.userID = ""
	c.loggedIn = false
	c.mu.Unlock()
}
