package remote

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Connectivity answers whether the remote store is currently reachable.
// The write path consults it before deciding to queue, and a drain pass
// is a no-op while offline.
type Connectivity interface {
	Online() bool
}

// Probe checks reachability with a cheap HEAD request against the
// record store root, caching the verdict briefly so hot paths do not
// issue a probe per call.
type Probe struct {
	url  string
	http *http.Client
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	online  bool
	checked time.Time
}

// NewProbe creates a probe against baseURL.
func NewProbe(baseURL string) *Probe {
	return &Probe{
		url:  baseURL,
		http: &http.Client{Timeout: 2 * time.Second},
		ttl:  5 * time.Second,
		now:  time.Now,
	}
}

// Online reports reachability, re-probing at most once per cache window.
func (p *Probe) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.now().Sub(p.checked) < p.ttl {
		return p.online
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.online = false
		p.checked = p.now()
		return false
	}

	resp, err := p.http.Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	// Any response at all means the host is reachable; auth failures on
	// the probe endpoint still count as online.
	p.online = err == nil
	p.checked = p.now()
	return p.online
}

// StaticConnectivity is a fixed connectivity verdict for tests and for
// forcing offline mode.
type StaticConnectivity bool

// Online implements Connectivity.
func (s StaticConnectivity) Online() bool { return bool(s) }
