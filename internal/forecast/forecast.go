// Package forecast wraps the hosted text-generation service used for
// sales forecasts. Requests are one-shot and abortable; Fetcher keeps
// at most one request in flight, cancelling the previous one when a
// new fetch starts.
package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dukkanhq/dukkan/internal/remote"
)

// Client issues a single text-generation request.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// HTTPClient talks to a hosted generation endpoint that accepts
// {"prompt": ...} and answers {"text": ...}.
type HTTPClient struct {
	url    string
	apiKey string
	hc     *http.Client
}

// NewHTTPClient builds a client for the given endpoint URL.
func NewHTTPClient(url, apiKey string) *HTTPClient {
	return &HTTPClient{
		url:    url,
		apiKey: apiKey,
		hc:     &http.Client{Timeout: 60 * time.Second},
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// Generate implements Client.
func (c *HTTPClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("encoding forecast request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building forecast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", remote.Classify(ctx, "forecast.generate", "", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", remote.Classify(ctx, "forecast.generate", "", resp.StatusCode,
			fmt.Errorf("generation endpoint: %s", bytes.TrimSpace(msg)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding forecast response: %w", err)
	}
	return out.Text, nil
}

// Fetcher serializes forecast requests: starting a new fetch cancels
// the one still in flight, so stale results never overtake fresh ones.
type Fetcher struct {
	client Client

	mu  sync.Mutex
	cur *inflight
}

type inflight struct {
	cancel context.CancelFunc
}

// NewFetcher wraps a Client with at-most-one-in-flight semantics.
func NewFetcher(client Client) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch issues a generation request, aborting any prior in-flight
// request first. A fetch superseded by a newer one returns a
// cancellation error.
func (f *Fetcher) Fetch(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	cur := &inflight{cancel: cancel}

	f.mu.Lock()
	if f.cur != nil {
		f.cur.cancel()
	}
	f.cur = cur
	f.mu.Unlock()

	defer func() {
		cancel()
		f.mu.Lock()
		if f.cur == cur {
			f.cur = nil
		}
		f.mu.Unlock()
	}()

	return f.client.Generate(ctx, prompt)
}

// Abort cancels the in-flight request, if any.
func (f *Fetcher) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cur != nil {
		f.cur.cancel()
		f.cur = nil
	}
}
