package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dukkanhq/dukkan/internal/remote"
)

// HTTPAuth resolves sessions against the hosted auth endpoint
// (GET {base}/auth/v1/user). The daemon has no real-time auth channel,
// so Events never delivers; session changes are picked up by restarting
// the probe.
type HTTPAuth struct {
	baseURL string
	apiKey  string
	token   string
	hc      *http.Client
	events  chan Event
}

// NewHTTPAuth builds an auth client. token is the user's access token;
// empty means signed out.
func NewHTTPAuth(baseURL, apiKey, token string) *HTTPAuth {
	return &HTTPAuth{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		token:   token,
		hc:      &http.Client{Timeout: 15 * time.Second},
		events:  make(chan Event),
	}
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// GetSession implements Auth.
func (a *HTTPAuth) GetSession(ctx context.Context) (*Session, error) {
	if a.token == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("building session request: %w", err)
	}
	req.Header.Set("apikey", a.apiKey)
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.hc.Do(req)
	if err != nil {
		return nil, remote.Classify(ctx, "auth.session", "", 0, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Expired or revoked token is a signed-out state, not an error.
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, remote.Classify(ctx, "auth.session", "", resp.StatusCode,
			fmt.Errorf("auth endpoint returned %s", resp.Status))
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if user.ID == "" {
		return nil, nil
	}
	return &Session{UserID: user.ID, Email: user.Email}, nil
}

// Events implements Auth. The channel never delivers.
func (a *HTTPAuth) Events() <-chan Event {
	return a.events
}
