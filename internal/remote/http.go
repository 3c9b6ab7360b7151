package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPClient talks to a PostgREST-style REST endpoint.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPClient creates a client for the record store at baseURL.
// The API key is sent as both the apikey header and a bearer token.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Select fetches records from a table. Returns the raw JSON array.
func (c *HTTPClient) Select(ctx context.Context, table string, q Query) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("select", "*")
	for col, val := range q.Filters {
		params.Set(col, "eq."+val)
	}
	if q.OrderBy != "" {
		dir := "asc"
		if q.Descending {
			dir = "desc"
		}
		params.Set("order", q.OrderBy+"."+dir)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	body, _, err := c.do(ctx, http.MethodGet, "/rest/v1/"+table+"?"+params.Encode(), nil, "select", table, nil)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Upsert inserts or updates a record, merging on conflictKey, and
// returns the stored representation.
func (c *HTTPClient) Upsert(ctx context.Context, table string, record json.RawMessage, conflictKey string) (json.RawMessage, error) {
	headers := map[string]string{
		"Prefer": "resolution=merge-duplicates,return=representation",
	}
	path := "/rest/v1/" + table + "?on_conflict=" + url.QueryEscape(conflictKey)

	body, _, err := c.do(ctx, http.MethodPost, path, record, "upsert", table, headers)
	if err != nil {
		return nil, err
	}

	// PostgREST returns an array even for single-record writes.
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err == nil && len(rows) > 0 {
		return rows[0], nil
	}
	return body, nil
}

// Insert appends a record without reading it back.
func (c *HTTPClient) Insert(ctx context.Context, table string, record json.RawMessage) error {
	_, _, err := c.do(ctx, http.MethodPost, "/rest/v1/"+table, record, "insert", table, nil)
	return err
}

// Update patches every record matching all filters.
func (c *HTTPClient) Update(ctx context.Context, table string, filters map[string]string, patch json.RawMessage) error {
	params := url.Values{}
	for col, val := range filters {
		params.Set(col, "eq."+val)
	}
	_, _, err := c.do(ctx, http.MethodPatch, "/rest/v1/"+table+"?"+params.Encode(), patch, "update", table, nil)
	return err
}

// Delete removes records matching all filters.
func (c *HTTPClient) Delete(ctx context.Context, table string, filters map[string]string) error {
	params := url.Values{}
	for col, val := range filters {
		params.Set(col, "eq."+val)
	}
	_, _, err := c.do(ctx, http.MethodDelete, "/rest/v1/"+table+"?"+params.Encode(), nil, "delete", table, nil)
	return err
}

// RPC invokes a named stored procedure.
func (c *HTTPClient) RPC(ctx context.Context, fn string, args map[string]any) error {
	body, err := json.Marshal(args)
	if err != nil {
		return &Error{Kind: KindPermanent, Op: "rpc", Table: fn, Err: fmt.Errorf("marshal args: %w", err)}
	}
	_, _, err = c.do(ctx, http.MethodPost, "/rest/v1/rpc/"+fn, body, "rpc", fn, nil)
	return err
}

// do executes one request and maps the outcome to the error taxonomy.
func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, op, table string, headers map[string]string) (json.RawMessage, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, &Error{Kind: KindPermanent, Op: op, Table: table, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failure: unreachable host, reset, or ctx teardown.
		return nil, 0, Classify(ctx, op, table, 0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, Classify(ctx, op, table, resp.StatusCode, err)
	}

	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, Classify(ctx, op, table, resp.StatusCode,
			fmt.Errorf("%s", strings.TrimSpace(string(data))))
	}

	return data, resp.StatusCode, nil
}
