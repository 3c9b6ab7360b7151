// Package assets is the boundary adapter for the hosted binary object
// store holding invoice images.
//
// Objects live under a single bucket with the path layout
// <userID>/<recordType>/<recordID>/<filename>; Upload returns the public
// URL that replaces the staged bytes in a queued payload before replay.
package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dukkanhq/dukkan/internal/remote"
)

// Store is the abstract asset store.
type Store interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, publicURL string) error
}

// HTTPStore uploads and deletes objects over the storage REST API.
type HTTPStore struct {
	baseURL string
	apiKey  string
	bucket  string
	http    *http.Client
}

// NewHTTPStore creates a store for the given bucket.
func NewHTTPStore(baseURL, apiKey, bucket string) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		bucket:  bucket,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Upload stores data at path inside the bucket, overwriting any prior
// object, and returns the public URL.
func (s *HTTPStore) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", &remote.Error{Kind: remote.KindPermanent, Op: "upload", Table: s.bucket, Err: err}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Cache-Control", "3600")
	req.Header.Set("x-upsert", "true")

	if err := s.do(req, "upload"); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, path), nil
}

// Delete removes the object behind a public URL. A URL outside this
// store's bucket, or an object that is already gone, is treated as
// success so record deletion can proceed.
func (s *HTTPStore) Delete(ctx context.Context, publicURL string) error {
	if publicURL == "" {
		return nil
	}

	marker := "/public/" + s.bucket + "/"
	idx := strings.Index(publicURL, marker)
	if idx < 0 {
		return nil
	}
	path := publicURL[idx+len(marker):]

	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return &remote.Error{Kind: remote.KindPermanent, Op: "delete", Table: s.bucket, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	err = s.do(req, "delete")
	var re *remote.Error
	if err != nil && errors.As(err, &re) && re.Status == http.StatusNotFound {
		// Already gone - the caller only cares that it no longer exists.
		return nil
	}
	return err
}

func (s *HTTPStore) do(req *http.Request, op string) error {
	resp, err := s.http.Do(req)
	if err != nil {
		return remote.Classify(req.Context(), op, s.bucket, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return remote.Classify(req.Context(), op, s.bucket, resp.StatusCode,
			fmt.Errorf("%s", strings.TrimSpace(string(body))))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
