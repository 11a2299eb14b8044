// Package cache invalidates the dashboard edge cache when stored
// activities or settings change.
package cache

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Invalidator defines a cache invalidation contract. Keys are opaque
// to the edge cache: activity IDs or settings paths.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// NoopInvalidator is a no-op implementation.
type NoopInvalidator struct{}

// Invalidate performs no action.
func (NoopInvalidator) Invalidate(context.Context, ...string) error { return nil }

// HTTPInvalidator purges keys from an upstream edge cache over HTTP.
type HTTPInvalidator struct {
	client *http.Client
	url    string
	token  string
}

// NewHTTPInvalidator constructs an HTTPInvalidator.
func NewHTTPInvalidator(endpoint, token string, timeout time.Duration) *HTTPInvalidator {
	return &HTTPInvalidator{
		client: &http.Client{Timeout: timeout},
		url:    strings.TrimRight(endpoint, "/"),
		token:  token,
	}
}

// Invalidate posts the keys as one newline-separated batch. Blank
// keys are dropped; an all-blank batch is a no-op.
func (h *HTTPInvalidator) Invalidate(ctx context.Context, keys ...string) error {
	batch := make([]string, 0, len(keys))
	for _, key := range keys {
		if k := strings.TrimSpace(key); k != "" {
			batch = append(batch, k)
		}
	}
	if len(batch) == 0 {
		return nil
	}

	body := strings.NewReader(strings.Join(batch, "\n"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &InvalidationError{Status: resp.StatusCode, Keys: len(batch)}
	}
	return nil
}

// InvalidationError represents a non-successful invalidation response.
type InvalidationError struct {
	Status int
	Keys   int
}

func (e *InvalidationError) Error() string {
	return fmt.Sprintf("cache invalidation of %d keys failed with status %d", e.Keys, e.Status)
}
