package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"chat-relay/errors"
)

// HTTPStore talks to a restdb-style credential service: GET with a JSON
// query parameter for lookups, POST for creation, an API key header on
// every call. Result emptiness is the success signal for lookups.
type HTTPStore struct {
	base   string
	apiKey string
	client *http.Client
	log    *slog.Logger
}

// NewHTTPStore builds a store client for the service at baseURL. The
// timeout bounds each individual call; there is no retry.
func NewHTTPStore(log *slog.Logger, baseURL, apiKey string, timeout time.Duration) *HTTPStore {
	return &HTTPStore{
		base:   baseURL,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

func (s *HTTPStore) Exists(ctx context.Context, username string) (bool, error) {
	n, err := s.count(ctx, map[string]any{"username": username})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *HTTPStore) Match(ctx context.Context, username, digest string) (bool, error) {
	query := map[string]any{
		"$and": []map[string]string{
			{"username": username},
			{"password": digest},
		},
	}
	n, err := s.count(ctx, query)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *HTTPStore) Create(ctx context.Context, username, digest string) error {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": digest,
	})
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: create returned %d", errors.ErrStoreUnavailable, resp.StatusCode)
	}
	return nil
}

// count runs a query and returns the size of the result set. Any
// transport failure or body that is not a JSON array counts as the store
// being unavailable.
func (s *HTTPStore) count(ctx context.Context, query any) (int, error) {
	q, err := json.Marshal(query)
	if err != nil {
		return 0, fmt.Errorf("encoding query: %w", err)
	}

	target := s.base + "?q=" + url.QueryEscape(string(q))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: lookup returned %d", errors.ErrStoreUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	var results []json.RawMessage
	if err := json.Unmarshal(body, &results); err != nil {
		return 0, fmt.Errorf("%w: malformed response body", errors.ErrStoreUnavailable)
	}
	return len(results), nil
}

func (s *HTTPStore) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-apikey", s.apiKey)
	req.Header.Set("Cache-Control", "no-cache")
}
