package kub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"
)

const requestTimeout = 10 * time.Second

// sessionTTL is how long a provider session is considered live after
// authentication.
const sessionTTL = 15 * time.Minute

// session wraps an HTTP client scoped to one refresh cycle. The cookie jar
// carries the provider's session cookies; the whole thing is discarded when
// the cycle ends.
type session struct {
	client  *http.Client
	started time.Time
}

func openSession() (*session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	return &session{
		client: &http.Client{
			Timeout: requestTimeout,
			Jar:     jar,
		},
	}, nil
}

// Active reports whether the session was authenticated within the TTL.
func (s *session) Active() bool {
	if s.started.IsZero() {
		return false
	}
	return time.Since(s.started) < sessionTTL
}

// Close releases the session. Idle connections are shut down so nothing
// leaks across refresh cycles.
func (s *session) Close() {
	s.client.CloseIdleConnections()
	s.client = nil
}

// get performs an authenticated GET and decodes the JSON response into out.
func (s *session) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned status %d: %s", url, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return nil
}

// post sends a JSON payload and returns the response status code. The body
// is drained and discarded; callers only care about the status.
func (s *session) post(ctx context.Context, url string, payload any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
