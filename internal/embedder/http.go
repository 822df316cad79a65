package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/54b3r/finrag-go/internal/version"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 4 << 10

// statusError is returned for non-2xx responses from an embedding backend.
type statusError struct {
	backend string
	status  int
	message string
}

func (e *statusError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("%s: %s", e.backend, e.message)
	}
	return fmt.Sprintf("%s: HTTP %d", e.backend, e.status)
}

// jsonCall posts in as JSON to url and decodes a 2xx body into out. On any
// other status, errMessage extracts a message from the raw body when it can.
type jsonCall struct {
	client     *http.Client
	backend    string
	header     http.Header
	errMessage func(body []byte) string
}

func (c *jsonCall) post(ctx context.Context, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", c.backend, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", c.backend, err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", c.backend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		se := &statusError{backend: c.backend, status: resp.StatusCode}
		if c.errMessage != nil {
			se.message = c.errMessage(body)
		}
		return se
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.backend, err)
	}
	return nil
}
