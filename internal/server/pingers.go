package server

import (
	"context"
	"fmt"
	"net/http"
)

// PingFunc adapts a function to the Pinger interface. Store back ends with a
// Ping method (SQLite, Qdrant) are registered this way.
type PingFunc struct {
	Label string
	Fn    func(ctx context.Context) error
}

// Name returns the dependency label.
func (p PingFunc) Name() string { return p.Label }

// Ping calls Fn.
func (p PingFunc) Ping(ctx context.Context) error {
	if err := p.Fn(ctx); err != nil {
		return fmt.Errorf("%s unreachable: %w", p.Label, err)
	}
	return nil
}

// HTTPPinger probes an HTTP dependency, such as the completion endpoint or
// the Ollama embedder, with a GET. Any response below 500 counts as
// reachable, so endpoints that only accept POST still pass.
type HTTPPinger struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPPinger constructs an HTTPPinger. client may be nil.
func NewHTTPPinger(name, url string, client *http.Client) *HTTPPinger {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPinger{name: name, url: url, client: client}
}

// Name returns the dependency label.
func (p *HTTPPinger) Name() string { return p.name }

// Ping issues a GET against the configured URL.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s unreachable: %w", p.name, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s returned HTTP %d", p.name, resp.StatusCode)
	}
	return nil
}
