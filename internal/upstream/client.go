// Package upstream talks to an OpenAI compatible chat-completions API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/schmackofatz/recipes/internal/prompt"
	"github.com/schmackofatz/recipes/internal/relay"
)

const maxErrorBody = 64 * 1024

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string
	// HeaderTimeout bounds the wait for response headers. The body itself is
	// not time limited.
	HeaderTimeout time.Duration
	// HTTPClient overrides the client built from the fields above.
	HTTPClient *http.Client
}

// Client opens streamed chat completions. It implements relay.Transport.
type Client struct {
	apiKey   string
	endpoint string
	hc       *http.Client
}

var _ relay.Transport = (*Client)(nil)

// New returns a Client for cfg.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.DialContext = (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext
		tr.ResponseHeaderTimeout = cfg.HeaderTimeout
		hc = &http.Client{Transport: tr}
	}
	return &Client{
		apiKey:   cfg.APIKey,
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		hc:       hc,
	}
}

// Open posts payload and returns the streamed response body. Non-2xx
// responses are returned as *relay.TransportError.
func (c *Client) Open(ctx context.Context, payload prompt.Payload) (io.ReadCloser, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, &relay.TransportError{Op: "open", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &relay.TransportError{Op: "open", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

type errorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func statusError(resp *http.Response) error {
	te := &relay.TransportError{Op: "open", StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error != nil && env.Error.Message != "" {
		te.Message = env.Error.Message
		if env.Error.Type != "" {
			te.Message = env.Error.Type + ": " + te.Message
		}
		return te
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		if len(s) > 200 {
			s = s[:200]
		}
		te.Message = s
	} else {
		te.Message = http.StatusText(resp.StatusCode)
	}
	return te
}
