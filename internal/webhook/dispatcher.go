package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request is the transport-agnostic webhook request descriptor built by the
// engine: the engine resolves the payload and fills in url/method, the
// dispatcher owns the actual network call.
type Request struct {
	URL     string         `json:"url"`
	Method  string         `json:"method"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Response is the dispatcher's view of the webhook call outcome.
type Response struct {
	StatusCode int            `json:"status_code"`
	Body       map[string]any `json:"response,omitempty"`
}

// Dispatcher performs the webhook transport on behalf of the engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (*Response, error)
}

const (
	defaultTimeout         = 30 * time.Second
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
)

// HTTPDispatcher sends webhook requests over net/http with a timeout and a
// response body size cap.
type HTTPDispatcher struct {
	client          *http.Client
	maxResponseBody int64
}

// HTTPDispatcherConfig configures the HTTP dispatcher. Zero values fall
// back to the defaults.
type HTTPDispatcherConfig struct {
	Timeout         time.Duration
	MaxResponseBody int64
}

// NewHTTPDispatcher creates a Dispatcher backed by a shared http.Client.
func NewHTTPDispatcher(cfg HTTPDispatcherConfig) *HTTPDispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBody := cfg.MaxResponseBody
	if maxBody <= 0 {
		maxBody = defaultMaxResponseBody
	}
	return &HTTPDispatcher{
		client:          &http.Client{Timeout: timeout},
		maxResponseBody: maxBody,
	}
}

// Dispatch sends the request with a JSON body and decodes the JSON response
// if there is one. Non-JSON responses are returned under the "raw" key.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if req.Payload != nil {
		encoded, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode webhook payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	if req.Payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("webhook call %s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, d.maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read webhook response: %w", err)
	}

	out := &Response{StatusCode: resp.StatusCode}
	if len(raw) > 0 {
		var decoded map[string]any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			out.Body = decoded
		} else {
			out.Body = map[string]any{"raw": string(raw)}
		}
	}
	return out, nil
}

// StaticDispatcher acknowledges every webhook without touching the network.
// It is the engine default when no transport is configured.
type StaticDispatcher struct{}

// NewStaticDispatcher creates the no-op dispatcher.
func NewStaticDispatcher() *StaticDispatcher {
	return &StaticDispatcher{}
}

// Dispatch reports a successful delivery unconditionally.
func (d *StaticDispatcher) Dispatch(_ context.Context, _ Request) (*Response, error) {
	return &Response{
		StatusCode: 200,
		Body:       map[string]any{"success": true},
	}, nil
}
