package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HTTPOption customises an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient injects the underlying http.Client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if client != nil {
			c.http = client
		}
	}
}

// WithLogger injects the request logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(c *HTTPClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSessionToken sets the session token sent with every request.
func WithSessionToken(token string) HTTPOption {
	return func(c *HTTPClient) { c.sessionToken = token }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

const defaultRequestTimeout = 30 * time.Second

// HTTPClient talks JSON to the form service. Each semantic operation keeps
// its own in-flight latch so a slow server can never stack duplicate calls.
type HTTPClient struct {
	baseURL      string
	publicKey    string
	sessionToken string
	http         *http.Client
	logger       *slog.Logger
	timeout      time.Duration

	mu       sync.Mutex
	inFlight map[string]bool
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient constructs a client for the service rooted at baseURL,
// authenticated by the form's public key.
func NewHTTPClient(baseURL, publicKey string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		publicKey: publicKey,
		http:      &http.Client{},
		logger:    slog.Default(),
		timeout:   defaultRequestTimeout,
		inFlight:  map[string]bool{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// SetSessionToken replaces the session token after construction. The
// session owns token generation; the client only transmits it.
func (c *HTTPClient) SetSessionToken(token string) {
	c.mu.Lock()
	c.sessionToken = token
	c.mu.Unlock()
}

func (c *HTTPClient) SubmitPage(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	var out SubmitResult
	err := c.call(ctx, "submit", http.MethodPut, "page/submit", req, &out)
	return out, err
}

func (c *HTTPClient) FetchSchema(ctx context.Context, formID string) (SchemaResult, error) {
	var out SchemaResult
	err := c.call(ctx, "schema", http.MethodPost, "form/schema", map[string]any{"form_id": formID}, &out)
	return out, err
}

func (c *HTTPClient) Verify(ctx context.Context, fieldID, code string) (VerifyResult, error) {
	var out VerifyResult
	body := map[string]any{"fieldId": fieldID, "code": code}
	err := c.call(ctx, "verify", http.MethodPost, "verification/verify", body, &out)
	return out, err
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	var out struct {
		Success bool `json:"success"`
	}
	if err := c.call(ctx, "ping", http.MethodPut, "page/ping", map[string]any{}, &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("api: ping rejected")
	}
	return nil
}

// call performs one JSON request under the operation's in-flight latch.
func (c *HTTPClient) call(ctx context.Context, op, method, endpoint string, body, out any) error {
	if !c.acquire(op) {
		return fmt.Errorf("%w: %s", ErrCallInFlight, op)
	}
	defer c.release(op)

	reqCtx := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("api: encode %s request: %w", op, err)
	}

	url := c.baseURL + "/" + endpoint
	req, err := http.NewRequestWithContext(reqCtx, method, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("api: build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.publicKey)
	c.mu.Lock()
	if c.sessionToken != "" {
		req.Header.Set("X-Session-Id", c.sessionToken)
	}
	c.mu.Unlock()

	c.logger.Debug("api: request", "operation", op, "method", method, "url", url)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	c.logger.Debug("api: response", "operation", op, "status", resp.Status)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("api: %s: unexpected status %s", op, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: read %s response: %w", op, err)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("api: decode %s response: %w", op, err)
	}
	return nil
}

func (c *HTTPClient) acquire(op string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[op] {
		return false
	}
	c.inFlight[op] = true
	return true
}

func (c *HTTPClient) release(op string) {
	c.mu.Lock()
	delete(c.inFlight, op)
	c.mu.Unlock()
}
