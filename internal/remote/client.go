// Package remote runs Shared tasks on a peer supertask server through its
// invoke endpoint.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/me/supertask/internal/capability"
	"github.com/me/supertask/internal/task"
	"github.com/me/supertask/pkg/model"
)

// DefaultTimeout bounds one remote invocation, including the peer's wait for
// the task's callback.
const DefaultTimeout = 30 * time.Second

// Client talks to a peer supertask server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout changes the per-invocation timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates a client for the peer at baseURL with connection pooling.
func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout: DefaultTimeout,
		logger:  logger.With("component", "remote", "peer", baseURL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the peer's address.
func (c *Client) BaseURL() string { return c.baseURL }

// Invoke runs name on the peer and waits for its callback. A task failure
// reported by the peer is returned as the result's Error, not as err.
func (c *Client) Invoke(ctx context.Context, name string, args []any, data map[string]any) (model.InvokeResult, error) {
	body, err := json.Marshal(model.InvokeRequest{Args: args, Context: data})
	if err != nil {
		return model.InvokeResult{}, fmt.Errorf("invoke %s: marshal request: %w", name, err)
	}

	path := "/api/v1/tasks/" + url.PathEscape(name) + "/invoke?timeout=" + c.timeout.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return model.InvokeResult{}, fmt.Errorf("invoke %s: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("remote invoke", "task", name, "args", len(args))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.InvokeResult{}, fmt.Errorf("invoke %s: %w", name, err)
	}

	var res model.InvokeResult
	if err := decodeResponseData(resp, &res); err != nil {
		return model.InvokeResult{}, fmt.Errorf("invoke %s: %w", name, err)
	}
	return res, nil
}

// Handler returns a task.Handler that forwards every invocation to the
// peer's task of the same name. Only plain-data context entries are sent;
// host identity values stay local.
func (c *Client) Handler() task.Handler {
	return func(name string, ctx capability.Context, args []any, done task.Callback) {
		data := ctx.Data()
		delete(data, capability.KeyDirname)
		delete(data, capability.KeyFilename)
		plainArgs := make([]any, len(args))
		for i, a := range args {
			plainArgs[i], _ = capability.Plain(a)
		}

		go func() {
			rctx, cancel := context.WithTimeout(context.Background(), c.timeout+5*time.Second)
			defer cancel()
			res, err := c.Invoke(rctx, name, plainArgs, data)
			if err != nil {
				c.logger.Warn("remote invoke failed", "task", name, "error", err)
				done(err)
				return
			}
			if res.Error != "" {
				done(errors.New(res.Error), res.Results...)
				return
			}
			done(nil, res.Results...)
		}()
	}
}

// decodeResponseData extracts the data field from the API response envelope.
func decodeResponseData(resp *http.Response, dest any) error {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var envelope struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *model.APIError `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, raw)
	}
	return json.Unmarshal(envelope.Data, dest)
}
