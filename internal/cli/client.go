package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/me/supertask/pkg/model"
)

const apiPrefix = "/api/v1"

// Client talks to the task and engine routes of a supertask server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates a supertask API client.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		Logger:     logger,
	}
}

// apiResponse is the parsed envelope.
type apiResponse struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

// ListTasks returns one page of registered tasks.
func (c *Client) ListTasks(ctx context.Context, opts model.ListOptions) ([]model.TaskInfo, *model.Pagination, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(opts.Limit))
	q.Set("offset", strconv.Itoa(opts.Offset))
	if opts.Kind != "" {
		q.Set("kind", string(opts.Kind))
	}
	var tasks []model.TaskInfo
	resp, err := c.call(ctx, http.MethodGet, apiPrefix+"/tasks?"+q.Encode(), nil, &tasks)
	if err != nil {
		return nil, nil, err
	}
	return tasks, resp.Pagination, nil
}

// Task returns one task by name.
func (c *Client) Task(ctx context.Context, name string) (model.TaskInfo, error) {
	var t model.TaskInfo
	_, err := c.call(ctx, http.MethodGet, taskPath(name, ""), nil, &t)
	return t, err
}

// RegisterTask registers foreign source on the server.
func (c *Client) RegisterTask(ctx context.Context, req model.RegisterRequest) (model.TaskInfo, error) {
	var t model.TaskInfo
	_, err := c.call(ctx, http.MethodPost, apiPrefix+"/tasks", req, &t)
	return t, err
}

// InvokeTask runs a task on the server. The server waits up to timeout for
// the task's callback; a task failure comes back in InvokeResult.Error.
func (c *Client) InvokeTask(ctx context.Context, name string, req model.InvokeRequest, timeout time.Duration) (model.InvokeResult, error) {
	path := taskPath(name, "/invoke")
	if timeout > 0 {
		path += "?timeout=" + url.QueryEscape(timeout.String())
	}
	var res model.InvokeResult
	_, err := c.call(ctx, http.MethodPost, path, req, &res)
	return res, err
}

// RemoveTask unregisters a task.
func (c *Client) RemoveTask(ctx context.Context, name string) error {
	_, err := c.call(ctx, http.MethodDelete, taskPath(name, ""), nil, nil)
	return err
}

// Engine returns the server's engine tunables and load.
func (c *Client) Engine(ctx context.Context) (model.EngineInfo, error) {
	var info model.EngineInfo
	_, err := c.call(ctx, http.MethodGet, apiPrefix+"/engine", nil, &info)
	return info, err
}

// UpdateEngine changes engine tunables and returns the resulting settings.
func (c *Client) UpdateEngine(ctx context.Context, u model.EngineUpdate) (model.EngineInfo, error) {
	var info model.EngineInfo
	_, err := c.call(ctx, http.MethodPut, apiPrefix+"/engine", u, &info)
	return info, err
}

// call performs a request and decodes the envelope's data into dest, when
// dest is non-nil. An error envelope is returned as *model.APIError.
func (c *Client) call(ctx context.Context, method, path string, body, dest any) (*apiResponse, error) {
	target := c.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
		c.Logger.Debug("HTTP request body", "body", string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.Logger.Debug("HTTP request", "method", method, "url", target)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.Logger.Debug("HTTP response", "status", resp.StatusCode, "request_id", resp.Header.Get("X-Request-ID"))

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response (status %d): %w\nbody: %s", resp.StatusCode, err, string(respBody))
	}
	if apiResp.Status == "error" && apiResp.Error != nil {
		return &apiResp, apiResp.Error
	}
	if dest != nil && len(apiResp.Data) > 0 {
		if err := json.Unmarshal(apiResp.Data, dest); err != nil {
			return &apiResp, fmt.Errorf("parse response data: %w", err)
		}
	}
	return &apiResp, nil
}

// taskPath returns the API path of a task, with name escaped.
func taskPath(name string, suffix string) string {
	return apiPrefix + "/tasks/" + url.PathEscape(name) + suffix
}
