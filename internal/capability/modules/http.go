package modules

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTP performs blocking requests. The secure variant only accepts https URLs.
type HTTP struct {
	client *http.Client
	secure bool
}

// Get fetches rawURL.
func (h *HTTP) Get(rawURL string) (map[string]any, error) {
	return h.Request(http.MethodGet, rawURL, "", nil)
}

// Request sends a request and returns {status, headers, body}.
func (h *HTTP) Request(method, rawURL, body string, headers map[string]string) (map[string]any, error) {
	if h.secure && !strings.HasPrefix(rawURL, "https://") {
		return nil, fmt.Errorf("https: refusing non-https URL %q", rawURL)
	}
	if method == "" {
		method = http.MethodGet
	}
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(strings.ToUpper(method), rawURL, r)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	hdr := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		hdr[strings.ToLower(k)] = resp.Header.Get(k)
	}
	return map[string]any{
		"status":  resp.StatusCode,
		"headers": hdr,
		"body":    string(data),
	}, nil
}
