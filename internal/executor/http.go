package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nugget/tripwire/internal/eventbus"
	"github.com/nugget/tripwire/internal/httpkit"
)

// httpHandler performs an HTTP request with method, URL, headers, and
// a templated body, using the shared httpkit.NewClient transport
// (connection pooling, dial/TLS timeouts, User-Agent injection) so
// that HttpRequest actions get the same good-citizen defaults as
// every other outbound call.
type httpHandler struct {
	client *http.Client
}

func newHTTPHandler() *httpHandler {
	return &httpHandler{client: httpkit.NewClient()}
}

func (h *httpHandler) Handle(ctx context.Context, ev eventbus.Event, params map[string]any) (Result, error) {
	url, _ := params["url"].(string)
	if url == "" {
		return Result{}, fmt.Errorf("http_request action: missing required %q field", "url")
	}
	method, _ := params["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	body, _ := params["body"].(string)
	body = expandTemplate(body, ev)

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBufferString(body))
	if err != nil {
		return Result{}, fmt.Errorf("http_request action: %w", err)
	}

	if headers, ok := params["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, expandTemplate(s, ev))
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return Result{Success: false, Message: err.Error()}, nil
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		return Result{
			Success: false,
			Message: fmt.Sprintf("status %d: %s", resp.StatusCode, errBody),
		}, nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, captureCapBytes))
	message := string(respBody)
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		message = extractReadableText(message)
	}
	return Result{Success: true, Message: message}, nil
}
