// ABOUTME: HTTP implementation of the agent runtime
// ABOUTME: Forwards the canonical request to the runtime endpoint with invocation headers

package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Headers added to every forwarded request.
const (
	HeaderResourceID = "X-Runtime-Resource-Id"
	HeaderAgents     = "X-Runtime-Agents"
	HeaderContext    = "X-Runtime-Context"
)

// hopHeaders are connection-level headers that must not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// HTTPRuntime sends requests to a runtime listening on an HTTP endpoint.
type HTTPRuntime struct {
	endpoint *url.URL
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPRuntime creates a runtime client. timeout of zero means no deadline.
func NewHTTPRuntime(endpoint string, timeout time.Duration, logger *slog.Logger) (*HTTPRuntime, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing runtime endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("runtime endpoint %q must be an absolute URL", endpoint)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPRuntime{
		endpoint: u,
		client: &http.Client{
			Timeout: timeout,
			// The runtime's redirects belong to the caller.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}, nil
}

// Handle forwards req to the endpoint, keeping the original query string.
func (h *HTTPRuntime) Handle(ctx context.Context, req *http.Request, inv Invocation) (*http.Response, error) {
	target := *h.endpoint
	if req.URL.RawQuery != "" {
		if target.RawQuery != "" {
			target.RawQuery += "&" + req.URL.RawQuery
		} else {
			target.RawQuery = req.URL.RawQuery
		}
	}

	out := req.Clone(ctx)
	out.URL = &target
	out.Host = target.Host
	out.RequestURI = ""

	for _, name := range hopHeaders {
		out.Header.Del(name)
	}
	out.Header.Set(HeaderResourceID, inv.ResourceID)
	out.Header.Set(HeaderAgents, strings.Join(inv.Agents, ","))
	out.Header.Set(HeaderContext, inv.Context.Encode())
	out.Header.Set("X-Forwarded-Host", req.URL.Host)
	if req.URL.Scheme != "" {
		out.Header.Set("X-Forwarded-Proto", req.URL.Scheme)
	}

	start := time.Now()
	resp, err := h.client.Do(out)
	if err != nil {
		return nil, err
	}

	h.logger.Debug("runtime responded",
		"status", resp.StatusCode,
		"resource", inv.ResourceID,
		"duration", time.Since(start),
	)
	return resp, nil
}
