// ABOUTME: Inbound request snapshot taken from the HTTP handler
// ABOUTME: Captures method, headers, body, and the absolute target URL

package normalize

import (
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Inbound is the request as received by the gateway route.
// The body is consumed by Normalize; everything else is read-only.
type Inbound struct {
	Method string
	URL    *url.URL // absolute
	Header http.Header
	Body   io.Reader
}

// FromHTTP snapshots r. The URL scheme comes from TLS or X-Forwarded-Proto,
// the host from the Host header.
func FromHTTP(r *http.Request) *Inbound {
	u := *r.URL
	u.Scheme = requestScheme(r)
	u.Host = r.Host
	u.User = nil

	return &Inbound{
		Method: r.Method,
		URL:    &u,
		Header: r.Header,
		Body:   r.Body,
	}
}

// ContentType returns the lower-cased Content-Type header, parameters included.
func (in *Inbound) ContentType() string {
	return strings.ToLower(in.Header.Get("Content-Type"))
}

func requestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
