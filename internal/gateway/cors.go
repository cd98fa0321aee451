// ABOUTME: CORS middleware wrapping every gateway route
// ABOUTME: Answers preflights with 204 and decorates responses with Access-Control headers

package gateway

import (
	"net/http"
	"slices"
	"strings"

	"github.com/2389/copilot-gateway/internal/config"
)

const wildcard = "*"

// corsMiddleware applies the configured CORS policy. An OPTIONS request
// carrying Access-Control-Request-Method is a preflight and never reaches
// the wrapped handler; a plain OPTIONS request is forwarded like any other method.
func corsMiddleware(cfg config.CORSConfig) func(http.Handler) http.Handler {
	methods := strings.Join(cfg.AllowMethods, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")
	anyOrigin := slices.Contains(cfg.AllowOrigins, wildcard)
	anyHeader := slices.Contains(cfg.AllowHeaders, wildcard)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()

			origin := r.Header.Get("Origin")
			switch {
			case anyOrigin:
				h.Set("Access-Control-Allow-Origin", wildcard)
			case origin != "" && slices.Contains(cfg.AllowOrigins, origin):
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Expose-Headers", requestIDHeader)

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Methods", methods)
			allowHeaders := headers
			if anyHeader {
				if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
					allowHeaders = requested
				}
			}
			if allowHeaders != "" {
				h.Set("Access-Control-Allow-Headers", allowHeaders)
			}
			h.Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
