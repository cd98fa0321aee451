// ABOUTME: Per-request execution context handed to the agent runtime
// ABOUTME: Carries the caller identity and the fixed unit preference

package runtime

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Execution context keys.
const (
	KeyUserID           = "user-id"
	KeyTemperatureScale = "temperature-scale"
)

// ContextConfig controls how NewExecutionContext fills in values.
type ContextConfig struct {
	UserHeader       string // default X-User-ID
	AnonymousUser    string // default anonymous
	TemperatureScale string // default celsius
}

// ExecutionContext is advisory metadata for the runtime. It is built fresh for
// every request and never validated here.
type ExecutionContext map[string]string

// NewExecutionContext builds the context for one request.
func NewExecutionContext(h http.Header, cfg ContextConfig) ExecutionContext {
	header := cfg.UserHeader
	if header == "" {
		header = "X-User-ID"
	}
	anon := cfg.AnonymousUser
	if anon == "" {
		anon = "anonymous"
	}
	scale := cfg.TemperatureScale
	if scale == "" {
		scale = "celsius"
	}

	user := strings.TrimSpace(h.Get(header))
	if user == "" {
		user = anon
	}

	return ExecutionContext{
		KeyUserID:           user,
		KeyTemperatureScale: scale,
	}
}

// UserID returns the caller identity.
func (c ExecutionContext) UserID() string {
	return c[KeyUserID]
}

// Encode returns the context as a compact JSON object.
func (c ExecutionContext) Encode() string {
	b, err := json.Marshal(map[string]string(c))
	if err != nil {
		return "{}"
	}
	return string(b)
}
