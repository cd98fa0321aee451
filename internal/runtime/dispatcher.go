// ABOUTME: Builds the outbound runtime request from the canonical payload
// ABOUTME: Keeps method, URL and headers, forces JSON content type, and returns the runtime response as is

package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/2389/copilot-gateway/internal/normalize"
)

// ErrRuntime marks a failure to get any response from the runtime.
var ErrRuntime = errors.New("agent runtime error")

// Invocation tells the runtime which resource and agents handle a request.
type Invocation struct {
	ResourceID string
	Agents     []string
	Context    ExecutionContext
}

// Runtime handles a canonical request and returns an HTTP-shaped response,
// possibly streamed.
type Runtime interface {
	Handle(ctx context.Context, req *http.Request, inv Invocation) (*http.Response, error)
}

// runtimeError keeps the runtime's message unchanged while matching ErrRuntime.
type runtimeError struct {
	err error
}

func (e *runtimeError) Error() string        { return e.err.Error() }
func (e *runtimeError) Unwrap() error        { return e.err }
func (e *runtimeError) Is(target error) bool { return target == ErrRuntime }

// Dispatcher forwards normalized requests to a Runtime.
type Dispatcher struct {
	runtime    Runtime
	resourceID string
	agents     []string
}

// NewDispatcher creates a dispatcher for the given resource and agent names.
func NewDispatcher(rt Runtime, resourceID string, agents []string) *Dispatcher {
	return &Dispatcher{runtime: rt, resourceID: resourceID, agents: agents}
}

// Dispatch sends payload to the runtime. The response is returned untouched;
// the caller owns its body.
func (d *Dispatcher) Dispatch(ctx context.Context, in *normalize.Inbound, p *normalize.Payload, ec ExecutionContext) (*http.Response, error) {
	req, err := BuildRequest(ctx, in, p)
	if err != nil {
		return nil, err
	}

	resp, err := d.runtime.Handle(ctx, req, Invocation{
		ResourceID: d.resourceID,
		Agents:     d.agents,
		Context:    ec,
	})
	if err != nil {
		return nil, &runtimeError{err: err}
	}
	return resp, nil
}

// BuildRequest creates the canonical outbound request: original method and URL,
// all original headers, Content-Type forced to application/json.
func BuildRequest(ctx context.Context, in *normalize.Inbound, p *normalize.Payload) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, in.Method, in.URL.String(), bytes.NewReader(p.Body))
	if err != nil {
		return nil, fmt.Errorf("building runtime request: %w", err)
	}

	req.Header = in.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Del("Content-Length")
	req.ContentLength = int64(len(p.Body))
	req.Host = in.URL.Host

	return req, nil
}
