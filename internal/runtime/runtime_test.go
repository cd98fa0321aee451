// ABOUTME: Tests for the execution context, dispatcher, and HTTP runtime
// ABOUTME: Uses an httptest runtime to check forwarded method, headers, and body

package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/copilot-gateway/internal/normalize"
)

func TestNewExecutionContext(t *testing.T) {
	h := http.Header{}
	ec := NewExecutionContext(h, ContextConfig{})
	assert.Equal(t, "anonymous", ec.UserID())
	assert.Equal(t, "celsius", ec[KeyTemperatureScale])

	h.Set("X-User-ID", "user-42")
	ec = NewExecutionContext(h, ContextConfig{})
	assert.Equal(t, "user-42", ec.UserID())

	h.Set("X-Caller", "svc")
	ec = NewExecutionContext(h, ContextConfig{UserHeader: "X-Caller", AnonymousUser: "nobody", TemperatureScale: "fahrenheit"})
	assert.Equal(t, "svc", ec.UserID())
	assert.Equal(t, "fahrenheit", ec[KeyTemperatureScale])

	ec = NewExecutionContext(http.Header{}, ContextConfig{AnonymousUser: "nobody"})
	assert.Equal(t, "nobody", ec.UserID())

	assert.JSONEq(t, `{"user-id":"nobody","temperature-scale":"celsius"}`, ec.Encode())
}

type recordingRuntime struct {
	req  *http.Request
	body string
	inv  Invocation
	resp *http.Response
	err  error
}

func (r *recordingRuntime) Handle(_ context.Context, req *http.Request, inv Invocation) (*http.Response, error) {
	r.req = req
	b, _ := io.ReadAll(req.Body)
	r.body = string(b)
	r.inv = inv
	return r.resp, r.err
}

func testInbound() *normalize.Inbound {
	return &normalize.Inbound{
		Method: http.MethodPost,
		URL:    &url.URL{Scheme: "https", Host: "gateway.test", Path: "/copilotkit", RawQuery: "t=1"},
		Header: http.Header{
			"Content-Type":   []string{"multipart/form-data; boundary=xyz"},
			"Content-Length": []string{"9999"},
			"X-User-Id":      []string{"u1"},
			"Authorization":  []string{"Bearer abc"},
		},
	}
}

func TestDispatch_BuildsCanonicalRequest(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusTeapot, Body: io.NopCloser(strings.NewReader("brewing"))}
	rt := &recordingRuntime{resp: resp}
	d := NewDispatcher(rt, "pdfQuestionAgent", []string{"pdfQuestionAgent", "textQuestionAgent"})

	in := testInbound()
	payload := &normalize.Payload{Body: []byte(`{"messages":"[]"}`)}
	ec := NewExecutionContext(in.Header, ContextConfig{})

	got, err := d.Dispatch(context.Background(), in, payload, ec)
	require.NoError(t, err)
	assert.Same(t, resp, got, "the runtime response is returned untouched")

	assert.Equal(t, http.MethodPost, rt.req.Method)
	assert.Equal(t, "https://gateway.test/copilotkit?t=1", rt.req.URL.String())
	assert.Equal(t, "application/json", rt.req.Header.Get("Content-Type"))
	assert.Empty(t, rt.req.Header.Get("Content-Length"))
	assert.Equal(t, int64(len(payload.Body)), rt.req.ContentLength)
	assert.Equal(t, "Bearer abc", rt.req.Header.Get("Authorization"))
	assert.Equal(t, `{"messages":"[]"}`, rt.body)

	assert.Equal(t, "pdfQuestionAgent", rt.inv.ResourceID)
	assert.Equal(t, "u1", rt.inv.Context.UserID())
	assert.Equal(t, "multipart/form-data; boundary=xyz", in.Header.Get("Content-Type"), "inbound headers are not modified")
}

func TestDispatch_RuntimeError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	d := NewDispatcher(&recordingRuntime{err: cause}, "pdfQuestionAgent", nil)

	_, err := d.Dispatch(context.Background(), testInbound(), &normalize.Payload{Body: []byte(`{}`)}, ExecutionContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRuntime)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause.Error(), err.Error(), "error text is passed through unchanged")
}

func TestHTTPRuntime_Forwards(t *testing.T) {
	var got struct {
		method, path, query, body string
		header                    http.Header
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.RawQuery
		got.header = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		got.body = string(b)

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("data: ok\n\n"))
	}))
	defer srv.Close()

	rt, err := NewHTTPRuntime(srv.URL+"/agents/run?v=2", 0, nil)
	require.NoError(t, err)
	d := NewDispatcher(rt, "pdfQuestionAgent", []string{"pdfQuestionAgent", "textQuestionAgent"})

	in := testInbound()
	in.Header.Set("Connection", "keep-alive")
	ec := NewExecutionContext(in.Header, ContextConfig{})

	resp, err := d.Dispatch(context.Background(), in, &normalize.Payload{Body: []byte(`{"a":"b"}`)}, ec)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "data: ok\n\n", string(body))

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/agents/run", got.path)
	assert.Equal(t, "v=2&t=1", got.query)
	assert.Equal(t, `{"a":"b"}`, got.body)
	assert.Equal(t, "application/json", got.header.Get("Content-Type"))
	assert.Equal(t, "Bearer abc", got.header.Get("Authorization"))
	assert.Equal(t, "pdfQuestionAgent", got.header.Get(HeaderResourceID))
	assert.Equal(t, "pdfQuestionAgent,textQuestionAgent", got.header.Get(HeaderAgents))
	assert.Equal(t, "gateway.test", got.header.Get("X-Forwarded-Host"))
	assert.Equal(t, "https", got.header.Get("X-Forwarded-Proto"))

	var ctxHeader map[string]string
	require.NoError(t, json.Unmarshal([]byte(got.header.Get(HeaderContext)), &ctxHeader))
	assert.Equal(t, "u1", ctxHeader[KeyUserID])
	assert.Equal(t, "celsius", ctxHeader[KeyTemperatureScale])
}

func TestHTTPRuntime_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	rt, err := NewHTTPRuntime(endpoint, 0, nil)
	require.NoError(t, err)
	d := NewDispatcher(rt, "pdfQuestionAgent", nil)

	_, err = d.Dispatch(context.Background(), testInbound(), &normalize.Payload{Body: []byte(`{}`)}, ExecutionContext{})
	assert.ErrorIs(t, err, ErrRuntime)
}

func TestNewHTTPRuntime_RejectsRelative(t *testing.T) {
	_, err := NewHTTPRuntime("/copilotkit", 0, nil)
	assert.Error(t, err)
}
