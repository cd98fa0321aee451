// ABOUTME: End-to-end tests for the copilot route through normalization, upload, and dispatch
// ABOUTME: Verifies runtime passthrough, error mapping, request ids, and recorded telemetry

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/2389/copilot-gateway/internal/auth"
	"github.com/2389/copilot-gateway/internal/runtime"
	"github.com/2389/copilot-gateway/internal/store"
)

const pdfMessages = `[{"role":"user","content":"hi","experimental_attachments":[{"name":"f1","contentType":"application/pdf"}]}]`

// multipartRequest builds a form submission with one PDF file part per name in files.
func multipartRequest(t *testing.T, messages string, files ...string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("messages", messages))
	require.NoError(t, w.WriteField("threadId", "thread-7"))
	for _, name := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+name+`"; filename="`+name+`.pdf"`)
		h.Set("Content-Type", "application/pdf")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-1.4 test"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/copilotkit?debug=1", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(gw *Gateway, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body["error"]
}

func listRecorded(t *testing.T, gw *Gateway) []*store.RequestRecord {
	t.Helper()
	records, err := gw.store.ListRequests(context.Background(), 10)
	require.NoError(t, err)
	return records
}

func TestCopilot_MultipartPDFEndToEnd(t *testing.T) {
	gw, up, rt := newTestGateway(t)

	req := multipartRequest(t, pdfMessages, "f1")
	req.Header.Set("X-User-ID", "alice")
	rec := serve(gw, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "runtime says hi", rec.Body.String())
	assert.Equal(t, "trace-1", rec.Header().Get("X-Runtime-Trace"))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	assert.Equal(t, 1, up.Calls())

	reqs := rt.Requests()
	require.Len(t, reqs, 1)
	got := reqs[0]

	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "debug=1", got.Query)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "pdfQuestionAgent", got.Header.Get(runtime.HeaderResourceID))
	assert.JSONEq(t, `{"user-id":"alice","temperature-scale":"celsius"}`, got.Header.Get(runtime.HeaderContext))

	msgs := gjson.GetBytes(got.Body, "messages")
	require.Equal(t, gjson.String, msgs.Type, "messages travels as a JSON string")
	assert.JSONEq(t, `[{"role":"user","content":"hi\nAnalyze this PDF: https://store/x"}]`, msgs.Str)
	assert.Equal(t, "thread-7", gjson.GetBytes(got.Body, "threadId").String())

	records := listRecorded(t, gw)
	require.Len(t, records, 1)
	assert.Equal(t, store.StatusForwarded, records[0].Status)
	assert.Equal(t, "alice", records[0].UserID)
	assert.Equal(t, "form", records[0].Branch)
	assert.Equal(t, 1, records[0].Uploaded)
	assert.Equal(t, http.StatusOK, records[0].RuntimeStatus)

	uploads, err := gw.store.ListUploads(context.Background(), records[0].RequestID)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, "f1", uploads[0].AttachmentName)
	assert.Equal(t, "https://store/x", uploads[0].URL)
}

func TestCopilot_JSONPassthrough(t *testing.T) {
	gw, up, rt := newTestGateway(t)

	req := httptest.NewRequest(http.MethodPost, "/copilotkit", strings.NewReader(`{"messages": [ {"role":"user","content":"hello"} ]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(gw, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, up.Calls())

	reqs := rt.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, `{"messages":[{"role":"user","content":"hello"}]}`, string(reqs[0].Body))
	assert.JSONEq(t, `{"user-id":"anonymous","temperature-scale":"celsius"}`, reqs[0].Header.Get(runtime.HeaderContext))
}

func TestCopilot_RuntimeStatusIsForwarded(t *testing.T) {
	up := newFakeUploadServer(t, "https://store/x", http.StatusOK)
	rt := newFakeRuntimeServer(t, http.StatusTeapot, "short and stout")
	gw := newTestGatewayWith(t, testConfig(t, up.URL, rt.URL))

	req := httptest.NewRequest(http.MethodPost, "/copilotkit", strings.NewReader(`{}`))
	rec := serve(gw, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestCopilot_MalformedJSON(t *testing.T) {
	gw, _, rt := newTestGateway(t)

	req := httptest.NewRequest(http.MethodPost, "/copilotkit", strings.NewReader(`{"messages": [`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(gw, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decodeError(t, rec))
	assert.Empty(t, rt.Requests(), "runtime must not be called")

	records := listRecorded(t, gw)
	require.Len(t, records, 1)
	assert.Equal(t, store.StatusRejected, records[0].Status)
	assert.NotEmpty(t, records[0].Error)
}

func TestCopilot_BodyTooLarge(t *testing.T) {
	up := newFakeUploadServer(t, "https://store/x", http.StatusOK)
	rt := newFakeRuntimeServer(t, http.StatusOK, "never")
	cfg := testConfig(t, up.URL, rt.URL)
	cfg.Server.MaxBodyBytes = 16
	gw := newTestGatewayWith(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/copilotkit", strings.NewReader(`{"messages":[{"content":"this is far too long"}]}`))
	rec := serve(gw, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, rt.Requests())
}

func TestCopilot_MalformedMessagesField(t *testing.T) {
	gw, up, rt := newTestGateway(t)

	rec := serve(gw, multipartRequest(t, `{"not":"an array"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, up.Calls())
	assert.Empty(t, rt.Requests())
}

func TestCopilot_MissingFileIsSkipped(t *testing.T) {
	gw, up, rt := newTestGateway(t)

	rec := serve(gw, multipartRequest(t, pdfMessages))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, up.Calls())

	reqs := rt.Requests()
	require.Len(t, reqs, 1)
	msgs := gjson.GetBytes(reqs[0].Body, "messages").Str
	assert.JSONEq(t, `[{"role":"user","content":"hi"}]`, msgs)

	records := listRecorded(t, gw)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Skipped)
}

func TestCopilot_UploadFailure(t *testing.T) {
	up := newFakeUploadServer(t, "", http.StatusServiceUnavailable)
	rt := newFakeRuntimeServer(t, http.StatusOK, "never")
	gw := newTestGatewayWith(t, testConfig(t, up.URL, rt.URL))

	rec := serve(gw, multipartRequest(t, pdfMessages, "f1"))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decodeError(t, rec), "503")
	assert.Empty(t, rt.Requests(), "runtime must not be called after a failed upload")

	records := listRecorded(t, gw)
	require.Len(t, records, 1)
	assert.Equal(t, store.StatusUploadFailed, records[0].Status)
}

func TestCopilot_RuntimeUnreachable(t *testing.T) {
	up := newFakeUploadServer(t, "https://store/x", http.StatusOK)
	rt := newFakeRuntimeServer(t, http.StatusOK, "never")
	rt.Close()
	gw := newTestGatewayWith(t, testConfig(t, up.URL, rt.URL))

	req := httptest.NewRequest(http.MethodPost, "/copilotkit", strings.NewReader(`{"messages":[]}`))
	rec := serve(gw, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotEmpty(t, decodeError(t, rec))

	records := listRecorded(t, gw)
	require.Len(t, records, 1)
	assert.Equal(t, store.StatusRuntimeFailed, records[0].Status)
}

func TestCopilot_RequestID(t *testing.T) {
	gw, _, rt := newTestGateway(t)

	req := httptest.NewRequest(http.MethodPost, "/copilotkit", strings.NewReader(`{}`))
	req.Header.Set(requestIDHeader, "req-42")
	rec := serve(gw, req)

	assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))
	reqs := rt.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "req-42", reqs[0].Header.Get(requestIDHeader))

	records := listRecorded(t, gw)
	require.Len(t, records, 1)
	assert.Equal(t, "req-42", records[0].RequestID)
}

func TestCopilot_AnyMethod(t *testing.T) {
	gw, _, rt := newTestGateway(t)

	rec := serve(gw, httptest.NewRequest(http.MethodPut, "/copilotkit", strings.NewReader(`{}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	reqs := rt.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].Method)
}

func TestCopilot_AuthRequiredWhenSecretSet(t *testing.T) {
	up := newFakeUploadServer(t, "https://store/x", http.StatusOK)
	rt := newFakeRuntimeServer(t, http.StatusOK, "ok")
	cfg := testConfig(t, up.URL, rt.URL)
	cfg.Auth.JWTSecret = "test-secret"
	gw := newTestGatewayWith(t, cfg)

	rec := serve(gw, httptest.NewRequest(http.MethodPost, "/copilotkit", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rt.Requests())

	token, err := auth.NewJWTVerifier([]byte("test-secret")).Generate("frontend-1", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/copilotkit", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = serve(gw, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	records := listRecorded(t, gw)
	require.Len(t, records, 1, "rejected requests are not recorded")
	assert.Equal(t, "frontend-1", records[0].Subject)
	assert.Equal(t, "anonymous", records[0].UserID)

	// Health stays open.
	rec = serve(gw, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCopilot_OptionsWithoutTokenRejected(t *testing.T) {
	up := newFakeUploadServer(t, "https://store/x", http.StatusOK)
	rt := newFakeRuntimeServer(t, http.StatusOK, "agent-answer")
	cfg := testConfig(t, up.URL, rt.URL)
	cfg.Auth.JWTSecret = "test-secret"
	gw := newTestGatewayWith(t, cfg)

	rec := serve(gw, httptest.NewRequest(http.MethodOptions, "/copilotkit",
		strings.NewReader(`{"messages":[{"content":"hello"}]}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rt.Requests(), "runtime must not be reached")

	// A real preflight is still answered by CORS without a token.
	req := httptest.NewRequest(http.MethodOptions, "/copilotkit", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = serve(gw, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rt.Requests())
}

func TestCopyResponseHeaders(t *testing.T) {
	dst := http.Header{"Access-Control-Allow-Origin": {"*"}}
	src := http.Header{
		"Access-Control-Allow-Origin": {"https://app.example"},
		"Connection":                  {"keep-alive"},
		"Content-Type":                {"text/event-stream"},
	}

	copyResponseHeaders(dst, src)

	assert.Equal(t, "https://app.example", dst.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "text/event-stream", dst.Get("Content-Type"))
	assert.Empty(t, dst.Get("Connection"))
}
