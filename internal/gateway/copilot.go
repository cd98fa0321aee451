// ABOUTME: HTTP handler for the copilot route: normalize, dispatch, relay the runtime response
// ABOUTME: Maps pipeline failures to status codes and records per-request telemetry

package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2389/copilot-gateway/internal/attachment"
	"github.com/2389/copilot-gateway/internal/auth"
	"github.com/2389/copilot-gateway/internal/normalize"
	"github.com/2389/copilot-gateway/internal/runtime"
	"github.com/2389/copilot-gateway/internal/store"
)

// requestIDHeader correlates a request across gateway logs, the runtime, and telemetry.
const requestIDHeader = "X-Request-ID"

// hopHeaders are not copied from the runtime response to the client.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Transfer-Encoding",
	"Upgrade",
	"Trailer",
}

// handleCopilot runs one request through the pipeline. The runtime's status,
// headers, and body reach the client unchanged.
func (g *Gateway) handleCopilot(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	requestID := r.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.New().String()
		r.Header.Set(requestIDHeader, requestID)
	}
	w.Header().Set(requestIDHeader, requestID)

	in := normalize.FromHTTP(r)
	ec := runtime.NewExecutionContext(r.Header, g.contextCfg)
	logger := g.logger.With("request_id", requestID, "user_id", ec.UserID())

	rec := &store.RequestRecord{
		RequestID: requestID,
		Method:    r.Method,
		Path:      r.URL.Path,
		UserID:    ec.UserID(),
		Subject:   auth.SubjectFromContext(r.Context()),
	}
	var payload *normalize.Payload
	defer func() {
		rec.Duration = time.Since(start)
		g.recordRequest(context.WithoutCancel(r.Context()), logger, rec, payload)
	}()

	payload, err := g.normalizer.Normalize(r.Context(), in)
	if err != nil {
		status, outcome := classifyNormalizeError(err)
		rec.Status = outcome
		rec.Error = err.Error()
		logger.Warn("normalization failed", "status", status, "error", err)
		g.sendJSONError(w, status, err.Error())
		return
	}
	rec.Branch = string(payload.Branch)
	rec.MessageCount = payload.MessageCount
	rec.Uploaded = len(payload.Uploads)
	rec.Skipped = payload.Skipped

	resp, err := g.dispatcher.Dispatch(r.Context(), in, payload, ec)
	if err != nil {
		rec.Status = store.StatusRuntimeFailed
		rec.Error = err.Error()
		logger.Error("runtime dispatch failed", "error", err)
		g.sendJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	defer func() { _ = resp.Body.Close() }()

	rec.Status = store.StatusForwarded
	rec.RuntimeStatus = resp.StatusCode

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if err := streamBody(w, resp.Body); err != nil {
		// Headers are already sent, so the client sees a truncated body.
		rec.Error = err.Error()
		logger.Warn("relaying runtime response interrupted", "error", err)
		return
	}

	logger.Info("request forwarded",
		"branch", payload.Branch,
		"messages", payload.MessageCount,
		"uploads", len(payload.Uploads),
		"runtime_status", resp.StatusCode,
		"duration", time.Since(start),
	)
}

// classifyNormalizeError maps a normalization failure to an HTTP status and telemetry outcome.
func classifyNormalizeError(err error) (int, string) {
	switch {
	case errors.Is(err, normalize.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge, store.StatusRejected
	case normalize.IsClientError(err):
		return http.StatusBadRequest, store.StatusRejected
	case errors.Is(err, attachment.ErrUploadFailed):
		return http.StatusBadGateway, store.StatusUploadFailed
	default:
		return http.StatusInternalServerError, store.StatusRejected
	}
}

// recordRequest writes telemetry for a finished request. Failures are only logged.
func (g *Gateway) recordRequest(ctx context.Context, logger *slog.Logger, rec *store.RequestRecord, payload *normalize.Payload) {
	if err := g.store.RecordRequest(ctx, rec); err != nil {
		logger.Error("recording request", "error", err)
		return
	}
	if payload == nil || len(payload.Uploads) == 0 {
		return
	}

	uploads := make([]*store.UploadRecord, 0, len(payload.Uploads))
	for _, u := range payload.Uploads {
		uploads = append(uploads, &store.UploadRecord{
			RequestID:      rec.RequestID,
			AttachmentName: u.AttachmentName,
			MediaType:      u.MediaType,
			SizeBytes:      u.Size,
			URL:            u.URL,
			MessageIndex:   u.MessageIndex,
		})
	}
	if err := g.store.RecordUploads(ctx, uploads); err != nil {
		logger.Error("recording uploads", "error", err)
	}
}

// copyResponseHeaders replaces dst's values with the runtime's for every
// end-to-end header, so runtime-provided CORS headers take precedence.
func copyResponseHeaders(dst, src http.Header) {
	for k, vv := range src {
		dst[k] = append([]string(nil), vv...)
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}

// streamBody copies body to w, flushing after each chunk so event streams
// from the runtime reach the client as they arrive.
func streamBody(w http.ResponseWriter, body io.Reader) error {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
