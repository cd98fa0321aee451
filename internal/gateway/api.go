// ABOUTME: HTTP API handlers exposing the agent registry and request telemetry.
// ABOUTME: Provides GET /api/agents, /api/workflows, and /api/requests for operators and the CLI.

package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/copilot-gateway/internal/registry"
	"github.com/2389/copilot-gateway/internal/store"
)

const (
	defaultRequestLimit = 20
	maxRequestLimit     = 100
)

// UploadInfoResponse is one stored attachment in a RequestInfoResponse.
type UploadInfoResponse struct {
	AttachmentName string `json:"attachment_name"`
	MediaType      string `json:"media_type"`
	SizeBytes      int    `json:"size_bytes"`
	URL            string `json:"url"`
	MessageIndex   int    `json:"message_index"`
}

// RequestInfoResponse is one element of the GET /api/requests response.
type RequestInfoResponse struct {
	ID            string               `json:"id"`
	RequestID     string               `json:"request_id"`
	Method        string               `json:"method"`
	Path          string               `json:"path"`
	UserID        string               `json:"user_id"`
	Subject       string               `json:"subject,omitempty"`
	Branch        string               `json:"branch,omitempty"`
	MessageCount  int                  `json:"message_count"`
	Uploaded      int                  `json:"uploaded"`
	Skipped       int                  `json:"skipped"`
	Status        string               `json:"status"`
	RuntimeStatus int                  `json:"runtime_status,omitempty"`
	Error         string               `json:"error,omitempty"`
	DurationMs    int64                `json:"duration_ms"`
	CreatedAt     string               `json:"created_at"`
	Uploads       []UploadInfoResponse `json:"uploads,omitempty"`
}

// handleListAgents handles GET /api/agents requests.
// It returns a JSON array of registered agents sorted by name.
func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	agents := g.registry.Agents()
	if agents == nil {
		agents = []registry.Agent{}
	}
	g.writeJSON(w, agents)
}

// handleListWorkflows handles GET /api/workflows requests.
func (g *Gateway) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	workflows := g.registry.Workflows()
	if workflows == nil {
		workflows = []registry.Workflow{}
	}
	g.writeJSON(w, workflows)
}

// handleListRequests handles GET /api/requests requests.
// Returns the most recent requests, newest first, optionally limited by ?limit=N
// (default 20, max 100). Each row carries the attachments uploaded for it.
func (g *Gateway) handleListRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	limit := defaultRequestLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxRequestLimit)
	}

	records, err := g.store.ListRequests(r.Context(), limit)
	if err != nil {
		g.logger.Error("failed to list requests", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]RequestInfoResponse, 0, len(records))
	for _, rec := range records {
		info := requestInfo(rec)
		if rec.Uploaded > 0 {
			uploads, err := g.store.ListUploads(r.Context(), rec.RequestID)
			if err != nil {
				g.logger.Error("failed to list uploads", "request_id", rec.RequestID, "error", err)
				g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			info.Uploads = uploadInfos(uploads)
		}
		response = append(response, info)
	}

	g.writeJSON(w, response)
}

func requestInfo(rec *store.RequestRecord) RequestInfoResponse {
	return RequestInfoResponse{
		ID:            rec.ID,
		RequestID:     rec.RequestID,
		Method:        rec.Method,
		Path:          rec.Path,
		UserID:        rec.UserID,
		Subject:       rec.Subject,
		Branch:        rec.Branch,
		MessageCount:  rec.MessageCount,
		Uploaded:      rec.Uploaded,
		Skipped:       rec.Skipped,
		Status:        rec.Status,
		RuntimeStatus: rec.RuntimeStatus,
		Error:         rec.Error,
		DurationMs:    rec.Duration.Milliseconds(),
		CreatedAt:     rec.CreatedAt.Format(time.RFC3339),
	}
}

func uploadInfos(uploads []*store.UploadRecord) []UploadInfoResponse {
	out := make([]UploadInfoResponse, 0, len(uploads))
	for _, u := range uploads {
		out = append(out, UploadInfoResponse{
			AttachmentName: u.AttachmentName,
			MediaType:      u.MediaType,
			SizeBytes:      u.SizeBytes,
			URL:            u.URL,
			MessageIndex:   u.MessageIndex,
		})
	}
	return out
}

// writeJSON writes v as a 200 JSON response.
func (g *Gateway) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Warn("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response with the given status code and message.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
