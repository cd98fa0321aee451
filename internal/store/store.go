// ABOUTME: Store interface and data types for copilot-gateway telemetry
// ABOUTME: Defines RequestRecord and UploadRecord and the Store interface used by the gateway

package store

import (
	"context"
	"time"
)

// Request outcome values stored in RequestRecord.Status.
const (
	StatusForwarded     = "forwarded"      // runtime returned a response
	StatusRejected      = "rejected"       // the request itself was malformed
	StatusUploadFailed  = "upload_failed"  // an attachment could not be stored
	StatusRuntimeFailed = "runtime_failed" // the runtime gave no response
)

// RequestRecord is one row per request handled by the gateway route
type RequestRecord struct {
	ID            string
	RequestID     string
	Method        string
	Path          string
	UserID        string
	Subject       string // verified token subject, empty when auth is off
	Branch        string // "form", "json", or empty when decoding failed
	MessageCount  int
	Uploaded      int
	Skipped       int
	Status        string
	RuntimeStatus int // HTTP status returned by the runtime, 0 when none
	Error         string
	Duration      time.Duration
	CreatedAt     time.Time
}

// UploadRecord is one row per attachment stored during a request
type UploadRecord struct {
	ID             string
	RequestID      string
	AttachmentName string
	MediaType      string
	SizeBytes      int
	URL            string
	MessageIndex   int
	CreatedAt      time.Time
}

// Store records gateway telemetry. The gateway only writes through it;
// reads serve the /api/requests endpoint.
type Store interface {
	RecordRequest(ctx context.Context, rec *RequestRecord) error
	RecordUploads(ctx context.Context, uploads []*UploadRecord) error
	ListRequests(ctx context.Context, limit int) ([]*RequestRecord, error)
	ListUploads(ctx context.Context, requestID string) ([]*UploadRecord, error)
	Close() error
}

// Ensure implementations satisfy the interface
var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MockStore)(nil)
)
