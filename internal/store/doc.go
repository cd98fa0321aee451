// Package store records gateway telemetry in SQLite.
//
// # Overview
//
// Every request handled by the gateway route produces one RequestRecord,
// and every attachment stored on its behalf one UploadRecord. The gateway
// only writes these rows; they are read back by the /api/requests endpoint
// and never influence how a request is processed.
//
// # Backends
//
//   - SQLiteStore: database/sql over modernc.org/sqlite (pure Go, no CGO)
//   - MockStore: in-memory, for tests
//
// The default path ":memory:" keeps telemetry for the life of the process.
// A file path enables WAL mode and creates parent directories as needed.
//
// # Schema
//
//	gateway_requests    one row per request, newest listed first
//	attachment_uploads  one row per stored attachment, keyed by request_id
//
// Timestamps are stored as fixed-width UTC text.
package store
