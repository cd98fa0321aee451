// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject write failures

package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	requests []*RequestRecord
	uploads  map[string][]*UploadRecord // keyed by request ID

	// Err, when set, is returned by every call except Close.
	Err error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		uploads: make(map[string][]*UploadRecord),
	}
}

// RecordRequest stores a copy of rec.
func (m *MockStore) RecordRequest(ctx context.Context, rec *RequestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	// Make a copy to avoid external modification
	r := *rec
	m.requests = append(m.requests, &r)
	return nil
}

// RecordUploads stores copies of the upload rows.
func (m *MockStore) RecordUploads(ctx context.Context, uploads []*UploadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}

	for _, up := range uploads {
		if up.ID == "" {
			up.ID = uuid.New().String()
		}
		u := *up
		m.uploads[u.RequestID] = append(m.uploads[u.RequestID], &u)
	}
	return nil
}

// ListRequests returns up to limit requests, newest first.
func (m *MockStore) ListRequests(ctx context.Context, limit int) ([]*RequestRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if limit <= 0 {
		limit = 20
	}

	var out []*RequestRecord
	for i := len(m.requests) - 1; i >= 0 && len(out) < limit; i-- {
		r := *m.requests[i]
		out = append(out, &r)
	}
	return out, nil
}

// ListUploads returns the uploads recorded for a request.
func (m *MockStore) ListUploads(ctx context.Context, requestID string) ([]*UploadRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}

	var out []*UploadRecord
	for _, up := range m.uploads[requestID] {
		u := *up
		out = append(out, &u)
	}
	return out, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
