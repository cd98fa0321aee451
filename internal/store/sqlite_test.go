// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers request and upload recording, ordering, limits, and in-memory databases

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// newTestStore creates a store backed by a temporary database file
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return store
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	store, err := NewSQLiteStore(MemoryPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.RecordRequest(ctx, &RequestRecord{RequestID: "r1", Method: "POST", Path: "/copilotkit", UserID: "anonymous", Status: StatusForwarded}); err != nil {
		t.Fatalf("RecordRequest failed: %v", err)
	}

	// The row must be visible through the same pool
	got, err := store.ListRequests(ctx, 10)
	if err != nil {
		t.Fatalf("ListRequests failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 request, got %d", len(got))
	}
}

func TestRecordAndListRequests(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Microsecond)
	rec := &RequestRecord{
		RequestID:     "req-1",
		Method:        "POST",
		Path:          "/copilotkit",
		UserID:        "user-42",
		Subject:       "frontend-1",
		Branch:        "form",
		MessageCount:  3,
		Uploaded:      2,
		Skipped:       1,
		Status:        StatusForwarded,
		RuntimeStatus: 200,
		Duration:      1500 * time.Millisecond,
		CreatedAt:     created,
	}

	if err := store.RecordRequest(ctx, rec); err != nil {
		t.Fatalf("RecordRequest failed: %v", err)
	}
	if rec.ID == "" {
		t.Error("expected an ID to be assigned")
	}

	got, err := store.ListRequests(ctx, 10)
	if err != nil {
		t.Fatalf("ListRequests failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 request, got %d", len(got))
	}

	r := got[0]
	if r.ID != rec.ID || r.RequestID != "req-1" || r.UserID != "user-42" {
		t.Errorf("unexpected identity fields: %+v", r)
	}
	if r.Subject != "frontend-1" {
		t.Errorf("Subject = %q, want frontend-1", r.Subject)
	}
	if r.Branch != "form" || r.MessageCount != 3 || r.Uploaded != 2 || r.Skipped != 1 {
		t.Errorf("unexpected counters: %+v", r)
	}
	if r.Status != StatusForwarded || r.RuntimeStatus != 200 {
		t.Errorf("unexpected status: %+v", r)
	}
	if r.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v, want 1.5s", r.Duration)
	}
	if !r.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", r.CreatedAt, created)
	}
	if r.Error != "" {
		t.Errorf("Error = %q, want empty", r.Error)
	}
}

func TestListRequests_NewestFirstWithLimit(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		rec := &RequestRecord{
			RequestID: fmt.Sprintf("req-%d", i),
			Method:    "POST",
			Path:      "/copilotkit",
			UserID:    "anonymous",
			Status:    StatusRejected,
			Error:     "malformed payload",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.RecordRequest(ctx, rec); err != nil {
			t.Fatalf("RecordRequest failed: %v", err)
		}
	}

	got, err := store.ListRequests(ctx, 3)
	if err != nil {
		t.Fatalf("ListRequests failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(got))
	}
	for i, want := range []string{"req-4", "req-3", "req-2"} {
		if got[i].RequestID != want {
			t.Errorf("got[%d].RequestID = %q, want %q", i, got[i].RequestID, want)
		}
	}
	if got[0].Error != "malformed payload" {
		t.Errorf("Error = %q", got[0].Error)
	}
}

func TestRecordAndListUploads(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	uploads := []*UploadRecord{
		{RequestID: "req-1", AttachmentName: "a.pdf", MediaType: "application/pdf", SizeBytes: 10, URL: "https://store/a", MessageIndex: 0},
		{RequestID: "req-1", AttachmentName: "b.pdf", MediaType: "application/pdf", SizeBytes: 20, URL: "https://store/b", MessageIndex: 2},
		{RequestID: "req-2", AttachmentName: "c.pdf", MediaType: "application/pdf", SizeBytes: 30, URL: "https://store/c"},
	}
	if err := store.RecordUploads(ctx, uploads); err != nil {
		t.Fatalf("RecordUploads failed: %v", err)
	}

	got, err := store.ListUploads(ctx, "req-1")
	if err != nil {
		t.Fatalf("ListUploads failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(got))
	}
	if got[0].AttachmentName != "a.pdf" || got[1].AttachmentName != "b.pdf" {
		t.Errorf("uploads out of order: %q, %q", got[0].AttachmentName, got[1].AttachmentName)
	}
	if got[1].SizeBytes != 20 || got[1].URL != "https://store/b" || got[1].MessageIndex != 2 {
		t.Errorf("unexpected upload: %+v", got[1])
	}

	none, err := store.ListUploads(ctx, "req-unknown")
	if err != nil {
		t.Fatalf("ListUploads failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no uploads, got %d", len(none))
	}
}

func TestRecordUploads_Empty(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	if err := store.RecordUploads(context.Background(), nil); err != nil {
		t.Fatalf("RecordUploads(nil) failed: %v", err)
	}
}

func TestRecordRequest_Concurrent(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.RecordRequest(ctx, &RequestRecord{
				RequestID: fmt.Sprintf("req-%d", i),
				Method:    "POST",
				Path:      "/copilotkit",
				UserID:    "anonymous",
				Status:    StatusForwarded,
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent RecordRequest failed: %v", err)
		}
	}

	got, err := store.ListRequests(ctx, 100)
	if err != nil {
		t.Fatalf("ListRequests failed: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("expected 20 requests, got %d", len(got))
	}
}
