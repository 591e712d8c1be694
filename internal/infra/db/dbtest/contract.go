// Package dbtest holds the behaviour every notes.Repository backend must share.
package dbtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/bryanwahyu/scribe-notes/internal/domain/notes"
)

// NewRecord builds a pending record for tests.
func NewRecord(session string, n int) *domain.Record {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Record{
		ID:        domain.RecordID(fmt.Sprintf("rec-%03d", n)),
		SessionID: session,
		Filename:  fmt.Sprintf("page-%d.png", n),
		MediaType: "image/png",
		Size:      int64(10 + n),
		Image:     "data:image/png;base64,AAAA",
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RunRepositoryContract exercises a fresh repository returned by newRepo.
func RunRepositoryContract(t *testing.T, newRepo func(t *testing.T) domain.Repository) {
	t.Run("AppendKeepsOrder", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		for i := 1; i <= 3; i++ {
			if err := repo.Append(ctx, NewRecord("s1", i)); err != nil {
				t.Fatalf("Append #%d error: %v", i, err)
			}
		}
		list, err := repo.List(ctx, "s1")
		if err != nil {
			t.Fatalf("List error: %v", err)
		}
		if len(list) != 3 {
			t.Fatalf("expected 3 records, got %d", len(list))
		}
		for i, rec := range list {
			if want := domain.RecordID(fmt.Sprintf("rec-%03d", i+1)); rec.ID != want {
				t.Errorf("list[%d].ID = %q, want %q", i, rec.ID, want)
			}
			if rec.Notes != "" {
				t.Errorf("list[%d].Notes = %q, want empty", i, rec.Notes)
			}
			if i > 0 && rec.Position <= list[i-1].Position {
				t.Errorf("positions not increasing: %d then %d", list[i-1].Position, rec.Position)
			}
		}
	})

	t.Run("SessionsAreIsolated", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		_ = repo.Append(ctx, NewRecord("s1", 1))
		_ = repo.Append(ctx, NewRecord("s2", 2))

		list, err := repo.List(ctx, "s2")
		if err != nil {
			t.Fatalf("List error: %v", err)
		}
		if len(list) != 1 || list[0].ID != "rec-002" {
			t.Fatalf("unexpected s2 list: %+v", list)
		}
		if _, err := repo.Get(ctx, "s2", "rec-001"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound across sessions, got %v", err)
		}
		empty, err := repo.List(ctx, "nobody")
		if err != nil || len(empty) != 0 {
			t.Fatalf("expected empty list for unknown session, got %v, %v", empty, err)
		}
	})

	t.Run("UpdateResult", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		_ = repo.Append(ctx, NewRecord("s1", 1))
		_ = repo.Append(ctx, NewRecord("s1", 2))

		if err := repo.UpdateStatus(ctx, "s1", "rec-001", domain.StatusProcessing); err != nil {
			t.Fatalf("UpdateStatus error: %v", err)
		}
		if err := repo.UpdateResult(ctx, "s1", "rec-001", domain.Result{Notes: "notes", Status: domain.StatusDone}); err != nil {
			t.Fatalf("UpdateResult error: %v", err)
		}
		failure := &domain.Failure{Stage: domain.StageOCR, Message: "boom"}
		if err := repo.UpdateResult(ctx, "s1", "rec-002", domain.Result{Notes: domain.FailedNotes, Status: domain.StatusFailed, Failure: failure}); err != nil {
			t.Fatalf("UpdateResult error: %v", err)
		}

		done, err := repo.Get(ctx, "s1", "rec-001")
		if err != nil {
			t.Fatalf("Get error: %v", err)
		}
		if done.Notes != "notes" || done.Status != domain.StatusDone || done.Failure != nil {
			t.Fatalf("unexpected done record: %+v", done)
		}
		failed, err := repo.Get(ctx, "s1", "rec-002")
		if err != nil {
			t.Fatalf("Get error: %v", err)
		}
		if failed.Notes != domain.FailedNotes || failed.Status != domain.StatusFailed {
			t.Fatalf("unexpected failed record: %+v", failed)
		}
		if failed.Failure == nil || *failed.Failure != *failure {
			t.Fatalf("failure not stored: %+v", failed.Failure)
		}

		if err := repo.UpdateResult(ctx, "s1", "missing", domain.Result{}); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DeleteRemovesExactlyOne", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		for i := 1; i <= 3; i++ {
			_ = repo.Append(ctx, NewRecord("s1", i))
		}
		if err := repo.Delete(ctx, "s1", "rec-002"); err != nil {
			t.Fatalf("Delete error: %v", err)
		}
		list, _ := repo.List(ctx, "s1")
		if len(list) != 2 || list[0].ID != "rec-001" || list[1].ID != "rec-003" {
			t.Fatalf("unexpected list after delete: %+v", list)
		}
		if err := repo.Delete(ctx, "s1", "rec-002"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("UpdateDoesNotResurrectDeleted", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		const n = 100
		for i := 1; i <= n; i++ {
			if err := repo.Append(ctx, NewRecord("s1", i)); err != nil {
				t.Fatalf("Append #%d error: %v", i, err)
			}
		}

		var wg sync.WaitGroup
		for i := 1; i <= n; i++ {
			id := domain.RecordID(fmt.Sprintf("rec-%03d", i))
			wg.Add(2)
			go func() {
				defer wg.Done()
				err := repo.UpdateResult(ctx, "s1", id, domain.Result{Notes: "late", Status: domain.StatusDone})
				if err != nil && !errors.Is(err, domain.ErrNotFound) {
					t.Errorf("UpdateResult %s: %v", id, err)
				}
			}()
			go func() {
				defer wg.Done()
				if err := repo.Delete(ctx, "s1", id); err != nil {
					t.Errorf("Delete %s: %v", id, err)
				}
			}()
		}
		wg.Wait()

		for i := 1; i <= n; i++ {
			id := domain.RecordID(fmt.Sprintf("rec-%03d", i))
			if _, err := repo.Get(ctx, "s1", id); !errors.Is(err, domain.ErrNotFound) {
				t.Errorf("deleted record %s still readable: %v", id, err)
			}
		}
		if list, _ := repo.List(ctx, "s1"); len(list) != 0 {
			t.Fatalf("expected empty list, got %d", len(list))
		}
	})

	t.Run("Clear", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		_ = repo.Append(ctx, NewRecord("s1", 1))
		_ = repo.Append(ctx, NewRecord("s2", 2))
		if err := repo.Clear(ctx, "s1"); err != nil {
			t.Fatalf("Clear error: %v", err)
		}
		if list, _ := repo.List(ctx, "s1"); len(list) != 0 {
			t.Fatalf("expected empty s1, got %d", len(list))
		}
		if list, _ := repo.List(ctx, "s2"); len(list) != 1 {
			t.Fatalf("expected s2 untouched, got %d", len(list))
		}
	})
}
