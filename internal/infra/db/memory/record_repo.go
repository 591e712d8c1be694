package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/bryanwahyu/scribe-notes/internal/domain/notes"
)

// RecordRepository keeps session records in process memory. Records vanish on restart.
type RecordRepository struct {
	mu       sync.RWMutex
	sessions map[string]map[domain.RecordID]*domain.Record
	seq      int64
}

func NewRecordRepository() *RecordRepository {
	return &RecordRepository{sessions: make(map[string]map[domain.RecordID]*domain.Record)}
}

func (r *RecordRepository) Append(ctx context.Context, rec *domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, ok := r.sessions[rec.SessionID]
	if !ok {
		records = make(map[domain.RecordID]*domain.Record)
		r.sessions[rec.SessionID] = records
	}
	r.seq++
	rec.Position = r.seq
	records[rec.ID] = clone(rec)
	return nil
}

func (r *RecordRepository) Get(ctx context.Context, session string, id domain.RecordID) (*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.sessions[session][id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(rec), nil
}

func (r *RecordRepository) List(ctx context.Context, session string) ([]*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Record, 0, len(r.sessions[session]))
	for _, rec := range r.sessions[session] {
		out = append(out, clone(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *RecordRepository) UpdateResult(ctx context.Context, session string, id domain.RecordID, res domain.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[session][id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Notes = res.Notes
	rec.Status = res.Status
	rec.Failure = res.Failure
	rec.UpdatedAt = time.Now()
	return nil
}

func (r *RecordRepository) UpdateStatus(ctx context.Context, session string, id domain.RecordID, status domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[session][id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Status = status
	rec.UpdatedAt = time.Now()
	return nil
}

func (r *RecordRepository) Delete(ctx context.Context, session string, id domain.RecordID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := r.sessions[session]
	if _, ok := records[id]; !ok {
		return domain.ErrNotFound
	}
	delete(records, id)
	if len(records) == 0 {
		delete(r.sessions, session)
	}
	return nil
}

func (r *RecordRepository) Clear(ctx context.Context, session string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, session)
	return nil
}

func clone(rec *domain.Record) *domain.Record {
	c := *rec
	if rec.Failure != nil {
		f := *rec.Failure
		c.Failure = &f
	}
	return &c
}
