package notes

import (
	"sync"
	"time"

	domain "github.com/bryanwahyu/scribe-notes/internal/domain/notes"
)

// runTracker keeps one Progress per session. The zero value is ready to use.
type runTracker struct {
	mu   sync.Mutex
	runs map[string]*domain.Progress
}

// begin registers a new run; it reports false when one is already running for the session.
func (t *runTracker) begin(session string, total int, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runs == nil {
		t.runs = make(map[string]*domain.Progress)
	}
	if p, ok := t.runs[session]; ok && p.Running {
		return false
	}
	t.runs[session] = &domain.Progress{
		SessionID: session,
		Total:     total,
		Remaining: total,
		Running:   true,
		StartedAt: now,
	}
	return true
}

func (t *runTracker) step(session string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, found := t.runs[session]
	if !found {
		return
	}
	if ok {
		p.Completed++
	} else {
		p.Failed++
	}
	if p.Remaining > 0 {
		p.Remaining--
	}
}

func (t *runTracker) finish(session string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.runs[session]; ok {
		p.Running = false
		p.FinishedAt = &now
	}
}

func (t *runTracker) get(session string) (domain.Progress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.runs[session]
	if !ok {
		return domain.Progress{}, false
	}
	out := *p
	if p.FinishedAt != nil {
		f := *p.FinishedAt
		out.FinishedAt = &f
	}
	return out, true
}

func (t *runTracker) forget(session string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.runs[session]; ok && !p.Running {
		delete(t.runs, session)
	}
}
