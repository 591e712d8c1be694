package notes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/scribe-notes/internal/application"
	"github.com/bryanwahyu/scribe-notes/internal/domain/ai"
	domain "github.com/bryanwahyu/scribe-notes/internal/domain/notes"
	"github.com/bryanwahyu/scribe-notes/internal/infra/imaging"
)

// Options tunes the use cases; the zero value imposes no limits.
type Options struct {
	// MaxFileBytes rejects larger uploads; zero disables the check.
	MaxFileBytes int64
	// MaxFiles caps files per ingest call; surplus files are rejected.
	MaxFiles int
	// Concurrency caps records processed at once during generate; zero means all at once.
	Concurrency int
	// ItemTimeout bounds OCR plus restructure for a single record; zero means none.
	ItemTimeout time.Duration
	// AllowIncomplete permits export while some records have no notes.
	AllowIncomplete bool
}

// Service implements use-cases untuk Record.
// Service is designed to be used concurrently and is thread-safe.
type Service struct {
	Repo      domain.Repository
	OCR       domain.Recognizer
	AI        ai.Client
	Converter domain.Converter
	Renderer  domain.Renderer
	Artifacts domain.ArtifactStore
	Clock     application.Clock
	Options   Options

	runs runTracker
}

//
// ==== INGEST ====
//

type prepared struct {
	mediaType string
	data      []byte
	err       error
}

// Ingest reads every upload into a record. Files are prepared concurrently and
// appended in the order they were given. Files that cannot be ingested or
// stored are reported in Rejected and produce no record.
func (s *Service) Ingest(ctx context.Context, session string, uploads []domain.Upload) (domain.IngestResult, error) {
	result := domain.IngestResult{Records: []*domain.Record{}, Rejected: []domain.Rejection{}}

	slots := make([]prepared, len(uploads))
	var g errgroup.Group
	for i, up := range uploads {
		if s.Options.MaxFiles > 0 && i >= s.Options.MaxFiles {
			slots[i] = prepared{err: fmt.Errorf("too many files in one upload (max %d)", s.Options.MaxFiles)}
			continue
		}
		i, up := i, up
		g.Go(func() error {
			mt, data, err := s.prepare(ctx, up)
			slots[i] = prepared{mediaType: mt, data: data, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}

	reject := func(up domain.Upload, err error) {
		slog.Warn("ingest: file rejected",
			"session", session,
			"filename", up.Filename,
			"media_type", up.MediaType,
			"error", err)
		result.Rejected = append(result.Rejected, domain.Rejection{
			Filename:  up.Filename,
			MediaType: imaging.Resolve(up.MediaType, up.Filename),
			Reason:    err.Error(),
		})
	}

	for i, slot := range slots {
		up := uploads[i]
		if slot.err != nil {
			reject(up, slot.err)
			continue
		}

		id, err := uuid.NewV7()
		if err != nil {
			return result, fmt.Errorf("generate record id: %w", err)
		}
		now := s.now()
		rec := &domain.Record{
			ID:        domain.RecordID(id.String()),
			SessionID: session,
			Filename:  up.Filename,
			MediaType: slot.mediaType,
			Size:      int64(len(slot.data)),
			Image:     imaging.EncodeDataURL(slot.mediaType, slot.data),
			Status:    domain.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		// a store failure only loses this file; records already appended stay listed
		if err := s.Repo.Append(ctx, rec); err != nil {
			reject(up, fmt.Errorf("store record: %w", err))
			continue
		}
		result.Records = append(result.Records, rec)
	}

	slog.Info("ingest: done",
		"session", session,
		"accepted", len(result.Records),
		"rejected", len(result.Rejected))
	return result, nil
}

// prepare dispatches on the media type and returns the payload to store.
func (s *Service) prepare(ctx context.Context, up domain.Upload) (string, []byte, error) {
	mt := imaging.Resolve(up.MediaType, up.Filename)
	if s.Options.MaxFileBytes > 0 && int64(len(up.Data)) > s.Options.MaxFileBytes {
		return "", nil, fmt.Errorf("%w: %d bytes (max %d)", domain.ErrFileTooLarge, len(up.Data), s.Options.MaxFileBytes)
	}

	switch imaging.Classify(mt) {
	case imaging.Direct:
		return mt, up.Data, nil
	case imaging.Convert:
		if s.Converter == nil {
			return "", nil, fmt.Errorf("%w: %s (no converter configured)", domain.ErrUnsupportedType, mt)
		}
		jpg, err := s.Converter.ToJPEG(ctx, up.Data)
		if err != nil {
			return "", nil, fmt.Errorf("convert %s to jpeg: %w", mt, err)
		}
		return "image/jpeg", jpg, nil
	default:
		return "", nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, mt)
	}
}

//
// ==== GENERATE ====
//

// Generate runs OCR and restructuring for every record of the session and
// waits for all of them. A failing record gets FailedNotes; the others proceed.
// Cancelling ctx does not stop the run.
func (s *Service) Generate(ctx context.Context, session string) ([]*domain.Record, error) {
	records, err := s.startRun(ctx, session)
	if err != nil {
		return nil, err
	}
	defer s.runs.finish(session, s.now())

	// A client that hangs up must not fail or strand the run; the records
	// still get their notes and the result stays readable.
	runCtx := context.WithoutCancel(ctx)
	s.generate(runCtx, session, records)
	return s.Repo.List(runCtx, session)
}

// GenerateInBackground starts a run detached from the caller and returns the
// initial progress. It uses context.Background so the run outlives the request.
func (s *Service) GenerateInBackground(ctx context.Context, session string) (domain.Progress, error) {
	records, err := s.startRun(ctx, session)
	if err != nil {
		return domain.Progress{}, err
	}
	go func() {
		defer s.runs.finish(session, s.now())
		s.generate(context.Background(), session, records)
	}()
	p, _ := s.runs.get(session)
	return p, nil
}

// Progress returns the latest run of the session.
func (s *Service) Progress(ctx context.Context, session string) (domain.Progress, error) {
	p, ok := s.runs.get(session)
	if !ok {
		return domain.Progress{}, fmt.Errorf("no generate run for session %s: %w", session, domain.ErrNotFound)
	}
	return p, nil
}

func (s *Service) startRun(ctx context.Context, session string) ([]*domain.Record, error) {
	records, err := s.Repo.List(ctx, session)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.ErrNoRecords
	}
	if !s.runs.begin(session, len(records), s.now()) {
		return nil, domain.ErrGenerateRunning
	}
	return records, nil
}

func (s *Service) generate(ctx context.Context, session string, records []*domain.Record) {
	start := s.now()

	worker, openErr := s.OCR.Open(ctx)
	if openErr != nil {
		slog.Error("generate: failed to open OCR worker", "session", session, "error", openErr)
	} else {
		defer func() {
			if err := worker.Close(); err != nil {
				slog.Warn("generate: failed to close OCR worker", "session", session, "error", err)
			}
		}()
	}

	var g errgroup.Group
	if s.Options.Concurrency > 0 {
		g.SetLimit(s.Options.Concurrency)
	}
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			if err := s.Repo.UpdateStatus(ctx, session, rec.ID, domain.StatusProcessing); err != nil {
				slog.Warn("generate: record vanished before processing", "session", session, "record_id", rec.ID, "error", err)
			}

			var res domain.Result
			if openErr != nil {
				res = failed(domain.StageOCR, openErr)
			} else {
				res = s.process(ctx, worker, rec)
			}

			if err := s.Repo.UpdateResult(ctx, session, rec.ID, res); err != nil {
				slog.Warn("generate: failed to store result", "session", session, "record_id", rec.ID, "error", err)
			}
			s.runs.step(session, res.Status == domain.StatusDone)
			return nil
		})
	}
	_ = g.Wait()

	p, _ := s.runs.get(session)
	slog.Info("generate: done",
		"session", session,
		"total", p.Total,
		"completed", p.Completed,
		"failed", p.Failed,
		"duration_ms", s.now().Sub(start).Milliseconds())
}

// process turns one record into notes. Errors never escape; they become a failed Result.
func (s *Service) process(ctx context.Context, worker domain.RecognizerWorker, rec *domain.Record) domain.Result {
	if s.Options.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Options.ItemTimeout)
		defer cancel()
	}

	mediaType, data, err := imaging.DecodeDataURL(rec.Image)
	if err != nil {
		return failed(domain.StageOCR, err)
	}
	text, err := worker.Recognize(ctx, data, mediaType)
	if err != nil {
		slog.Error("generate: OCR failed", "record_id", rec.ID, "error", err)
		return failed(domain.StageOCR, err)
	}
	notes, err := s.AI.Restructure(ctx, text)
	if err != nil {
		slog.Error("generate: restructure failed", "record_id", rec.ID, "error", err)
		return failed(domain.StageRestructure, err)
	}
	return domain.Result{Notes: notes, Status: domain.StatusDone}
}

func failed(stage domain.Stage, err error) domain.Result {
	return domain.Result{
		Notes:   domain.FailedNotes,
		Status:  domain.StatusFailed,
		Failure: &domain.Failure{Stage: stage, Message: err.Error()},
	}
}

//
// ==== EXPORT ====
//

// Export renders the session into w, one page per record in list order.
func (s *Service) Export(ctx context.Context, session string, allowIncomplete bool, w io.Writer) error {
	records, err := s.exportable(ctx, session, allowIncomplete)
	if err != nil {
		return err
	}
	return s.Renderer.Render(ctx, records, w)
}

// ExportToStore renders the session and uploads it to the artifact store, returning its URL.
func (s *Service) ExportToStore(ctx context.Context, session string, allowIncomplete bool) (string, error) {
	if s.Artifacts == nil {
		return "", domain.ErrNoArtifactStore
	}
	records, err := s.exportable(ctx, session, allowIncomplete)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := s.Renderer.Render(ctx, records, &buf); err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s/%s.pdf", session, s.now().Format("20060102T150405.000Z"))
	url, err := s.Artifacts.Put(ctx, key, "application/pdf", bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		return "", fmt.Errorf("upload export: %w", err)
	}
	slog.Info("export: stored", "session", session, "key", key, "bytes", buf.Len())
	return url, nil
}

func (s *Service) exportable(ctx context.Context, session string, allowIncomplete bool) ([]*domain.Record, error) {
	records, err := s.Repo.List(ctx, session)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.ErrNoRecords
	}
	if !allowIncomplete && !s.Options.AllowIncomplete {
		for _, rec := range records {
			if !rec.HasNotes() {
				return nil, domain.ErrIncompleteNotes
			}
		}
	}
	return records, nil
}

//
// ==== RECORDS ====
//

// List ambil semua record session, urut sesuai upload
func (s *Service) List(ctx context.Context, session string) ([]*domain.Record, error) {
	return s.Repo.List(ctx, session)
}

// Get ambil 1 record by id
func (s *Service) Get(ctx context.Context, session string, id domain.RecordID) (*domain.Record, error) {
	return s.Repo.Get(ctx, session, id)
}

// Delete removes exactly the given record.
func (s *Service) Delete(ctx context.Context, session string, id domain.RecordID) error {
	return s.Repo.Delete(ctx, session, id)
}

// Clear drops every record of the session and its progress.
func (s *Service) Clear(ctx context.Context, session string) error {
	if p, ok := s.runs.get(session); ok && p.Running {
		return domain.ErrGenerateRunning
	}
	if err := s.Repo.Clear(ctx, session); err != nil {
		return err
	}
	s.runs.forget(session)
	return nil
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}
