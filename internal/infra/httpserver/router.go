package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appnotes "github.com/bryanwahyu/scribe-notes/internal/application/notes"
	domai "github.com/bryanwahyu/scribe-notes/internal/domain/ai"
	domain "github.com/bryanwahyu/scribe-notes/internal/domain/notes"
	"github.com/bryanwahyu/scribe-notes/internal/middleware"
)

// ExportFilename is the download name of a rendered session.
const ExportFilename = "image_notes_ai.pdf"

const multipartMemory = 32 << 20

var errBadRequest = errors.New("bad request")

// Options configures the HTTP surface.
type Options struct {
	CORSOrigins []string
	APIKeys     []string
	// RateCapacity is the burst per session and client; zero disables rate limiting.
	RateCapacity int
	RateRefill   int
	// MaxUploadBytes bounds a whole ingest request body; zero means unbounded.
	MaxUploadBytes int64
	// MaxFileBytes bounds how much of a single part is read.
	MaxFileBytes int64
	Checkers     map[string]middleware.HealthChecker
}

type Router struct {
	notesSvc *appnotes.Service
	opts     Options
}

func NewRouter(notesSvc *appnotes.Service, opts Options) http.Handler {
	r := &Router{notesSvc: notesSvc, opts: opts}
	mux := chi.NewRouter()

	mux.Use(chimw.RequestID)
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(chimw.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))

	mux.Get("/health", middleware.HealthHandler(opts.Checkers))
	mux.Get("/healthz", middleware.LivenessHandler)
	mux.Get("/readyz", middleware.ReadinessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1/{session}", func(rt chi.Router) {
		rt.Use(middleware.RequireValidSession)
		rt.Use(middleware.RateLimitMiddleware(opts.RateCapacity, opts.RateRefill))

		rt.Post("/images", r.wrap(r.handleIngest))
		rt.Get("/images", r.wrap(r.handleList))
		rt.Delete("/images", r.wrap(r.handleClear))
		rt.Get("/images/{id}", r.wrap(r.handleGet))
		rt.Delete("/images/{id}", r.wrap(r.handleDelete))
		rt.Get("/images/{id}/notes", r.wrap(r.handleNotesText))
		rt.Post("/notes", r.wrap(r.handleGenerate))
		rt.Get("/notes/progress", r.wrap(r.handleProgress))
		rt.Get("/export", r.wrap(r.handleExport))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			http.Error(w, err.Error(), statusFor(err))
		}
	}
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrFileTooLarge), errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrIncompleteNotes), errors.Is(err, domain.ErrGenerateRunning):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoRecords), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoArtifactStore):
		return http.StatusNotImplemented
	case errors.Is(err, domai.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func recordID(req *http.Request) (domain.RecordID, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRecordID(id); err != nil {
		return "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return domain.RecordID(id), nil
}

func boolQuery(req *http.Request, key string) bool {
	v, _ := strconv.ParseBool(req.URL.Query().Get(key))
	return v
}

// POST /v1/{session}/images
// multipart/form-data, field "files" (repeatable)
func (r *Router) handleIngest(w http.ResponseWriter, req *http.Request) error {
	session := chi.URLParam(req, "session")
	if r.opts.MaxUploadBytes > 0 {
		if req.ContentLength > r.opts.MaxUploadBytes {
			return fmt.Errorf("%w: request body is %d bytes (max %d)", domain.ErrFileTooLarge, req.ContentLength, r.opts.MaxUploadBytes)
		}
		req.Body = http.MaxBytesReader(w, req.Body, r.opts.MaxUploadBytes)
	}
	if err := req.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	defer req.MultipartForm.RemoveAll()

	headers := req.MultipartForm.File["files"]
	if len(headers) == 0 {
		return fmt.Errorf("%w: no files uploaded (field \"files\")", errBadRequest)
	}

	uploads := make([]domain.Upload, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh, r.opts.MaxFileBytes)
		if err != nil {
			return fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		uploads = append(uploads, domain.Upload{
			Filename:  middleware.SanitizeFilename(fh.Filename),
			MediaType: fh.Header.Get("Content-Type"),
			Data:      data,
		})
	}

	result, err := r.notesSvc.Ingest(req.Context(), session, uploads)
	if err != nil {
		return err
	}
	middleware.AddRecordsIngested(len(result.Records))
	middleware.AddRecordsRejected(len(result.Rejected))

	status := http.StatusCreated
	if len(result.Records) == 0 {
		status = http.StatusUnsupportedMediaType
	}
	return writeJSON(w, status, result)
}

// readPart reads at most limit+1 bytes so oversize parts are still reported as too large.
func readPart(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rd io.Reader = f
	if limit > 0 {
		rd = io.LimitReader(f, limit+1)
	}
	return io.ReadAll(rd)
}

// GET /v1/{session}/images
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	list, err := r.notesSvc.List(req.Context(), chi.URLParam(req, "session"))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domain.Record{}
	}
	return writeJSON(w, http.StatusOK, list)
}

// DELETE /v1/{session}/images
func (r *Router) handleClear(w http.ResponseWriter, req *http.Request) error {
	if err := r.notesSvc.Clear(req.Context(), chi.URLParam(req, "session")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /v1/{session}/images/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id, err := recordID(req)
	if err != nil {
		return err
	}
	rec, err := r.notesSvc.Get(req.Context(), chi.URLParam(req, "session"), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, rec)
}

// DELETE /v1/{session}/images/{id}
func (r *Router) handleDelete(w http.ResponseWriter, req *http.Request) error {
	id, err := recordID(req)
	if err != nil {
		return err
	}
	if err := r.notesSvc.Delete(req.Context(), chi.URLParam(req, "session"), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /v1/{session}/images/{id}/notes
// Plain-text notes, for copying to the clipboard.
func (r *Router) handleNotesText(w http.ResponseWriter, req *http.Request) error {
	id, err := recordID(req)
	if err != nil {
		return err
	}
	rec, err := r.notesSvc.Get(req.Context(), chi.URLParam(req, "session"), id)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err = io.WriteString(w, rec.Notes)
	return err
}

// POST /v1/{session}/notes?wait=true
func (r *Router) handleGenerate(w http.ResponseWriter, req *http.Request) error {
	session := chi.URLParam(req, "session")

	if boolQuery(req, "wait") {
		records, err := r.notesSvc.Generate(req.Context(), session)
		if err != nil {
			return err
		}
		middleware.IncrementGenerateRuns()
		return writeJSON(w, http.StatusOK, records)
	}

	// jalan di background, client polling ke /notes/progress
	progress, err := r.notesSvc.GenerateInBackground(req.Context(), session)
	if err != nil {
		return err
	}
	middleware.IncrementGenerateRuns()
	return writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "queued",
		"session":  session,
		"total":    progress.Total,
		"progress": "/v1/" + session + "/notes/progress",
		"queuedAt": time.Now(),
	})
}

// GET /v1/{session}/notes/progress
func (r *Router) handleProgress(w http.ResponseWriter, req *http.Request) error {
	p, err := r.notesSvc.Progress(req.Context(), chi.URLParam(req, "session"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, p)
}

// GET /v1/{session}/export?allow_incomplete=true&store=true
func (r *Router) handleExport(w http.ResponseWriter, req *http.Request) error {
	session := chi.URLParam(req, "session")
	allowIncomplete := boolQuery(req, "allow_incomplete")

	if boolQuery(req, "store") {
		url, err := r.notesSvc.ExportToStore(req.Context(), session, allowIncomplete)
		if err != nil {
			return err
		}
		middleware.IncrementExports()
		return writeJSON(w, http.StatusOK, map[string]string{"url": url, "filename": ExportFilename})
	}

	// render dulu ke buffer supaya error masih bisa jadi status code
	var buf bytes.Buffer
	if err := r.notesSvc.Export(req.Context(), session, allowIncomplete, &buf); err != nil {
		return err
	}
	middleware.IncrementExports()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ExportFilename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, err := buf.WriteTo(w)
	return err
}
