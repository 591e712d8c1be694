package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	appnotes "github.com/bryanwahyu/scribe-notes/internal/application/notes"
	domain "github.com/bryanwahyu/scribe-notes/internal/domain/notes"
	"github.com/bryanwahyu/scribe-notes/internal/infra/db/memory"
	"github.com/bryanwahyu/scribe-notes/internal/infra/export/pdf"
)

type stubOCR struct{ err error }

func (o stubOCR) Open(ctx context.Context) (domain.RecognizerWorker, error) { return o, nil }

func (o stubOCR) Recognize(ctx context.Context, image []byte, mediaType string) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	return "handwritten " + string(image), nil
}

func (o stubOCR) Close() error { return nil }

type stubAI struct{}

func (stubAI) Restructure(ctx context.Context, text string) (string, error) {
	return "Notes:\n- " + text, nil
}

type file struct {
	name        string
	contentType string
	body        string
}

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *appnotes.Service) {
	t.Helper()
	svc := &appnotes.Service{
		Repo:     memory.NewRecordRepository(),
		OCR:      stubOCR{},
		AI:       stubAI{},
		Renderer: pdf.NewRenderer(pdf.Options{}),
	}
	srv := httptest.NewServer(NewRouter(svc, opts))
	t.Cleanup(srv.Close)
	return srv, svc
}

func upload(t *testing.T, url string, files ...file) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+f.name+`"`)
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write([]byte(f.body))
	}
	mw.Close()

	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func do(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, url, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var b bytes.Buffer
		b.ReadFrom(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d (body %q)", resp.StatusCode, want, b.String())
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	for _, path := range []string{"/health", "/healthz", "/readyz", "/metrics"} {
		resp := do(t, http.MethodGet, srv.URL+path)
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}
}

func TestIngestListAndDelete(t *testing.T) {
	srv, _ := newTestServer(t, Options{MaxFileBytes: 1 << 20})
	base := srv.URL + "/v1/tab1"

	resp := upload(t, base+"/images",
		file{"a.png", "image/png", "aaa"},
		file{"notes.txt", "text/plain", "nope"},
		file{"b.jpg", "", "bbb"},
	)
	expectStatus(t, resp, http.StatusCreated)
	res := decode[domain.IngestResult](t, resp)
	if len(res.Records) != 2 || len(res.Rejected) != 1 {
		t.Fatalf("expected 2 records and 1 rejection, got %d/%d", len(res.Records), len(res.Rejected))
	}
	if res.Rejected[0].Reason != "unsupported file type: text/plain" {
		t.Errorf("rejection reason = %q", res.Rejected[0].Reason)
	}

	resp = do(t, http.MethodGet, base+"/images")
	expectStatus(t, resp, http.StatusOK)
	list := decode[[]domain.Record](t, resp)
	if len(list) != 2 || list[0].Filename != "a.png" || list[1].Filename != "b.jpg" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if list[1].MediaType != "image/jpeg" {
		t.Errorf("media type from extension = %q", list[1].MediaType)
	}

	resp = do(t, http.MethodDelete, base+"/images/"+string(list[0].ID))
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = do(t, http.MethodGet, base+"/images/"+string(list[0].ID))
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = do(t, http.MethodGet, base+"/images/"+string(list[1].ID))
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = do(t, http.MethodDelete, base+"/images")
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = do(t, http.MethodGet, base+"/images")
	if got := decode[[]domain.Record](t, resp); len(got) != 0 {
		t.Fatalf("expected empty session after clear, got %d", len(got))
	}
}

func TestIngest_Errors(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	base := srv.URL + "/v1/tab1"

	resp := upload(t, base+"/images", file{"doc.pdf", "application/pdf", "%PDF"})
	expectStatus(t, resp, http.StatusUnsupportedMediaType)
	resp.Body.Close()

	resp = upload(t, base+"/images")
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp, err := http.Post(base+"/images", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestIngest_BodyTooLarge(t *testing.T) {
	srv, _ := newTestServer(t, Options{MaxUploadBytes: 64})
	resp := upload(t, srv.URL+"/v1/tab1/images", file{"a.png", "image/png", strings.Repeat("x", 1024)})
	expectStatus(t, resp, http.StatusRequestEntityTooLarge)
	resp.Body.Close()
}

func TestInvalidIdentifiers(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp := do(t, http.MethodGet, srv.URL+"/v1/bad.session/images")
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = do(t, http.MethodGet, srv.URL+"/v1/tab1/images/not-a-uuid")
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestGenerateAndExport(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	base := srv.URL + "/v1/tab1"

	resp := do(t, http.MethodGet, base+"/export")
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = upload(t, base+"/images", file{"a.png", "image/png", "one"}, file{"b.png", "image/png", "two"})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = do(t, http.MethodGet, base+"/export")
	expectStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	resp = do(t, http.MethodPost, base+"/notes?wait=true")
	expectStatus(t, resp, http.StatusOK)
	records := decode[[]domain.Record](t, resp)
	for _, rec := range records {
		if !strings.HasPrefix(rec.Notes, "Notes:\n- handwritten ") || rec.Status != domain.StatusDone {
			t.Fatalf("unexpected record after generate: %+v", rec)
		}
	}

	resp = do(t, http.MethodGet, base+"/images/"+string(records[0].ID)+"/notes")
	expectStatus(t, resp, http.StatusOK)
	var text bytes.Buffer
	text.ReadFrom(resp.Body)
	resp.Body.Close()
	if text.String() != records[0].Notes || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		t.Fatalf("notes text = %q (%s)", text.String(), resp.Header.Get("Content-Type"))
	}

	resp = do(t, http.MethodGet, base+"/export")
	expectStatus(t, resp, http.StatusOK)
	var pdfBody bytes.Buffer
	pdfBody.ReadFrom(resp.Body)
	resp.Body.Close()
	if resp.Header.Get("Content-Type") != "application/pdf" {
		t.Errorf("content type = %q", resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(resp.Header.Get("Content-Disposition"), ExportFilename) {
		t.Errorf("content disposition = %q", resp.Header.Get("Content-Disposition"))
	}
	if !bytes.HasPrefix(pdfBody.Bytes(), []byte("%PDF")) {
		t.Errorf("body is not a PDF")
	}

	resp = do(t, http.MethodGet, base+"/export?store=true")
	expectStatus(t, resp, http.StatusNotImplemented)
	resp.Body.Close()
}

func TestExport_AllowIncomplete(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	base := srv.URL + "/v1/tab1"

	resp := upload(t, base+"/images", file{"a.png", "image/png", "one"})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = do(t, http.MethodGet, base+"/export?allow_incomplete=true")
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestGenerateInBackground(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	base := srv.URL + "/v1/tab1"

	resp := do(t, http.MethodGet, base+"/notes/progress")
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = do(t, http.MethodPost, base+"/notes")
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = upload(t, base+"/images", file{"a.png", "image/png", "one"})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = do(t, http.MethodPost, base+"/notes")
	expectStatus(t, resp, http.StatusAccepted)
	queued := decode[map[string]any](t, resp)
	if queued["status"] != "queued" || queued["total"] != float64(1) {
		t.Fatalf("unexpected queued response: %v", queued)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp = do(t, http.MethodGet, base+"/notes/progress")
		expectStatus(t, resp, http.StatusOK)
		p := decode[domain.Progress](t, resp)
		if !p.Running {
			if p.Completed != 1 || p.Remaining != 0 {
				t.Fatalf("unexpected progress: %+v", p)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("generate did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGenerate_FailedRecordsKeepFixedNotes(t *testing.T) {
	srv, svc := newTestServer(t, Options{})
	svc.OCR = stubOCR{err: errors.New("engine crashed")}
	base := srv.URL + "/v1/tab1"

	resp := upload(t, base+"/images", file{"a.png", "image/png", "one"})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = do(t, http.MethodPost, base+"/notes?wait=true")
	expectStatus(t, resp, http.StatusOK)
	records := decode[[]domain.Record](t, resp)
	if records[0].Notes != domain.FailedNotes || records[0].Failure == nil || records[0].Failure.Stage != domain.StageOCR {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}

func TestAPIKeyRequired(t *testing.T) {
	srv, _ := newTestServer(t, Options{APIKeys: []string{"secret"}})

	resp := do(t, http.MethodGet, srv.URL+"/v1/tab1/images")
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/tab1/images", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = do(t, http.MethodGet, srv.URL+"/health")
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		domain.ErrNotFound:        http.StatusNotFound,
		domain.ErrIncompleteNotes: http.StatusConflict,
		domain.ErrGenerateRunning: http.StatusConflict,
		domain.ErrNoRecords:       http.StatusBadRequest,
		errors.New("boom"):        http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Errorf("statusFor(%v) = %d, want %d", err, got, want)
		}
	}
}
