//go:build ocr

// Package tesseract recognizes handwriting through the Tesseract engine.
//
// It needs libtesseract and leptonica at build time and the "ocr" build tag:
//
//	go build -tags ocr ./cmd/api
package tesseract

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	domain "github.com/bryanwahyu/scribe-notes/internal/domain/notes"
)

// Available reports whether Tesseract support is compiled in.
const Available = true

// Engine opens one Tesseract client per generate run.
type Engine struct {
	language    string
	pageSegMode int
}

func New(language string, pageSegMode int) *Engine {
	if language == "" {
		language = "eng"
	}
	return &Engine{language: language, pageSegMode: pageSegMode}
}

func (e *Engine) Open(ctx context.Context) (domain.RecognizerWorker, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage(strings.Split(e.language, "+")...); err != nil {
		client.Close()
		return nil, fmt.Errorf("set tesseract language %q: %w", e.language, err)
	}
	if e.pageSegMode > 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(e.pageSegMode)); err != nil {
			client.Close()
			return nil, fmt.Errorf("set tesseract page segmentation mode: %w", err)
		}
	}
	return &worker{client: client}, nil
}

// worker serializes access; a gosseract client holds one image at a time.
type worker struct {
	mu     sync.Mutex
	client *gosseract.Client
}

func (w *worker) Recognize(ctx context.Context, image []byte, _ string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := w.client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}
	text, err := w.client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (w *worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.client.Close()
}
