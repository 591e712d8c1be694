//go:build !ocr

package tesseract

import (
	"context"
	"errors"

	domain "github.com/bryanwahyu/scribe-notes/internal/domain/notes"
)

// ErrOCRNotEnabled is returned when the binary was built without the "ocr" tag.
var ErrOCRNotEnabled = errors.New("tesseract OCR not enabled; rebuild with -tags ocr")

// Available reports whether Tesseract support is compiled in.
const Available = false

// Engine is the stub used when Tesseract support is not compiled in.
type Engine struct{}

func New(language string, pageSegMode int) *Engine { return &Engine{} }

func (e *Engine) Open(ctx context.Context) (domain.RecognizerWorker, error) {
	return nil, ErrOCRNotEnabled
}
