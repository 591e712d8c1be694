package notes

import (
	"context"
	"io"
)

// Repository port (interface untuk persistence)
type Repository interface {
	// Append stores a new record at the end of the session list and sets its Position.
	Append(ctx context.Context, r *Record) error
	Get(ctx context.Context, session string, id RecordID) (*Record, error)
	// List returns the session records ordered by Position.
	List(ctx context.Context, session string) ([]*Record, error)
	UpdateResult(ctx context.Context, session string, id RecordID, res Result) error
	UpdateStatus(ctx context.Context, session string, id RecordID, status Status) error
	Delete(ctx context.Context, session string, id RecordID) error
	Clear(ctx context.Context, session string) error
}

// Recognizer port for OCR engines. Open is called once per generate run.
type Recognizer interface {
	Open(ctx context.Context) (RecognizerWorker, error)
}

// RecognizerWorker extracts plain text from an image. It must be safe for concurrent use.
type RecognizerWorker interface {
	Recognize(ctx context.Context, image []byte, mediaType string) (string, error)
	Close() error
}

// Converter port for legacy formats that must be normalized to JPEG.
type Converter interface {
	ToJPEG(ctx context.Context, data []byte) ([]byte, error)
}

// Renderer port for the export document.
type Renderer interface {
	Render(ctx context.Context, records []*Record, w io.Writer) error
}

// ArtifactStore port (interface untuk penyimpanan artefak)
type ArtifactStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error)
}
