package notes

import "time"

// RecordID tipe untuk Record
type RecordID string

// Status enum
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Stage names the generate step a record failed in.
type Stage string

const (
	StageOCR         Stage = "ocr"
	StageRestructure Stage = "restructure"
)

// FailedNotes is written into a record's notes when its generate step fails.
const FailedNotes = "Error processing image. Please try again."

// Failure value object
type Failure struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// Aggregate Root: Record, one uploaded image plus its derived notes.
type Record struct {
	ID        RecordID  `json:"id"`
	SessionID string    `json:"session_id"`
	Filename  string    `json:"filename,omitempty"`
	MediaType string    `json:"media_type"`
	Size      int64     `json:"size"`
	Image     string    `json:"image"` // data URL
	Notes     string    `json:"notes"`
	Status    Status    `json:"status"`
	Failure   *Failure  `json:"failure,omitempty"`
	Position  int64     `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasNotes reports whether generate already produced notes for the record.
func (r *Record) HasNotes() bool { return r.Notes != "" }

// Result is the outcome of one record's generate step.
type Result struct {
	Notes   string
	Status  Status
	Failure *Failure
}

// Upload is one file as received from the client.
type Upload struct {
	Filename  string
	MediaType string
	Data      []byte
}

// Rejection describes an uploaded file that did not become a record.
type Rejection struct {
	Filename  string `json:"filename"`
	MediaType string `json:"media_type"`
	Reason    string `json:"reason"`
}

// IngestResult is returned by an ingest call.
type IngestResult struct {
	Records  []*Record   `json:"records"`
	Rejected []Rejection `json:"rejected"`
}
