package notes

import "errors"

var (
	// ErrNotFound indicates the record (or session) does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUnsupportedType is returned for uploads whose media type cannot be ingested.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrFileTooLarge is returned for uploads above the configured size limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrNoRecords indicates an operation that needs at least one record ran on an empty session.
	ErrNoRecords = errors.New("no records in session")
	// ErrIncompleteNotes indicates export was requested while some records have no notes yet.
	ErrIncompleteNotes = errors.New("some records have no notes yet")
	// ErrGenerateRunning indicates a generate run is already in progress for the session.
	ErrGenerateRunning = errors.New("generate already running for session")
)

// ErrNoArtifactStore is returned when an export is asked to be stored but no artifact store is configured.
var ErrNoArtifactStore = errors.New("artifact store not configured")
