package notes

import "time"

// Progress reports a session's generate run. Remaining counts records still
// being processed.
type Progress struct {
	SessionID  string     `json:"session_id"`
	Total      int        `json:"total"`
	Completed  int        `json:"completed"`
	Failed     int        `json:"failed"`
	Remaining  int        `json:"remaining"`
	Running    bool       `json:"running"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
