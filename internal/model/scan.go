package model

import "time"

// Scan status values.
const (
	ScanRunning  = "running"
	ScanFound    = "found"
	ScanNotFound = "not_found"
	ScanFailed   = "failed"
)

// Scan represents one run of the pan-until-found loop.
type Scan struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Status     string     `json:"status"`
	Steps      int        `json:"steps"`
	Confidence float64    `json:"confidence"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
