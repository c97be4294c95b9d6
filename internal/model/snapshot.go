package model

import "time"

// Snapshot is a stored frame in which the target was found.
type Snapshot struct {
	ID         int64     `json:"id"`
	Filename   string    `json:"filename"`
	ScanID     string    `json:"scan_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	FilePath   string    `json:"-"`
	FileSize   int64     `json:"filesize"`
	Confidence float64   `json:"confidence"`
	ObjectKey  string    `json:"object_key,omitempty"`
}
