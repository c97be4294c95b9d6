package model

import "time"

// Detection is one judged frame. ScanID is empty for manual checks.
type Detection struct {
	ID         int64     `json:"id"`
	ScanID     string    `json:"scan_id,omitempty"`
	Step       int       `json:"step"`
	Found      bool      `json:"found"`
	Confidence float64   `json:"confidence"`
	Boxes      int       `json:"boxes"`
	CreatedAt  time.Time `json:"created_at"`
}

// DetectionFilter narrows detection queries.
type DetectionFilter struct {
	ScanID string
	Found  *bool
	Limit  int
}
