package dto

import (
	"net/url"
	"time"

	"dogfinder/internal/model"

	"github.com/goccy/go-json"
)

type ScanStarted struct {
	ScanID string `json:"scan_id"`
}

// SnapshotInfo represents a saved found-frame in listings.
type SnapshotInfo struct {
	Name       string    `json:"name"`
	Date       time.Time `json:"date"`
	TimeOfDay  time.Time `json:"timeOfDay"`
	ScanID     string    `json:"scan_id,omitempty"`
	Confidence float64   `json:"confidence"`
	URL        string    `json:"url"`
	Archived   bool      `json:"archived"`
}

// NewSnapshotInfo converts a stored snapshot for the API.
func NewSnapshotInfo(s model.Snapshot) SnapshotInfo {
	return SnapshotInfo{
		Name:       s.Filename,
		Date:       s.Timestamp,
		TimeOfDay:  s.Timestamp,
		ScanID:     s.ScanID,
		Confidence: s.Confidence,
		URL:        "/api/snapshots/view?image=" + url.QueryEscape(s.Filename),
		Archived:   s.ObjectKey != "",
	}
}

// MarshalJSON formats date and time-of-day for display.
func (s SnapshotInfo) MarshalJSON() ([]byte, error) {
	type Alias SnapshotInfo
	return json.Marshal(&struct {
		Date      string `json:"date"`
		TimeOfDay string `json:"timeOfDay"`
		Alias
	}{
		Date:      s.Date.Format("02-01-2006"),
		TimeOfDay: s.TimeOfDay.Format("15:04:05"),
		Alias:     (Alias)(s),
	})
}
