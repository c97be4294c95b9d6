package repository

import (
	"time"

	"dogfinder/internal/model"
)

// ScanRepository stores scan runs.
type ScanRepository interface {
	Create(scan *model.Scan) error
	Finish(id, status string, steps int, confidence float64, errMsg string, finishedAt time.Time) error
	GetByID(id string) (*model.Scan, error)
	GetRecent(limit int) ([]model.Scan, error)
}

// DetectionRepository stores per-frame verdicts.
type DetectionRepository interface {
	Insert(det *model.Detection) (int64, error)
	GetAll(filter *model.DetectionFilter) ([]model.Detection, error)
}

// SnapshotRepository indexes found frames saved to disk.
type SnapshotRepository interface {
	Insert(snap *model.Snapshot) (int64, error)
	GetByFilename(filename string) (*model.Snapshot, error)
	GetRecent(limit int) ([]model.Snapshot, error)
	Exists(filename string) (bool, error)
	SetObjectKey(filename, key string) error
	DeleteByFilename(filename string) error
}
