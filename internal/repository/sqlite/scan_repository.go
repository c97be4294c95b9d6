package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dogfinder/internal/model"
)

// ScanRepository implements repository.ScanRepository for SQLite.
type ScanRepository struct {
	db *DB
}

func NewScanRepository(db *DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Create records a scan that has just started.
func (r *ScanRepository) Create(scan *model.Scan) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().Exec(`
		INSERT INTO scans (id, source, status, steps, confidence, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, scan.ID, scan.Source, scan.Status, scan.Steps, scan.Confidence, scan.Error, scan.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}
	return nil
}

// Finish stores the final state of a scan.
func (r *ScanRepository) Finish(id, status string, steps int, confidence float64, errMsg string, finishedAt time.Time) error {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		UPDATE scans SET status = ?, steps = ?, confidence = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, status, steps, confidence, errMsg, finishedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update scan: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("scan %s not found", id)
	}
	return nil
}

// GetByID retrieves a scan, or nil when it does not exist.
func (r *ScanRepository) GetByID(id string) (*model.Scan, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`
		SELECT id, source, status, steps, confidence, error, started_at, finished_at
		FROM scans WHERE id = ?
	`, id)

	scan, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	return scan, nil
}

// GetRecent returns the newest scans first.
func (r *ScanRepository) GetRecent(limit int) ([]model.Scan, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, source, status, steps, confidence, error, started_at, finished_at
		FROM scans ORDER BY started_at DESC LIMIT ?
	`, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	scans := []model.Scan{}
	for rows.Next() {
		scan, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scan row: %w", err)
		}
		scans = append(scans, *scan)
	}
	return scans, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (*model.Scan, error) {
	var scan model.Scan
	var finished sql.NullTime
	if err := row.Scan(&scan.ID, &scan.Source, &scan.Status, &scan.Steps, &scan.Confidence, &scan.Error, &scan.StartedAt, &finished); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		scan.FinishedAt = &t
	}
	return &scan, nil
}

// limitOrDefault caps list queries.
func limitOrDefault(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
