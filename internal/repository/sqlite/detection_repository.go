package sqlite

import (
	"fmt"

	"dogfinder/internal/model"
)

// DetectionRepository implements repository.DetectionRepository for SQLite.
type DetectionRepository struct {
	db *DB
}

// NewDetectionRepository creates a new SQLite detection repository.
func NewDetectionRepository(db *DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

// Insert adds a new detection record to the database.
func (r *DetectionRepository) Insert(det *model.Detection) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO detections (scan_id, step, found, confidence, boxes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, det.ScanID, det.Step, det.Found, det.Confidence, det.Boxes, det.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert detection: %w", err)
	}

	return result.LastInsertId()
}

// GetAll retrieves detections matching filter, newest first.
func (r *DetectionRepository) GetAll(filter *model.DetectionFilter) ([]model.Detection, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT id, scan_id, step, found, confidence, boxes, created_at
		FROM detections
		WHERE 1=1
	`
	args := []interface{}{}

	limit := 0
	if filter != nil {
		if filter.ScanID != "" {
			query += " AND scan_id = ?"
			args = append(args, filter.ScanID)
		}
		if filter.Found != nil {
			query += " AND found = ?"
			args = append(args, *filter.Found)
		}
		limit = filter.Limit
	}

	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limitOrDefault(limit))

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	detections := []model.Detection{}
	for rows.Next() {
		var det model.Detection
		if err := rows.Scan(&det.ID, &det.ScanID, &det.Step, &det.Found, &det.Confidence, &det.Boxes, &det.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, det)
	}

	return detections, rows.Err()
}
