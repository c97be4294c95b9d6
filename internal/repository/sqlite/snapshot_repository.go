package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"dogfinder/internal/model"
)

// SnapshotRepository implements repository.SnapshotRepository for SQLite.
type SnapshotRepository struct {
	db *DB
}

func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Insert adds a new snapshot record to the database.
func (r *SnapshotRepository) Insert(snap *model.Snapshot) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO snapshots (filename, scan_id, timestamp, filepath, filesize, confidence, object_key)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, snap.Filename, snap.ScanID, snap.Timestamp, snap.FilePath, snap.FileSize, snap.Confidence, snap.ObjectKey)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return result.LastInsertId()
}

// GetByFilename retrieves a snapshot by its filename, or nil when unknown.
func (r *SnapshotRepository) GetByFilename(filename string) (*model.Snapshot, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var snap model.Snapshot
	err := r.db.Conn().QueryRow(`
		SELECT id, filename, scan_id, timestamp, filepath, filesize, confidence, object_key
		FROM snapshots WHERE filename = ?
	`, filename).Scan(&snap.ID, &snap.Filename, &snap.ScanID, &snap.Timestamp, &snap.FilePath, &snap.FileSize, &snap.Confidence, &snap.ObjectKey)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return &snap, nil
}

// GetRecent returns the newest snapshots first.
func (r *SnapshotRepository) GetRecent(limit int) ([]model.Snapshot, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, filename, scan_id, timestamp, filepath, filesize, confidence, object_key
		FROM snapshots ORDER BY timestamp DESC LIMIT ?
	`, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []model.Snapshot{}
	for rows.Next() {
		var snap model.Snapshot
		if err := rows.Scan(&snap.ID, &snap.Filename, &snap.ScanID, &snap.Timestamp, &snap.FilePath, &snap.FileSize, &snap.Confidence, &snap.ObjectKey); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Exists checks if a snapshot with the given filename exists.
func (r *SnapshotRepository) Exists(filename string) (bool, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM snapshots WHERE filename = ?`, filename).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check snapshot existence: %w", err)
	}
	return count > 0, nil
}

// SetObjectKey records where the snapshot was archived.
func (r *SnapshotRepository) SetObjectKey(filename, key string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`UPDATE snapshots SET object_key = ? WHERE filename = ?`, key, filename); err != nil {
		return fmt.Errorf("failed to update snapshot: %w", err)
	}
	return nil
}

// DeleteByFilename removes a snapshot record by its filename.
func (r *SnapshotRepository) DeleteByFilename(filename string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM snapshots WHERE filename = ?`, filename); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
