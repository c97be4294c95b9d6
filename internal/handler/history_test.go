package handler

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dogfinder/internal/config"
	"dogfinder/internal/logger"
	"dogfinder/internal/model"
	"dogfinder/internal/repository/sqlite"
	"dogfinder/internal/service/storage"
)

func newHistoryDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetDetectionsHandler_Filters(t *testing.T) {
	repo := sqlite.NewDetectionRepository(newHistoryDB(t))
	now := time.Now()
	for i, found := range []bool{true, false, true} {
		repo.Insert(&model.Detection{ScanID: "s1", Step: i + 1, Found: found, Confidence: 0.5, CreatedAt: now})
	}

	h := GetDetectionsHandler(repo, logger.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/detections?found=true&scan_id=s1", nil))
	var detections []model.Detection
	decodeBody(t, rec, &detections)
	if len(detections) != 2 {
		t.Errorf("Expected 2 found detections, got %d", len(detections))
	}

	bad := httptest.NewRecorder()
	h.ServeHTTP(bad, httptest.NewRequest(http.MethodGet, "/api/detections?found=maybe", nil))
	if bad.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an invalid filter, got %d", bad.Code)
	}
}

func TestGetScansHandler(t *testing.T) {
	repo := sqlite.NewScanRepository(newHistoryDB(t))
	repo.Create(&model.Scan{ID: "s1", Source: "web", Status: model.ScanRunning, StartedAt: time.Now()})

	rec := httptest.NewRecorder()
	GetScansHandler(repo, logger.Nop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scans", nil))

	var scans []model.Scan
	decodeBody(t, rec, &scans)
	if len(scans) != 1 || scans[0].ID != "s1" {
		t.Errorf("Unexpected scans %+v", scans)
	}
}

func TestSnapshotHandlers_ViewAndDelete(t *testing.T) {
	dir := t.TempDir()
	repo := sqlite.NewSnapshotRepository(newHistoryDB(t))
	buffer := storage.NewBufferService(config.StorageConfig{
		ImageDirectory: dir,
		BufferLimit:    5,
		FlushInterval:  time.Hour,
	}, logger.Nop(), repo, nil)

	buffer.AddFrame([]byte{0xFF, 0xD8, 0xFF, 0xD9}, "s1", 0.8)
	buffer.Flush(t.Context())

	list := httptest.NewRecorder()
	GetSnapshotsHandler(repo, logger.Nop()).ServeHTTP(list, httptest.NewRequest(http.MethodGet, "/api/snapshots", nil))
	var snapshots []map[string]any
	decodeBody(t, list, &snapshots)
	if len(snapshots) != 1 {
		t.Fatalf("Expected one snapshot, got %d", len(snapshots))
	}
	name, _ := snapshots[0]["name"].(string)

	view := httptest.NewRecorder()
	ViewSnapshotHandler(buffer).ServeHTTP(view, httptest.NewRequest(http.MethodGet, "/api/snapshots/view?image="+name, nil))
	if view.Code != http.StatusOK || view.Body.Len() != 4 {
		t.Fatalf("Expected the stored frame, got %d (%d bytes)", view.Code, view.Body.Len())
	}

	traversal := httptest.NewRecorder()
	ViewSnapshotHandler(buffer).ServeHTTP(traversal, httptest.NewRequest(http.MethodGet, "/api/snapshots/view?image=../test.db", nil))
	if traversal.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a path outside the image dir, got %d", traversal.Code)
	}

	del := httptest.NewRecorder()
	DeleteSnapshotHandler(buffer, repo, logger.Nop()).ServeHTTP(del, httptest.NewRequest(http.MethodDelete, "/api/snapshots/delete?filename="+name, nil))
	if del.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", del.Code)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
		t.Errorf("Expected file to be removed")
	}
	if exists, _ := repo.Exists(name); exists {
		t.Errorf("Expected database row to be removed")
	}
}
