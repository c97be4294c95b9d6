package handler

import (
	"net/http"
	"os"
	"strconv"

	"dogfinder/internal/dto"
	"dogfinder/internal/logger"
	"dogfinder/internal/model"
	"dogfinder/internal/repository"
	"dogfinder/internal/service/storage"
)

// GetScansHandler lists recent scans.
func GetScansHandler(scanRepo repository.ScanRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := atoiDefault(r.URL.Query().Get("limit"), 50)

		scans, err := scanRepo.GetRecent(limit)
		if err != nil {
			logger.Error("Error querying scans from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, logger, http.StatusOK, scans)
	}
}

// GetDetectionsHandler lists recent detections, optionally filtered by scan
// and verdict.
func GetDetectionsHandler(detectionRepo repository.DetectionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := &model.DetectionFilter{
			ScanID: q.Get("scan_id"),
			Limit:  atoiDefault(q.Get("limit"), 50),
		}
		if raw := q.Get("found"); raw != "" {
			found, err := strconv.ParseBool(raw)
			if err != nil {
				writeJSON(w, logger, http.StatusBadRequest, APIError{Code: "invalid_filter", Message: "found must be a boolean"})
				return
			}
			filter.Found = &found
		}

		detections, err := detectionRepo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying detections from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, logger, http.StatusOK, detections)
	}
}

// GetSnapshotsHandler lists saved found-frames.
func GetSnapshotsHandler(snapshotRepo repository.SnapshotRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := atoiDefault(r.URL.Query().Get("limit"), 50)

		snapshots, err := snapshotRepo.GetRecent(limit)
		if err != nil {
			logger.Error("Error querying snapshots from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		pictures := make([]dto.SnapshotInfo, 0, len(snapshots))
		for _, snap := range snapshots {
			pictures = append(pictures, dto.NewSnapshotInfo(snap))
		}

		writeJSON(w, logger, http.StatusOK, pictures)
	}
}

// ViewSnapshotHandler serves a saved found-frame by name.
func ViewSnapshotHandler(buffer *storage.BufferService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := buffer.Path(r.URL.Query().Get("image"))
		if err != nil {
			http.Error(w, "Invalid image name", http.StatusBadRequest)
			return
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		http.ServeFile(w, r, path)
	}
}

// DeleteSnapshotHandler removes a saved found-frame from disk and database.
func DeleteSnapshotHandler(buffer *storage.BufferService, snapshotRepo repository.SnapshotRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := r.URL.Query().Get("filename")
		path, err := buffer.Path(filename)
		if err != nil {
			http.Error(w, "Filename required", http.StatusBadRequest)
			return
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Error("Failed to delete file %s: %v", path, err)
		}

		if err := snapshotRepo.DeleteByFilename(filename); err != nil {
			logger.Error("Failed to delete from database: %v", err)
		}

		logger.Info("Deleted snapshot %s", filename)
		w.WriteHeader(http.StatusNoContent)
	}
}
