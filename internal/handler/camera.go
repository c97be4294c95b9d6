package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"dogfinder/internal/camera"
	"dogfinder/internal/dto"
	"dogfinder/internal/logger"
	"dogfinder/internal/service"

	"github.com/goccy/go-json"
)

// SnapshotHandler serves the current camera frame as JPEG.
func SnapshotHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jpg, err := manager.Snapshot()
		if err != nil {
			writeError(w, logger, err)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-store")
		if _, err := w.Write(jpg); err != nil {
			logger.Error("Error writing snapshot: %v", err)
		}
	}
}

// PTZHandler forwards one motion command. A missing op means Stop and a
// missing speed means the default speed.
func PTZHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.PTZRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, logger, http.StatusBadRequest, APIError{Code: "invalid_body", Message: err.Error()})
			return
		}

		op := camera.Stop
		if req.Op != "" {
			parsed, err := camera.ParseOperation(req.Op)
			if err != nil {
				writeError(w, logger, err)
				return
			}
			op = parsed
		}

		speed := camera.DefaultSpeed
		if req.Speed != nil {
			speed = *req.Speed
		}

		cmd := camera.PTZCommand{Op: op, Channel: manager.Channel()}
		if op.Continuous() {
			cmd.Speed = speed
		}

		if err := manager.PTZ(cmd); err != nil {
			writeError(w, logger, fmt.Errorf("ptz %s: %w", op, err))
			return
		}

		writeJSON(w, logger, http.StatusOK, dto.PTZResponse{OK: true, Op: string(op)})
	}
}

// DetectDogHandler judges the current frame.
func DetectDogHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := manager.DetectDog()
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, dto.DetectResponse{
			Found:      result.Found,
			Confidence: result.BestConfidence,
		})
	}
}
