package handler

import (
	"net/http"

	"dogfinder/internal/dto"
	"dogfinder/internal/logger"
	"dogfinder/internal/service"
)

// HealthHandler reports liveness and the camera session state.
func HealthHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, dto.HealthResponse{
			Status:     "ok",
			Camera:     manager.CameraState().String(),
			ActiveScan: manager.ActiveScan(),
		})
	}
}
