package handler

import (
	"context"
	"net/http"

	"dogfinder/internal/dto"
	"dogfinder/internal/logger"
	"dogfinder/internal/service"
)

// StartScanHandler starts a background scan bound to ctx, not to the request.
func StartScanHandler(ctx context.Context, manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := manager.StartScan(ctx, "web")
		if err != nil {
			writeError(w, logger, err)
			return
		}

		logger.Info("Scan %s started from %s", id, r.RemoteAddr)
		writeJSON(w, logger, http.StatusAccepted, dto.ScanStarted{ScanID: id})
	}
}
