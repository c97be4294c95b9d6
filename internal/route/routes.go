package route

import (
	"context"
	"net/http"

	"dogfinder/internal/handler"
	"dogfinder/internal/logger"
	"dogfinder/internal/middleware"
	"dogfinder/internal/repository"
	"dogfinder/internal/service"
	"dogfinder/internal/service/storage"
	"dogfinder/internal/service/websocket"

	"github.com/gorilla/mux"
)

// Dependencies are the services the routes are served from.
type Dependencies struct {
	Manager       *service.Manager
	Hub           *websocket.HubService
	Buffer        *storage.BufferService
	ScanRepo      repository.ScanRepository
	DetectionRepo repository.DetectionRepository
	SnapshotRepo  repository.SnapshotRepository
	Logger        *logger.Logger
}

// SetupRoutes registers the camera, scan, history and log endpoints. Scans
// started over HTTP live as long as ctx.
func SetupRoutes(ctx context.Context, deps Dependencies) http.Handler {
	r := mux.NewRouter()
	log := deps.Logger

	// Camera control
	r.HandleFunc("/", handler.IndexHandler()).Methods(http.MethodGet)
	r.HandleFunc("/snapshot.jpg", handler.SnapshotHandler(deps.Manager, log)).Methods(http.MethodGet)
	r.HandleFunc("/ptz", handler.PTZHandler(deps.Manager, log)).Methods(http.MethodPost)
	r.HandleFunc("/detect_dog", handler.DetectDogHandler(deps.Manager, log)).Methods(http.MethodPost)
	r.HandleFunc("/health", handler.HealthHandler(deps.Manager, log)).Methods(http.MethodGet)

	// API endpoints
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/scan", handler.StartScanHandler(ctx, deps.Manager, log)).Methods(http.MethodPost)
	api.HandleFunc("/scans", handler.GetScansHandler(deps.ScanRepo, log)).Methods(http.MethodGet)
	api.HandleFunc("/detections", handler.GetDetectionsHandler(deps.DetectionRepo, log)).Methods(http.MethodGet)
	api.HandleFunc("/snapshots", handler.GetSnapshotsHandler(deps.SnapshotRepo, log)).Methods(http.MethodGet)
	api.HandleFunc("/snapshots/view", handler.ViewSnapshotHandler(deps.Buffer)).Methods(http.MethodGet)
	api.HandleFunc("/snapshots/delete", handler.DeleteSnapshotHandler(deps.Buffer, deps.SnapshotRepo, log)).Methods(http.MethodPost, http.MethodDelete)
	api.HandleFunc("/events", handler.EventsWebsocketHandler(deps.Hub, log)).Methods(http.MethodGet)

	// Log endpoints
	r.HandleFunc("/logs/{level:info|warning|error}", handler.ShowLogsHandler(log)).Methods(http.MethodGet)
	r.HandleFunc("/logs/{level:info|warning|error}/clear", handler.ClearLogsHandler(log)).Methods(http.MethodPost)

	r.Use(middleware.Recover(log), middleware.RequestLogger(log))
	return r
}
