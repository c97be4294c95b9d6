package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"dogfinder/internal/bridge"
	"dogfinder/internal/camera"
	"dogfinder/internal/config"
	"dogfinder/internal/detector"
	"dogfinder/internal/detector/yolo"
	"dogfinder/internal/events"
	"dogfinder/internal/events/kafka"
	"dogfinder/internal/logger"
	"dogfinder/internal/reolink"
	"dogfinder/internal/repository/sqlite"
	"dogfinder/internal/route"
	"dogfinder/internal/service"
	"dogfinder/internal/service/archive"
	"dogfinder/internal/service/storage"
	"dogfinder/internal/service/websocket"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config   *config.Config
	logger   *logger.Logger
	db       *sqlite.DB
	bridge   *bridge.Bridge
	model    *yolo.Model
	buffer   *storage.BufferService
	hub      *websocket.HubService
	producer *kafka.Producer
	manager  *service.Manager
	deps     route.Dependencies
}

// NewApp builds every service of the web server. Kafka and MinIO are wired
// only when configured.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.LogDirectory)
	if err != nil {
		return nil, err
	}

	a := &App{config: cfg, logger: log}
	if err := a.init(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.config

	db, err := sqlite.New(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.db = db
	scanRepo := sqlite.NewScanRepository(db)
	detectionRepo := sqlite.NewDetectionRepository(db)
	snapshotRepo := sqlite.NewSnapshotRepository(db)

	model, err := yolo.Load(cfg.Detector.ModelPath, cfg.Detector.NMSThreshold, a.logger)
	if err != nil {
		return err
	}
	a.model = model
	det := detector.New(model,
		detector.WithInputSize(cfg.Detector.InputSize),
		detector.WithMinConfidence(cfg.Detector.MinConfidence),
		detector.WithTargetClass(cfg.Detector.TargetClass),
		detector.WithLogger(a.logger),
	)

	client := reolink.New(reolink.BaseURL(cfg.Camera.Host, cfg.Camera.HTTPS), cfg.Camera.Username, cfg.Camera.Password, cfg.Camera.Timeout)
	session := camera.NewSession(client, cfg.Camera.Channel, a.logger)
	a.bridge = bridge.New(session, a.logger)

	var archiver storage.Archiver
	if cfg.Minio.Endpoint != "" {
		m, err := archive.NewMinio(cfg.Minio)
		if err != nil {
			return err
		}
		if err := m.EnsureBucket(ctx); err != nil {
			return err
		}
		archiver = m
		a.logger.Info("Archiving found frames to MinIO %s/%s", cfg.Minio.Endpoint, cfg.Minio.Bucket)
	}
	a.buffer = storage.NewBufferService(cfg.Storage, a.logger, snapshotRepo, archiver)

	a.hub = websocket.NewHubService(a.logger)
	sinks := []events.Sink{a.hub}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		a.producer = producer
		sinks = append(sinks, producer)
		a.logger.Info("Publishing scan events to Kafka topic %s", cfg.Kafka.Topic)
	}
	dispatcher := events.NewDispatcher(a.logger, sinks...)

	a.manager = service.NewManager(a.bridge, det, cfg.Scan, a.logger,
		service.WithScanRepository(scanRepo),
		service.WithDetectionRepository(detectionRepo),
		service.WithFrameStore(a.buffer),
		service.WithAnnotator(yolo.Annotate),
		service.WithObserver(dispatcher.Observe),
	)

	a.deps = route.Dependencies{
		Manager:       a.manager,
		Hub:           a.hub,
		Buffer:        a.buffer,
		ScanRepo:      scanRepo,
		DetectionRepo: detectionRepo,
		SnapshotRepo:  snapshotRepo,
		Logger:        a.logger,
	}
	return nil
}

// Run serves HTTP until ctx is done, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	var background sync.WaitGroup
	defer background.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	background.Add(2)
	go func() {
		defer background.Done()
		a.buffer.Run(ctx)
	}()
	go func() {
		defer background.Done()
		a.hub.Run(ctx)
	}()

	server := &http.Server{
		Addr:              a.config.ServerAddress(),
		Handler:           route.SetupRoutes(ctx, a.deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("🚀 Dog Finder server")
	a.logger.Info("📍 URL: http://%s", server.Addr)
	a.logger.Info("📷 Camera: %s (channel %d)", a.config.Camera.Host, a.config.Camera.Channel)
	a.logger.Info("📁 Images: %s", a.config.Storage.ImageDirectory)
	a.logger.Info("🤖 AI Model: %s", a.config.Detector.ModelPath)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("🛑 Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Server shutdown: %v", err)
	}
	a.manager.Wait()
	return nil
}

func (a *App) close() {
	if a.bridge != nil {
		if err := a.bridge.Close(true); err != nil {
			a.logger.Warning("Camera logout failed: %v", err)
		}
	}
	if a.model != nil {
		a.model.Close()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warning("Kafka producer close: %v", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	a.logger.Close()
}
