package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dogfinder/internal/camera"
	"dogfinder/internal/config"
	"dogfinder/internal/detector"
	"dogfinder/internal/logger"
	"dogfinder/internal/model"
	"dogfinder/internal/repository"
	"dogfinder/internal/scan"
)

// ErrScanInProgress is returned by StartScan while another scan is running.
var ErrScanInProgress = errors.New("scan already in progress")

// Camera is the bridged camera. *bridge.Bridge satisfies it.
type Camera interface {
	scan.Camera
	State() camera.State
}

// FrameStore keeps frames in which the target was found.
type FrameStore interface {
	AddFrame(data []byte, scanID string, confidence float64) bool
}

// Annotator draws detection boxes onto a JPEG frame.
type Annotator func(jpg []byte, boxes []detector.Box) ([]byte, error)

// Manager ties the camera, the detector and the scan loop together for the
// HTTP handlers and the standalone scanner.
type Manager struct {
	camera   Camera
	detector scan.Detector
	scanCfg  config.ScanConfig
	logger   *logger.Logger

	scanRepo      repository.ScanRepository
	detectionRepo repository.DetectionRepository
	frames        FrameStore
	annotate      Annotator
	observers     []scan.Observer
	clock         scan.Clock

	mu     sync.Mutex
	active string
	wg     sync.WaitGroup
}

type Option func(*Manager)

func WithScanRepository(r repository.ScanRepository) Option {
	return func(m *Manager) { m.scanRepo = r }
}

func WithDetectionRepository(r repository.DetectionRepository) Option {
	return func(m *Manager) { m.detectionRepo = r }
}

func WithFrameStore(s FrameStore) Option {
	return func(m *Manager) { m.frames = s }
}

func WithAnnotator(a Annotator) Option {
	return func(m *Manager) { m.annotate = a }
}

// WithObserver adds a receiver of scan events.
func WithObserver(o scan.Observer) Option {
	return func(m *Manager) { m.observers = append(m.observers, o) }
}

func WithClock(c scan.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func NewManager(cam Camera, det scan.Detector, cfg config.ScanConfig, logger *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		camera:   cam,
		detector: det,
		scanCfg:  cfg,
		logger:   logger,
		clock:    scan.RealClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot returns the current camera frame.
func (m *Manager) Snapshot() ([]byte, error) {
	return m.camera.Snapshot()
}

// PTZ validates and forwards a single motion command.
func (m *Manager) PTZ(cmd camera.PTZCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	return m.camera.PTZ(cmd)
}

// Channel returns the camera channel commands are sent to.
func (m *Manager) Channel() int {
	return m.camera.Channel()
}

// CameraState reports the camera session state.
func (m *Manager) CameraState() camera.State {
	return m.camera.State()
}

// DetectDog judges the current frame once.
func (m *Manager) DetectDog() (detector.Result, error) {
	jpg, err := m.camera.Snapshot()
	if err != nil {
		return detector.Result{}, fmt.Errorf("snapshot: %w", err)
	}

	result, err := m.detector.Detect(jpg)
	if err != nil {
		return detector.Result{}, err
	}

	m.recordDetection("", 0, result)
	if result.Found {
		m.storeFrame(jpg, "", result)
	}
	return result, nil
}

// StartScan runs a scan in the background and returns its id. Only one scan
// started this way runs at a time.
func (m *Manager) StartScan(ctx context.Context, source string) (string, error) {
	m.mu.Lock()
	if m.active != "" {
		active := m.active
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrScanInProgress, active)
	}
	id := scan.NewID()
	m.active = id
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			m.active = ""
			m.mu.Unlock()
		}()

		if _, err := m.RunScan(ctx, id, source); err != nil {
			m.logger.Warning("Background scan %s ended: %v", id, err)
		}
	}()

	return id, nil
}

// ActiveScan returns the id of the running background scan, if any.
func (m *Manager) ActiveScan() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Wait blocks until background scans have returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// RunScan runs a scan on the calling goroutine and records it.
func (m *Manager) RunScan(ctx context.Context, id, source string) (scan.Outcome, error) {
	if id == "" {
		id = scan.NewID()
	}

	if m.scanRepo != nil {
		rec := &model.Scan{
			ID:        id,
			Source:    source,
			Status:    model.ScanRunning,
			StartedAt: m.clock.Now(),
		}
		if err := m.scanRepo.Create(rec); err != nil {
			m.logger.Error("Failed to record scan %s: %v", id, err)
		}
	}

	controller := scan.NewController(m.camera, m.detector, m.scanCfg,
		scan.WithClock(m.clock),
		scan.WithLogger(m.logger),
		scan.WithObserver(m.observe),
	)

	out, err := controller.Run(ctx, id)

	if out.Result.Found {
		m.storeFrame(out.Frame, out.ScanID, out.Result)
	}
	m.finishScan(out, err)
	return out, err
}

func (m *Manager) observe(e scan.Event) {
	if e.Phase == scan.Detecting && e.Result != nil {
		m.recordDetection(e.ScanID, e.Step, *e.Result)
	}
	for _, o := range m.observers {
		o(e)
	}
}

func (m *Manager) finishScan(out scan.Outcome, err error) {
	if m.scanRepo == nil {
		return
	}

	status := model.ScanFound
	errMsg := ""
	switch {
	case err == nil:
	case errors.Is(err, scan.ErrTargetNotFound):
		status = model.ScanNotFound
	default:
		status = model.ScanFailed
		errMsg = err.Error()
	}

	if ferr := m.scanRepo.Finish(out.ScanID, status, out.Steps, out.Result.BestConfidence, errMsg, m.clock.Now()); ferr != nil {
		m.logger.Error("Failed to finish scan %s: %v", out.ScanID, ferr)
	}
}

func (m *Manager) recordDetection(scanID string, step int, result detector.Result) {
	if m.detectionRepo == nil {
		return
	}

	det := &model.Detection{
		ScanID:     scanID,
		Step:       step,
		Found:      result.Found,
		Confidence: result.BestConfidence,
		Boxes:      len(result.Confidences),
		CreatedAt:  m.clock.Now(),
	}
	if _, err := m.detectionRepo.Insert(det); err != nil {
		m.logger.Error("Failed to record detection: %v", err)
	}
}

func (m *Manager) storeFrame(jpg []byte, scanID string, result detector.Result) {
	if m.frames == nil || len(jpg) == 0 {
		return
	}

	frame := jpg
	if m.annotate != nil && len(result.Boxes) > 0 {
		annotated, err := m.annotate(jpg, result.Boxes)
		if err != nil {
			m.logger.Warning("Failed to annotate frame: %v", err)
		} else {
			frame = annotated
		}
	}

	m.frames.AddFrame(frame, scanID, result.BestConfidence)
}
