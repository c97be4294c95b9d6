package service

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"dogfinder/internal/camera"
	"dogfinder/internal/config"
	"dogfinder/internal/detector"
	"dogfinder/internal/logger"
	"dogfinder/internal/model"
	"dogfinder/internal/repository/sqlite"
	"dogfinder/internal/scan"
)

type fakeCamera struct {
	mu       sync.Mutex
	frames   int
	commands []camera.PTZCommand
	err      error
}

func (c *fakeCamera) Snapshot() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	c.frames++
	return []byte{byte(c.frames)}, nil
}

func (c *fakeCamera) PTZ(cmd camera.PTZCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, cmd)
	return nil
}

func (c *fakeCamera) Channel() int        { return 0 }
func (c *fakeCamera) State() camera.State { return camera.Connected }

// fakeDetector finds a dog from frame foundAt onwards. A non-nil gate blocks
// every call until it is closed.
type fakeDetector struct {
	foundAt int
	err     error
	gate    chan struct{}
}

func (d *fakeDetector) Detect(jpg []byte) (detector.Result, error) {
	if d.gate != nil {
		<-d.gate
	}
	if d.err != nil {
		return detector.Result{}, d.err
	}
	if d.foundAt > 0 && int(jpg[0]) >= d.foundAt {
		boxes := []detector.Box{{Class: detector.DogClass, Confidence: 0.9, Rect: image.Rect(0, 0, 4, 4)}}
		return detector.Reduce(boxes, detector.DogClass, 0.35), nil
	}
	return detector.Reduce(nil, detector.DogClass, 0.35), nil
}

type instantClock struct{}

func (instantClock) Now() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
func (instantClock) Sleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

type fakeFrames struct {
	mu     sync.Mutex
	frames [][]byte
	scans  []string
}

func (f *fakeFrames) AddFrame(data []byte, scanID string, confidence float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, data)
	f.scans = append(f.scans, scanID)
	return true
}

func newTestRepos(t *testing.T) (*sqlite.ScanRepository, *sqlite.DetectionRepository) {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlite.NewScanRepository(db), sqlite.NewDetectionRepository(db)
}

func scanConfig(maxSteps int) config.ScanConfig {
	cfg := config.Default().Scan
	cfg.MaxSteps = maxSteps
	return cfg
}

func TestManager_DetectDogRecordsAndStores(t *testing.T) {
	scans, detections := newTestRepos(t)
	frames := &fakeFrames{}
	annotated := 0

	m := NewManager(&fakeCamera{}, &fakeDetector{foundAt: 1}, scanConfig(0), logger.Nop(),
		WithScanRepository(scans),
		WithDetectionRepository(detections),
		WithFrameStore(frames),
		WithClock(instantClock{}),
		WithAnnotator(func(jpg []byte, boxes []detector.Box) ([]byte, error) {
			annotated++
			return append([]byte{0xAA}, jpg...), nil
		}),
	)

	result, err := m.DetectDog()
	if err != nil {
		t.Fatalf("DetectDog failed: %v", err)
	}
	if !result.Found || result.BestConfidence != 0.9 {
		t.Errorf("Unexpected result %+v", result)
	}

	rows, err := detections.GetAll(nil)
	if err != nil || len(rows) != 1 {
		t.Fatalf("Expected one detection row, got %v (%v)", rows, err)
	}
	if rows[0].ScanID != "" || !rows[0].Found || rows[0].Boxes != 1 {
		t.Errorf("Unexpected detection %+v", rows[0])
	}

	if annotated != 1 || len(frames.frames) != 1 || frames.frames[0][0] != 0xAA {
		t.Errorf("Expected the annotated frame to be stored")
	}
}

func TestManager_DetectDogErrors(t *testing.T) {
	m := NewManager(&fakeCamera{err: camera.ErrCameraUnavailable}, &fakeDetector{}, scanConfig(0), logger.Nop())
	if _, err := m.DetectDog(); !errors.Is(err, camera.ErrCameraUnavailable) {
		t.Errorf("Expected ErrCameraUnavailable, got %v", err)
	}

	m = NewManager(&fakeCamera{}, &fakeDetector{err: detector.ErrDecode}, scanConfig(0), logger.Nop())
	if _, err := m.DetectDog(); !errors.Is(err, detector.ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", err)
	}
}

func TestManager_PTZValidates(t *testing.T) {
	cam := &fakeCamera{}
	m := NewManager(cam, &fakeDetector{}, scanConfig(0), logger.Nop())

	if err := m.PTZ(camera.PTZCommand{Op: camera.Left, Speed: 30}); err != nil {
		t.Fatalf("PTZ failed: %v", err)
	}
	if err := m.PTZ(camera.PTZCommand{Op: camera.Left, Speed: 99}); !errors.Is(err, camera.ErrInvalidCommand) {
		t.Errorf("Expected ErrInvalidCommand, got %v", err)
	}
	if len(cam.commands) != 1 {
		t.Errorf("Expected only the valid command to reach the camera, got %v", cam.commands)
	}
}

func TestManager_RunScanRecordsHistory(t *testing.T) {
	tests := []struct {
		name     string
		det      *fakeDetector
		maxSteps int
		status   string
		steps    int
	}{
		{name: "found", det: &fakeDetector{foundAt: 2}, status: model.ScanFound, steps: 2},
		{name: "not found", det: &fakeDetector{}, maxSteps: 2, status: model.ScanNotFound, steps: 2},
		{name: "failed", det: &fakeDetector{err: detector.ErrInference}, status: model.ScanFailed, steps: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scans, detections := newTestRepos(t)
			frames := &fakeFrames{}
			var phases []scan.Phase

			m := NewManager(&fakeCamera{}, tt.det, scanConfig(tt.maxSteps), logger.Nop(),
				WithScanRepository(scans),
				WithDetectionRepository(detections),
				WithFrameStore(frames),
				WithClock(instantClock{}),
				WithObserver(func(e scan.Event) { phases = append(phases, e.Phase) }),
			)

			_, _ = m.RunScan(context.Background(), "scan-"+tt.status, "test")

			rec, err := scans.GetByID("scan-" + tt.status)
			if err != nil || rec == nil {
				t.Fatalf("Expected scan record: %v / %v", rec, err)
			}
			if rec.Status != tt.status || rec.Steps != tt.steps || rec.FinishedAt == nil {
				t.Errorf("Unexpected scan record %+v", rec)
			}
			if tt.status == model.ScanFailed && rec.Error == "" {
				t.Errorf("Expected the failure to be recorded")
			}

			if len(phases) == 0 || phases[len(phases)-1] != scan.Stopped {
				t.Errorf("Expected observer to see the final Stopped event, got %v", phases)
			}

			rows, _ := detections.GetAll(&model.DetectionFilter{ScanID: rec.ID})
			if tt.status != model.ScanFailed && len(rows) != tt.steps {
				t.Errorf("Expected %d detections, got %d", tt.steps, len(rows))
			}

			wantFrames := 0
			if tt.status == model.ScanFound {
				wantFrames = 1
			}
			if len(frames.frames) != wantFrames {
				t.Errorf("Expected %d stored frame(s), got %d", wantFrames, len(frames.frames))
			}
		})
	}
}

func TestManager_StartScanOneAtATime(t *testing.T) {
	gate := make(chan struct{})
	m := NewManager(&fakeCamera{}, &fakeDetector{foundAt: 1, gate: gate}, scanConfig(0), logger.Nop(),
		WithClock(instantClock{}),
	)

	id, err := m.StartScan(context.Background(), "web")
	if err != nil || id == "" {
		t.Fatalf("StartScan failed: %q, %v", id, err)
	}
	if m.ActiveScan() != id {
		t.Errorf("Expected active scan %s, got %s", id, m.ActiveScan())
	}

	if _, err := m.StartScan(context.Background(), "web"); !errors.Is(err, ErrScanInProgress) {
		t.Errorf("Expected ErrScanInProgress, got %v", err)
	}

	close(gate)
	m.Wait()

	if m.ActiveScan() != "" {
		t.Errorf("Expected no active scan after completion")
	}
	if _, err := m.StartScan(context.Background(), "web"); err != nil {
		t.Errorf("Expected a new scan to start after the first finished: %v", err)
	}
	m.Wait()
}
