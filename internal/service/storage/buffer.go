package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dogfinder/internal/config"
	"dogfinder/internal/logger"
	"dogfinder/internal/model"
	"dogfinder/internal/repository"
)

const (
	// timestampLayout is embedded in file names; it must not contain '_'.
	timestampLayout = "20060102-150405.000"
	manualScanID    = "manual"
)

// Archiver copies saved frames to long-term storage.
type Archiver interface {
	Upload(ctx context.Context, key string, data []byte) (string, error)
}

// BufferedFrame is a found frame waiting to be written.
type BufferedFrame struct {
	Timestamp  time.Time
	ScanID     string
	Confidence float64
	Data       []byte
}

// BufferService buffers found frames in memory and periodically flushes them
// to disk, the snapshot index and, when configured, the archive.
type BufferService struct {
	imagesDir    string
	limit        int
	interval     time.Duration
	frames       []BufferedFrame
	mu           sync.Mutex
	logger       *logger.Logger
	snapshotRepo repository.SnapshotRepository
	archiver     Archiver
	now          func() time.Time
}

// NewBufferService creates a BufferService. snapshotRepo and archiver may be nil.
func NewBufferService(cfg config.StorageConfig, logger *logger.Logger, snapshotRepo repository.SnapshotRepository, archiver Archiver) *BufferService {
	return &BufferService{
		imagesDir:    cfg.ImageDirectory,
		limit:        cfg.BufferLimit,
		interval:     cfg.FlushInterval,
		frames:       make([]BufferedFrame, 0),
		logger:       logger,
		snapshotRepo: snapshotRepo,
		archiver:     archiver,
		now:          time.Now,
	}
}

// Run flushes on a ticker until ctx is done, then flushes once more.
func (s *BufferService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush(ctx)
		case <-ctx.Done():
			s.Flush(context.Background())
			return
		}
	}
}

// AddFrame buffers a found frame. It reports false when the buffer is full.
func (s *BufferService) AddFrame(data []byte, scanID string, confidence float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limit > 0 && len(s.frames) >= s.limit {
		s.logger.Warning("Frame buffer full (%d) - dropping frame of scan %s", s.limit, scanID)
		return false
	}

	s.frames = append(s.frames, BufferedFrame{
		Timestamp:  s.now(),
		ScanID:     scanID,
		Confidence: confidence,
		Data:       data,
	})
	s.logger.Info("Frame buffer: %d/%d", len(s.frames), s.limit)
	return true
}

// Pending returns the number of buffered frames.
func (s *BufferService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Flush writes buffered frames and returns how many were saved.
func (s *BufferService) Flush(ctx context.Context) int {
	s.mu.Lock()
	frames := s.frames
	s.frames = make([]BufferedFrame, 0)
	s.mu.Unlock()

	if len(frames) == 0 {
		return 0
	}

	if err := os.MkdirAll(s.imagesDir, 0755); err != nil {
		s.logger.Error("Error creating directory: %v", err)
		return 0
	}

	saved := 0
	for _, frame := range frames {
		filename := Filename(frame.Timestamp, frame.ScanID)
		fullpath := filepath.Join(s.imagesDir, filename)

		if err := os.WriteFile(fullpath, frame.Data, 0644); err != nil {
			s.logger.Error("Error saving image %s: %v", filename, err)
			continue
		}
		saved++

		if s.snapshotRepo != nil {
			snap := &model.Snapshot{
				Filename:   filename,
				ScanID:     frame.ScanID,
				Timestamp:  frame.Timestamp,
				FilePath:   fullpath,
				FileSize:   int64(len(frame.Data)),
				Confidence: frame.Confidence,
			}
			if _, err := s.snapshotRepo.Insert(snap); err != nil {
				s.logger.Error("Error saving image to database %s: %v", filename, err)
			}
		}

		s.archive(ctx, filename, frame)
	}

	s.logger.Info("Flushed %d frame(s) to disk", saved)
	return saved
}

func (s *BufferService) archive(ctx context.Context, filename string, frame BufferedFrame) {
	if s.archiver == nil {
		return
	}

	scanID := frame.ScanID
	if scanID == "" {
		scanID = manualScanID
	}
	key := fmt.Sprintf("scans/%s/%s", scanID, filename)

	url, err := s.archiver.Upload(ctx, key, frame.Data)
	if err != nil {
		s.logger.Error("Error archiving %s: %v", filename, err)
		return
	}
	s.logger.Info("Archived %s to %s", filename, url)

	if s.snapshotRepo != nil {
		if err := s.snapshotRepo.SetObjectKey(filename, key); err != nil {
			s.logger.Error("Error recording archive key for %s: %v", filename, err)
		}
	}
}

// Path resolves a stored file name inside the image directory. It rejects
// anything that is not a plain file name.
func (s *BufferService) Path(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", fmt.Errorf("invalid image name %q", filename)
	}
	return filepath.Join(s.imagesDir, filename), nil
}

// Dir returns the image directory.
func (s *BufferService) Dir() string {
	return s.imagesDir
}

// Filename builds the on-disk name of a found frame.
func Filename(ts time.Time, scanID string) string {
	if scanID == "" {
		scanID = manualScanID
	}
	return fmt.Sprintf("%s_%s_dog.jpg", ts.UTC().Format(timestampLayout), scanID)
}

// ParseFilename extracts the timestamp and scan id from a name built by
// Filename. Manual detections yield an empty scan id.
func ParseFilename(name string) (time.Time, string, bool) {
	base := strings.TrimSuffix(name, ".jpg")
	if base == name {
		return time.Time{}, "", false
	}

	parts := strings.SplitN(base, "_", 3)
	if len(parts) != 3 || parts[2] != "dog" {
		return time.Time{}, "", false
	}

	ts, err := time.ParseInLocation(timestampLayout, parts[0], time.UTC)
	if err != nil {
		return time.Time{}, "", false
	}

	scanID := parts[1]
	if scanID == manualScanID {
		scanID = ""
	}
	return ts, scanID, true
}
