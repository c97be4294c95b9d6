// Package scan pans the camera step by step until the detector reports the
// target, then zooms in and stops.
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dogfinder/internal/camera"
	"dogfinder/internal/config"
	"dogfinder/internal/detector"
	"dogfinder/internal/logger"
)

// ErrTargetNotFound ends a bounded scan that used up its steps.
var ErrTargetNotFound = errors.New("target not found")

type Phase int

const (
	Panning Phase = iota
	Capturing
	Detecting
	Found
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Panning:
		return "panning"
	case Capturing:
		return "capturing"
	case Detecting:
		return "detecting"
	case Found:
		return "found"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Camera is the camera access the controller needs. *bridge.Bridge satisfies it.
type Camera interface {
	Snapshot() ([]byte, error)
	PTZ(cmd camera.PTZCommand) error
	Channel() int
}

// Detector judges a single JPEG frame.
type Detector interface {
	Detect(jpg []byte) (detector.Result, error)
}

// Event is emitted on every phase transition. Result is set once a frame has
// been judged; Err is set on the final Stopped event of a failed scan.
type Event struct {
	ScanID string
	Phase  Phase
	Step   int
	Result *detector.Result
	Err    error
	Time   time.Time
}

// Observer receives scan events synchronously on the scanning goroutine.
type Observer func(Event)

// Outcome summarises a finished scan. Frame is the JPEG the target was found in.
type Outcome struct {
	ScanID string
	Steps  int
	Result detector.Result
	Frame  []byte
}

type Controller struct {
	camera    Camera
	detector  Detector
	cfg       config.ScanConfig
	clock     Clock
	observers []Observer
	logger    *logger.Logger
}

type Option func(*Controller)

func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observers = append(c.observers, o) }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func NewController(cam Camera, det Detector, cfg config.ScanConfig, opts ...Option) *Controller {
	c := &Controller{
		camera:   cam,
		detector: det,
		cfg:      cfg,
		clock:    RealClock{},
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run scans until the target is found, a camera or detector call fails, ctx
// is cancelled, or MaxSteps pans (when positive) have been made. A found
// target is zoomed in on before Run returns.
func (c *Controller) Run(ctx context.Context, scanID string) (Outcome, error) {
	if scanID == "" {
		scanID = NewID()
	}
	out := Outcome{ScanID: scanID}
	inspect := c.cfg.InspectFirst

	c.logger.Info("Scan %s started (max steps %d, inspect first %v)", scanID, c.cfg.MaxSteps, inspect)

	for {
		if err := ctx.Err(); err != nil {
			return out, c.stop(out, nil, err)
		}

		if !inspect {
			if c.cfg.MaxSteps > 0 && out.Steps >= c.cfg.MaxSteps {
				return out, c.stop(out, nil, fmt.Errorf("scan %s: %w after %d steps", scanID, ErrTargetNotFound, out.Steps))
			}
			out.Steps++
			c.emit(out, Panning, nil, nil)
			if err := c.hold(ctx, camera.Right, c.cfg.PanSpeed, c.cfg.PanHold); err != nil {
				return out, c.stop(out, nil, fmt.Errorf("scan %s step %d: pan: %w", scanID, out.Steps, err))
			}
		}
		inspect = false

		c.emit(out, Capturing, nil, nil)
		jpg, err := c.camera.Snapshot()
		if err != nil {
			return out, c.stop(out, nil, fmt.Errorf("scan %s step %d: snapshot: %w", scanID, out.Steps, err))
		}

		result, err := c.detector.Detect(jpg)
		if err != nil {
			return out, c.stop(out, nil, fmt.Errorf("scan %s step %d: detect: %w", scanID, out.Steps, err))
		}
		c.emit(out, Detecting, &result, nil)
		c.logger.Info("Scan %s step %d: dog? %v conf %.2f", scanID, out.Steps, result.Found, result.BestConfidence)

		if !result.Found {
			continue
		}

		out.Result = result
		out.Frame = jpg
		c.emit(out, Found, &result, nil)
		if err := c.hold(ctx, camera.ZoomIn, c.cfg.ZoomSpeed, c.cfg.ZoomHold); err != nil {
			return out, c.stop(out, &result, fmt.Errorf("scan %s: zoom: %w", scanID, err))
		}
		return out, c.stop(out, &result, nil)
	}
}

// hold runs op for d and always follows it with a Stop, even when the wait
// is interrupted.
func (c *Controller) hold(ctx context.Context, op camera.Operation, speed int, d time.Duration) error {
	channel := c.camera.Channel()
	if err := c.camera.PTZ(camera.PTZCommand{Op: op, Speed: speed, Channel: channel}); err != nil {
		return err
	}

	sleepErr := c.clock.Sleep(ctx, d)
	stopErr := c.camera.PTZ(camera.PTZCommand{Op: camera.Stop, Channel: channel})
	if sleepErr != nil {
		return sleepErr
	}
	return stopErr
}

func (c *Controller) stop(out Outcome, result *detector.Result, err error) error {
	c.emit(out, Stopped, result, err)
	if err != nil {
		c.logger.Warning("Scan %s stopped after %d step(s): %v", out.ScanID, out.Steps, err)
	} else {
		c.logger.Info("Scan %s found target after %d step(s) (conf %.2f)", out.ScanID, out.Steps, out.Result.BestConfidence)
	}
	return err
}

func (c *Controller) emit(out Outcome, phase Phase, result *detector.Result, err error) {
	ev := Event{
		ScanID: out.ScanID,
		Phase:  phase,
		Step:   out.Steps,
		Result: result,
		Err:    err,
		Time:   c.clock.Now(),
	}
	for _, o := range c.observers {
		o(ev)
	}
}
