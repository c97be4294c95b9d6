// Package detector turns camera frames into a dog/no-dog verdict.
package detector

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"dogfinder/internal/logger"

	"github.com/samber/lo"
)

var (
	// ErrDecode is returned when the frame bytes are not a decodable image.
	ErrDecode = errors.New("failed to decode frame")
	// ErrInference is returned when the model fails on a decoded frame.
	ErrInference = errors.New("inference failed")
)

const (
	DefaultInputSize     = 640
	DefaultMinConfidence = 0.35
	// DogClass is the COCO class id of "dog".
	DogClass = 16
)

// Box is one detection reported by a Model, in source image coordinates.
type Box struct {
	Class      int
	Confidence float64
	Rect       image.Rectangle
}

// Model is an object detector. Implementations must not return boxes below
// minConfidence.
type Model interface {
	Predict(img image.Image, inputSize int, minConfidence float64) ([]Box, error)
}

// Frame is a captured JPEG with its decoded image.
type Frame struct {
	Data  []byte
	Image image.Image
}

// Result is the verdict for one frame. Found is true exactly when
// Confidences is non-empty, and BestConfidence is then its maximum.
type Result struct {
	Found          bool      `json:"found"`
	Confidences    []float64 `json:"confidences"`
	BestConfidence float64   `json:"confidence"`
	Boxes          []Box     `json:"-"`
}

type Detector struct {
	model         Model
	inputSize     int
	minConfidence float64
	targetClass   int
	logger        *logger.Logger
}

type Option func(*Detector)

func WithInputSize(size int) Option {
	return func(d *Detector) { d.inputSize = size }
}

func WithMinConfidence(conf float64) Option {
	return func(d *Detector) { d.minConfidence = conf }
}

func WithTargetClass(class int) Option {
	return func(d *Detector) { d.targetClass = class }
}

func WithLogger(l *logger.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

func New(model Model, opts ...Option) *Detector {
	d := &Detector{
		model:         model,
		inputSize:     DefaultInputSize,
		minConfidence: DefaultMinConfidence,
		targetClass:   DogClass,
		logger:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode turns JPEG or PNG bytes into a Frame.
func Decode(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("%w: empty frame", ErrDecode)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return Frame{Data: data, Image: img}, nil
}

// Detect decodes jpg and runs the model on it.
func (d *Detector) Detect(jpg []byte) (Result, error) {
	frame, err := Decode(jpg)
	if err != nil {
		return Result{}, err
	}
	return d.DetectFrame(frame)
}

// DetectFrame runs the model on an already decoded frame.
func (d *Detector) DetectFrame(frame Frame) (Result, error) {
	boxes, err := d.model.Predict(frame.Image, d.inputSize, d.minConfidence)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInference, err)
	}

	result := Reduce(boxes, d.targetClass, d.minConfidence)
	if result.Found {
		d.logger.Info("Detected %s in frame (%d box(es), best %.2f)", ClassName(d.targetClass), len(result.Confidences), result.BestConfidence)
	}
	return result, nil
}

// Reduce keeps the boxes of targetClass at or above minConfidence, in model
// order, and summarises them.
func Reduce(boxes []Box, targetClass int, minConfidence float64) Result {
	kept := lo.Filter(boxes, func(b Box, _ int) bool {
		return b.Class == targetClass && b.Confidence >= minConfidence
	})
	if len(kept) == 0 {
		return Result{Found: false, Confidences: []float64{}, BestConfidence: 0.0}
	}

	confidences := lo.Map(kept, func(b Box, _ int) float64 { return b.Confidence })
	return Result{
		Found:          true,
		Confidences:    confidences,
		BestConfidence: lo.Max(confidences),
		Boxes:          kept,
	}
}

var classNames = map[int]string{
	0:  "person",
	1:  "bicycle",
	2:  "car",
	3:  "motorcycle",
	5:  "bus",
	7:  "truck",
	14: "bird",
	15: "cat",
	16: "dog",
	17: "horse",
}

// ClassName maps a COCO class id to a label.
func ClassName(class int) string {
	if name, ok := classNames[class]; ok {
		return name
	}
	return fmt.Sprintf("class%d", class)
}
