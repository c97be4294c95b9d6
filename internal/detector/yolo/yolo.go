// Package yolo runs a YOLOv8 ONNX export through the OpenCV DNN module.
package yolo

import (
	"cmp"
	"fmt"
	"image"
	"image/color"
	"os"
	"slices"
	"sync"

	"dogfinder/internal/detector"
	"dogfinder/internal/logger"

	"github.com/samber/lo"
	"gocv.io/x/gocv"
)

// DefaultNMSThreshold is the IoU above which overlapping boxes of one class are merged.
const DefaultNMSThreshold = 0.45

// Model implements detector.Model. The network is not safe for concurrent
// use, so Predict is serialised.
type Model struct {
	net          gocv.Net
	nmsThreshold float32
	logger       *logger.Logger
	mu           sync.Mutex
}

// Load reads the ONNX network from modelPath.
func Load(modelPath string, nmsThreshold float64, logger *logger.Logger) (*Model, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	if nmsThreshold <= 0 {
		nmsThreshold = DefaultNMSThreshold
	}

	logger.Info("Detection network loaded from %s", modelPath)
	return &Model{net: net, nmsThreshold: float32(nmsThreshold), logger: logger}, nil
}

// Predict returns the boxes at or above minConfidence after per-class NMS,
// most confident first.
func (m *Model) Predict(img image.Image, inputSize int, minConfidence float64) ([]detector.Box, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("converted image is empty")
	}

	// YOLOv8 wants RGB scaled to [0,1] at a square input size.
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(inputSize, inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	m.mu.Lock()
	m.net.SetInput(blob, "")
	output := m.net.Forward("")
	m.mu.Unlock()
	defer output.Close()

	// Output is [1, 4+classes, anchors]: cx, cy, w, h then one score per class.
	sizes := output.Size()
	if len(sizes) != 3 || sizes[1] <= 4 {
		return nil, fmt.Errorf("unexpected output shape %v", sizes)
	}
	rows, anchors := sizes[1], sizes[2]

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read output: %w", err)
	}

	bounds := img.Bounds()
	xScale := float64(bounds.Dx()) / float64(inputSize)
	yScale := float64(bounds.Dy()) / float64(inputSize)

	var candidates []detector.Box
	for i := 0; i < anchors; i++ {
		bestClass, bestScore := -1, float32(0)
		for c := 4; c < rows; c++ {
			if score := data[c*anchors+i]; score > bestScore {
				bestClass, bestScore = c-4, score
			}
		}
		if bestClass < 0 || float64(bestScore) < minConfidence {
			continue
		}

		cx, cy := float64(data[i]), float64(data[anchors+i])
		w, h := float64(data[2*anchors+i]), float64(data[3*anchors+i])
		x0 := int((cx - w/2) * xScale)
		y0 := int((cy - h/2) * yScale)
		x1 := int((cx + w/2) * xScale)
		y1 := int((cy + h/2) * yScale)

		candidates = append(candidates, detector.Box{
			Class:      bestClass,
			Confidence: float64(bestScore),
			Rect:       image.Rect(x0, y0, x1, y1).Intersect(bounds),
		})
	}

	boxes := m.suppress(candidates, float32(minConfidence))
	slices.SortStableFunc(boxes, func(a, b detector.Box) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	return boxes, nil
}

// suppress applies non-maximum suppression within each class.
func (m *Model) suppress(candidates []detector.Box, minConfidence float32) []detector.Box {
	var kept []detector.Box
	for _, group := range lo.GroupBy(candidates, func(b detector.Box) int { return b.Class }) {
		rects := lo.Map(group, func(b detector.Box, _ int) image.Rectangle { return b.Rect })
		scores := lo.Map(group, func(b detector.Box, _ int) float32 { return float32(b.Confidence) })

		for _, idx := range gocv.NMSBoxes(rects, scores, minConfidence, m.nmsThreshold) {
			kept = append(kept, group[idx])
		}
	}
	return kept
}

// Close releases the network.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}

// Annotate draws boxes on a JPEG frame and returns the re-encoded JPEG.
func Annotate(jpg []byte, boxes []detector.Box) ([]byte, error) {
	red := color.RGBA{R: 255, G: 0, B: 0, A: 0}

	mat, err := gocv.IMDecode(jpg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}

	for _, box := range boxes {
		if err := gocv.Rectangle(&mat, box.Rect, red, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}

		label := fmt.Sprintf("%s (%.2f)", detector.ClassName(box.Class), box.Confidence)
		pt := image.Pt(box.Rect.Min.X, box.Rect.Min.Y-5)
		if err := gocv.PutText(&mat, label, pt, gocv.FontHersheySimplex, 0.5, red, 1); err != nil {
			return nil, fmt.Errorf("failed to draw text: %w", err)
		}
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
