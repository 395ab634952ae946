package detect

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/vtrack/internal/config"
	"github.com/your-org/vtrack/internal/models"
)

// yoloAnchors is the prediction count of a YOLOv8 head at 640x640 input
// (80x80 + 40x40 + 20x20 cells).
const yoloAnchors = 8400

// ONNXDetector runs a YOLOv8-family object detection model through ONNX
// Runtime. It accepts whole batches in one session run; the dynamic session
// handles the variable leading dimension.
type ONNXDetector struct {
	mu      sync.Mutex // one session run at a time
	session *ort.DynamicAdvancedSession

	inputSize    int
	threshold    float32
	nmsThreshold float64
	labels       []string
}

// NewONNXDetector loads the detection model. A missing or unloadable model
// reports ErrModelUnavailable so callers can distinguish deployment problems
// from per-frame failures.
func NewONNXDetector(cfg config.DetectorConfig) (*ONNXDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrModelUnavailable, cfg.ModelPath, err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"images"}, []string{"output0"}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create session: %v", models.ErrModelUnavailable, err)
	}

	return &ONNXDetector{
		session:      session,
		inputSize:    cfg.InputSize,
		threshold:    float32(cfg.Threshold),
		nmsThreshold: cfg.NMSThreshold,
		labels:       cfg.Labels,
	}, nil
}

// DetectBatch preprocesses the frames into one NCHW tensor, runs a single
// inference, and decodes per-frame detection lists in input order.
func (d *ONNXDetector) DetectBatch(ctx context.Context, frames []*models.Frame) ([][]models.Detection, error) {
	if len(frames) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := d.inputSize
	plane := 3 * s * s
	data := make([]float32, len(frames)*plane)
	for i, f := range frames {
		if f.Image == nil {
			return nil, models.ErrInvalidFrame
		}
		copy(data[i*plane:(i+1)*plane], preprocess(f.Image, s))
	}

	input, err := ort.NewTensor(ort.NewShape(int64(len(frames)), 3, int64(s), int64(s)), data)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	d.mu.Lock()
	err = d.session.Run([]ort.Value{input}, outputs)
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("run inference: %w", err)
	}
	raw, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		outputs[0].Destroy()
		return nil, fmt.Errorf("unexpected output tensor type")
	}
	defer raw.Destroy()

	// output0 is [batch, 4+len(labels), anchors]: box center/extent rows
	// first, then one score row per class.
	shape := raw.GetShape()
	if len(shape) != 3 || int(shape[0]) != len(frames) {
		return nil, fmt.Errorf("unexpected output shape %v for batch of %d", shape, len(frames))
	}
	attrs, anchors := int(shape[1]), int(shape[2])
	if attrs < 5 || anchors != yoloAnchors {
		return nil, fmt.Errorf("unexpected output layout %v", shape)
	}

	out := make([][]models.Detection, len(frames))
	vals := raw.GetData()
	for i, f := range frames {
		b := f.Image.Bounds()
		out[i] = d.decode(vals[i*attrs*anchors:(i+1)*attrs*anchors], attrs, anchors, b.Dx(), b.Dy())
	}
	return out, nil
}

// decode extracts above-threshold candidates for one image and suppresses
// overlaps class by class.
func (d *ONNXDetector) decode(vals []float32, attrs, anchors, origW, origH int) []models.Detection {
	scaleX := float64(origW) / float64(d.inputSize)
	scaleY := float64(origH) / float64(d.inputSize)

	var dets []models.Detection
	for a := 0; a < anchors; a++ {
		bestClass, bestScore := -1, d.threshold
		for c := 4; c < attrs; c++ {
			if score := vals[c*anchors+a]; score >= bestScore {
				bestClass, bestScore = c-4, score
			}
		}
		if bestClass < 0 {
			continue
		}

		cx := float64(vals[0*anchors+a]) * scaleX
		cy := float64(vals[1*anchors+a]) * scaleY
		w := float64(vals[2*anchors+a]) * scaleX
		h := float64(vals[3*anchors+a]) * scaleY

		dets = append(dets, models.Detection{
			BBox: models.BBox{
				X1: clamp(cx-w/2, 0, float64(origW)),
				Y1: clamp(cy-h/2, 0, float64(origH)),
				X2: clamp(cx+w/2, 0, float64(origW)),
				Y2: clamp(cy+h/2, 0, float64(origH)),
			},
			Confidence: float64(bestScore),
			Class:      d.label(bestClass),
		})
	}
	return nonMaxSuppress(dets, d.nmsThreshold)
}

func (d *ONNXDetector) label(idx int) string {
	if idx >= 0 && idx < len(d.labels) {
		return d.labels[idx]
	}
	return fmt.Sprintf("class_%d", idx)
}

// Close releases the ONNX session.
func (d *ONNXDetector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
}

// nonMaxSuppress keeps the highest-confidence detection among same-class
// overlaps above the IoU threshold.
func nonMaxSuppress(dets []models.Detection, iouThreshold float64) []models.Detection {
	if len(dets) == 0 {
		return dets
	}

	sort.Slice(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})

	keep := make([]bool, len(dets))
	for i := range keep {
		keep[i] = true
	}
	for i := 0; i < len(dets); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(dets); j++ {
			if !keep[j] || dets[i].Class != dets[j].Class {
				continue
			}
			if models.IoU(dets[i].BBox, dets[j].BBox) > iouThreshold {
				keep[j] = false
			}
		}
	}

	out := dets[:0]
	for i, det := range dets {
		if keep[i] {
			out = append(out, det)
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
