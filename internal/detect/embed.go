package detect

import (
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/vtrack/internal/config"
	"github.com/your-org/vtrack/internal/models"
)

// Embedder extracts appearance embeddings from track crops using a
// re-identification ONNX model (OSNet-family). It runs once per confirmed
// track, so a fixed single-image session is enough.
type Embedder struct {
	mu           sync.Mutex // one session run at a time
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]

	inputW int
	inputH int
	dim    int
}

// NewEmbedder loads the re-identification model. A missing or unloadable
// model reports ErrModelUnavailable.
func NewEmbedder(cfg config.EmbedderConfig) (*Embedder, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrModelUnavailable, cfg.ModelPath, err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](
		ort.NewShape(1, 3, int64(cfg.InputHeight), int64(cfg.InputWidth)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.Dim)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{"images"}, []string{"output"},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("%w: create embedder session: %v", models.ErrModelUnavailable, err)
	}

	return &Embedder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       cfg.InputWidth,
		inputH:       cfg.InputHeight,
		dim:          cfg.Dim,
	}, nil
}

// Embed runs one crop through the model and returns an L2-normalized
// appearance vector, so cosine similarity downstream reduces to a dot
// product.
func (e *Embedder) Embed(crop image.Image) ([]float32, error) {
	data := preprocessCrop(crop, e.inputW, e.inputH)

	e.mu.Lock()
	defer e.mu.Unlock()
	copy(e.inputTensor.GetData(), data)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	embedding := make([]float32, e.dim)
	copy(embedding, e.outputTensor.GetData())
	l2Normalize(embedding)
	return embedding, nil
}

// Close releases the ONNX session and its tensors.
func (e *Embedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}

// l2Normalize scales v to unit length in place.
func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
