package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	modelFileName    = "model.onnx"
	metadataFileName = "metadata.json"
)

// Metadata is the sidecar file shipped next to each model.onnx.
type Metadata struct {
	InputShape  []int64   `json:"input_shape"`
	OutputShape []int64   `json:"output_shape"`
	Classes     []string  `json:"classes"`
	ImageSize   int       `json:"image_size"`
	Version     string    `json:"version"`
	InputName   string    `json:"input_name"`
	OutputName  string    `json:"output_name"`
	Mean        []float32 `json:"mean"`
	Std         []float32 `json:"std"`
}

func (m Metadata) channels() int {
	if len(m.InputShape) == 4 && m.InputShape[1] > 0 {
		return int(m.InputShape[1])
	}
	return 3
}

func (m Metadata) size() int {
	if m.ImageSize > 0 {
		return m.ImageSize
	}
	if len(m.InputShape) == 4 {
		return int(m.InputShape[2])
	}
	return 224
}

func (m Metadata) validate(labels []string) error {
	if len(m.InputShape) != 4 {
		return fmt.Errorf("input_shape must be NCHW, got %v", m.InputShape)
	}
	if len(m.OutputShape) == 0 {
		return errors.New("output_shape is required")
	}
	if c := m.channels(); c != 1 && c != 3 {
		return fmt.Errorf("unsupported channel count %d", c)
	}
	if _, err := m.outputOrder(labels); err != nil {
		return err
	}
	if len(m.Mean) != 0 && len(m.Mean) != m.channels() {
		return fmt.Errorf("mean has %d values for %d channels", len(m.Mean), m.channels())
	}
	if len(m.Std) != 0 && len(m.Std) != m.channels() {
		return fmt.Errorf("std has %d values for %d channels", len(m.Std), m.channels())
	}
	return nil
}

// outputOrder maps each catalog label to the model output that scores it. Without a class
// list the model is assumed to emit scores in catalog order.
func (m Metadata) outputOrder(labels []string) ([]int, error) {
	order := make([]int, len(labels))
	if len(m.Classes) == 0 {
		for i := range order {
			order[i] = i
		}
		return order, nil
	}
	if len(m.Classes) != len(labels) {
		return nil, fmt.Errorf("metadata lists %d classes, catalog has %d", len(m.Classes), len(labels))
	}
	index := make(map[string]int, len(m.Classes))
	for i, class := range m.Classes {
		name := strings.ToLower(strings.TrimSpace(class))
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("class %q listed twice", class)
		}
		index[name] = i
	}
	for i, label := range labels {
		pos, ok := index[strings.ToLower(label)]
		if !ok {
			return nil, fmt.Errorf("metadata classes %v do not name catalog label %q", m.Classes, label)
		}
		order[i] = pos
	}
	return order, nil
}

// LoadMetadata reads and validates <dir>/metadata.json against the catalog labels.
func LoadMetadata(dir string, labels []string) (Metadata, error) {
	raw, err := os.ReadFile(filepath.Join(dir, metadataFileName))
	if err != nil {
		return Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("parse metadata: %w", err)
	}
	if err := meta.validate(labels); err != nil {
		return Metadata{}, fmt.Errorf("invalid metadata: %w", err)
	}
	return meta, nil
}

// ONNXClassifier runs one model through ONNX Runtime. Input and output tensors are shared
// between calls, so Classify serializes on mu.
type ONNXClassifier struct {
	mu           sync.Mutex
	meta         Metadata
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewONNXClassifier loads <dir>/model.onnx with meta. The ONNX environment must already be
// initialized.
func NewONNXClassifier(dir string, meta Metadata) (*ONNXClassifier, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	inputName, outputName := meta.InputName, meta.OutputName
	if inputName == "" {
		inputName = "input"
	}
	if outputName == "" {
		outputName = "output"
	}
	session, err := ort.NewAdvancedSession(filepath.Join(dir, modelFileName),
		[]string{inputName}, []string{outputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &ONNXClassifier{
		meta:         meta,
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (c *ONNXClassifier) Classify(img image.Image, _ []byte) ([]float32, error) {
	data := preprocess(img, c.meta)

	c.mu.Lock()
	defer c.mu.Unlock()

	in := c.inputTensor.GetData()
	if len(in) != len(data) {
		return nil, fmt.Errorf("preprocessed %d values, model expects %d", len(data), len(in))
	}
	copy(in, data)
	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	out := c.outputTensor.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

func (c *ONNXClassifier) Version() string {
	if c.meta.Version != "" {
		return c.meta.Version
	}
	return "onnx"
}

func (c *ONNXClassifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.Destroy()
		c.session = nil
	}
	if c.inputTensor != nil {
		c.inputTensor.Destroy()
		c.inputTensor = nil
	}
	if c.outputTensor != nil {
		c.outputTensor.Destroy()
		c.outputTensor = nil
	}
}

// preprocess resizes img to the model size and lays it out as CHW float32 in [0,1], then
// applies mean/std when the metadata carries them.
func preprocess(img image.Image, meta Metadata) []float32 {
	size := uint(meta.size())
	resized := resize.Resize(size, size, img, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	channels := meta.channels()
	plane := width * height
	data := make([]float32, channels*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			rn := float32(r) / 65535.0
			gn := float32(g) / 65535.0
			bn := float32(b) / 65535.0

			idx := y*width + x
			if channels == 1 {
				data[idx] = 0.299*rn + 0.587*gn + 0.114*bn
				continue
			}
			data[idx] = rn
			data[plane+idx] = gn
			data[2*plane+idx] = bn
		}
	}

	if len(meta.Mean) == channels && len(meta.Std) == channels {
		for ch := 0; ch < channels; ch++ {
			std := meta.Std[ch]
			if std == 0 {
				continue
			}
			for i := ch * plane; i < (ch+1)*plane; i++ {
				data[i] = (data[i] - meta.Mean[ch]) / std
			}
		}
	}
	return data
}

var (
	envMu   sync.Mutex
	envRefs int
)

// acquireEnvironment initializes the process-wide ONNX Runtime environment on first use.
func acquireEnvironment(sharedLib string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		if sharedLib != "" {
			ort.SetSharedLibraryPath(sharedLib)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnx environment: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		return
	}
	envRefs--
	if envRefs == 0 {
		ort.DestroyEnvironment()
	}
}
