package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"rd-prediction-backend/internal/shared/metrics"
	"rd-prediction-backend/internal/shared/telemetry"
)

const (
	ModeONNX        = "onnx"
	ModeDemo        = "demo"
	ModeUnavailable = "unavailable"
)

// Classifier produces one raw score per label for a decoded image.
type Classifier interface {
	Classify(img image.Image, raw []byte) ([]float32, error)
	Version() string
	Close()
}

type Options struct {
	ModelDir     string
	RuntimeLib   string
	DemoFallback bool
	Metrics      *metrics.Metrics
}

// ClassScore is the probability assigned to one label.
type ClassScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Output is a classification result.
type Output struct {
	ModelKey       ModelKey
	PredictedClass string
	Confidence     float64
	Category       string
	ClassScores    []ClassScore
	ModelVersion   string
	Demo           bool
}

// ModelInfo reports how a catalog entry is served.
type ModelInfo struct {
	Key      ModelKey `json:"key"`
	Labels   []string `json:"labels"`
	Category string   `json:"category"`
	Loaded   bool     `json:"loaded"`
	Demo     bool     `json:"demo"`
	Mode     string   `json:"mode"`
	Version  string   `json:"version,omitempty"`
	Error    string   `json:"error,omitempty"`
}

type entry struct {
	spec       Spec
	classifier Classifier
	mode       string
	loadErr    error
	// order[i] is the classifier output index for spec.Labels[i]; nil means identity.
	order []int
}

// Dispatcher routes a model key to its classifier.
type Dispatcher struct {
	entries     map[ModelKey]*entry
	metrics     *metrics.Metrics
	ownsRuntime bool
}

// NewDispatcher loads every catalog model from opts.ModelDir. Missing or broken artifacts
// fall back to the demo classifier when opts.DemoFallback is set, otherwise the model is
// reported unavailable. NewDispatcher itself only fails on programmer error.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	d := &Dispatcher{
		entries: make(map[ModelKey]*entry, len(catalog)),
		metrics: opts.Metrics,
	}

	for _, spec := range catalog {
		e := &entry{spec: spec}
		classifier, order, err := d.loadONNX(opts, spec)
		switch {
		case err == nil:
			e.classifier = classifier
			e.order = order
			e.mode = ModeONNX
		case opts.DemoFallback:
			e.classifier = NewDemoClassifier(len(spec.Labels))
			e.mode = ModeDemo
			e.loadErr = err
		default:
			e.mode = ModeUnavailable
			e.loadErr = err
		}
		if e.loadErr != nil {
			telemetry.Warn("inference.model_fallback", map[string]any{
				"model": string(spec.Key),
				"mode":  e.mode,
				"error": e.loadErr,
			})
		} else {
			telemetry.Info("inference.model_loaded", map[string]any{
				"model":   string(spec.Key),
				"version": e.classifier.Version(),
			})
		}
		d.metrics.SetModelLoaded(string(spec.Key), e.mode, e.classifier != nil)
		d.entries[spec.Key] = e
	}
	return d, nil
}

func (d *Dispatcher) loadONNX(opts Options, spec Spec) (Classifier, []int, error) {
	if opts.ModelDir == "" {
		return nil, nil, errors.New("model directory not configured")
	}
	dir := filepath.Join(opts.ModelDir, string(spec.Key))
	if _, err := os.Stat(filepath.Join(dir, modelFileName)); err != nil {
		return nil, nil, fmt.Errorf("model artifact: %w", err)
	}
	meta, err := LoadMetadata(dir, spec.Labels)
	if err != nil {
		return nil, nil, err
	}
	order, err := meta.outputOrder(spec.Labels)
	if err != nil {
		return nil, nil, err
	}
	if !d.ownsRuntime {
		if err := acquireEnvironment(opts.RuntimeLib); err != nil {
			return nil, nil, err
		}
		d.ownsRuntime = true
	}
	classifier, err := NewONNXClassifier(dir, meta)
	if err != nil {
		return nil, nil, err
	}
	return classifier, order, nil
}

// Predict decodes data and classifies it with the model registered under key.
func (d *Dispatcher) Predict(ctx context.Context, key ModelKey, data []byte) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	e, ok := d.entries[key]
	if !ok {
		return Output{}, fmt.Errorf("%w: %q", ErrInvalidModel, key)
	}
	if e.classifier == nil {
		return Output{}, fmt.Errorf("%w: %s", ErrModelUnavailable, key)
	}
	img, _, err := DecodeImage(data)
	if err != nil {
		return Output{}, err
	}

	start := time.Now()
	raw, err := e.classifier.Classify(img, data)
	d.metrics.ObserveInference(string(key), time.Since(start).Seconds())
	if err != nil {
		return Output{}, fmt.Errorf("classify %s: %w", key, err)
	}

	probs, err := toProbabilities(raw, len(e.spec.Labels))
	if err != nil {
		return Output{}, fmt.Errorf("classify %s: %w", key, err)
	}
	probs = inCatalogOrder(probs, e.order)
	best := argmax(probs)
	scores := make([]ClassScore, len(probs))
	for i, p := range probs {
		scores[i] = ClassScore{Label: e.spec.Labels[i], Score: clamp01(p)}
	}

	return Output{
		ModelKey:       key,
		PredictedClass: e.spec.Labels[best],
		Confidence:     clamp01(probs[best]),
		Category:       e.spec.Category,
		ClassScores:    scores,
		ModelVersion:   e.classifier.Version(),
		Demo:           e.mode == ModeDemo,
	}, nil
}

func inCatalogOrder(probs []float64, order []int) []float64 {
	if order == nil {
		return probs
	}
	out := make([]float64, len(order))
	for i, pos := range order {
		out[i] = probs[pos]
	}
	return out
}

// Models lists the catalog with load state, in catalog order.
func (d *Dispatcher) Models() []ModelInfo {
	out := make([]ModelInfo, 0, len(catalog))
	for _, spec := range catalog {
		e := d.entries[spec.Key]
		info := ModelInfo{
			Key:      spec.Key,
			Labels:   append([]string(nil), spec.Labels...),
			Category: spec.Category,
			Loaded:   e.classifier != nil,
			Demo:     e.mode == ModeDemo,
			Mode:     e.mode,
		}
		if e.classifier != nil {
			info.Version = e.classifier.Version()
		}
		if e.loadErr != nil {
			info.Error = e.loadErr.Error()
		}
		out = append(out, info)
	}
	return out
}

// Close releases ONNX sessions and the runtime environment.
func (d *Dispatcher) Close() {
	for _, e := range d.entries {
		if e.classifier != nil {
			e.classifier.Close()
		}
	}
	if d.ownsRuntime {
		releaseEnvironment()
		d.ownsRuntime = false
	}
}
