package inference

import (
	"fmt"
	"math"
)

const probabilityTolerance = 1e-3

// toProbabilities turns raw model outputs into a probability per label. A single output for
// a two-label model is a sigmoid score for the second label.
func toProbabilities(raw []float32, labels int) ([]float64, error) {
	if labels == 2 && len(raw) == 1 {
		p := float64(raw[0])
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, fmt.Errorf("model produced non-finite output at 0")
		}
		if p < 0 || p > 1 {
			p = sigmoid(p)
		}
		return []float64{1 - p, p}, nil
	}
	if len(raw) < labels {
		return nil, fmt.Errorf("model produced %d outputs for %d labels", len(raw), labels)
	}

	out := make([]float64, labels)
	sum := 0.0
	inRange := true
	for i := 0; i < labels; i++ {
		v := float64(raw[i])
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("model produced non-finite output at %d", i)
		}
		if v < 0 || v > 1 {
			inRange = false
		}
		out[i] = v
		sum += v
	}
	if inRange && math.Abs(sum-1) <= probabilityTolerance {
		return out, nil
	}
	return softmax(out), nil
}

func softmax(v []float64) []float64 {
	maxV := math.Inf(-1)
	for _, x := range v {
		if x > maxV {
			maxV = x
		}
	}
	out := make([]float64, len(v))
	sum := 0.0
	for i, x := range v {
		out[i] = math.Exp(x - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func argmax(v []float64) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
