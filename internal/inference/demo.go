package inference

import (
	"hash/fnv"
	"image"
	"math/rand"
)

const demoVersion = "demo"

// DemoClassifier returns canned scores so the service stays usable without model artifacts.
// Scores are a pure function of the image bytes.
type DemoClassifier struct {
	labels int
}

func NewDemoClassifier(labels int) *DemoClassifier {
	return &DemoClassifier{labels: labels}
}

func (d *DemoClassifier) Classify(_ image.Image, raw []byte) ([]float32, error) {
	h := fnv.New64a()
	h.Write(raw)
	seed := h.Sum64()
	rng := rand.New(rand.NewSource(int64(seed)))

	winner := int(seed % uint64(d.labels))
	scores := make([]float32, d.labels)
	var sum float32
	for i := range scores {
		scores[i] = rng.Float32()
		if i == winner {
			scores[i] += float32(d.labels)
		}
		sum += scores[i]
	}
	for i := range scores {
		scores[i] /= sum
	}
	return scores, nil
}

func (d *DemoClassifier) Version() string { return demoVersion }

func (d *DemoClassifier) Close() {}
