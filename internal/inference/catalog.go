package inference

import (
	"fmt"
	"strings"
	"unicode"
)

type ModelKey string

const (
	Pneumonia    ModelKey = "pneumonia"
	BrainTumor   ModelKey = "brainTumor"
	Tuberculosis ModelKey = "tuberculosis"
)

const (
	CategoryChestXray = "chest-xray"
	CategoryBrainMRI  = "brain-mri"
)

// Spec describes one classifier in the fixed catalog.
type Spec struct {
	Key      ModelKey
	Labels   []string
	Category string
}

var catalog = []Spec{
	{Key: Pneumonia, Labels: []string{"Normal", "Pneumonia"}, Category: CategoryChestXray},
	{Key: BrainTumor, Labels: []string{"Glioma", "Meningioma", "No Tumor", "Pituitary"}, Category: CategoryBrainMRI},
	{Key: Tuberculosis, Labels: []string{"Normal", "Tuberculosis"}, Category: CategoryChestXray},
}

var aliases = map[string]ModelKey{
	"pneumonia":    Pneumonia,
	"braintumor":   BrainTumor,
	"brain_tumor":  BrainTumor,
	"brain-tumor":  BrainTumor,
	"brain":        BrainTumor,
	"tuberculosis": Tuberculosis,
	"tb":           Tuberculosis,
}

// Catalog returns the supported classifiers in a stable order.
func Catalog() []Spec {
	out := make([]Spec, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the catalog entry for key.
func Lookup(key ModelKey) (Spec, bool) {
	for _, s := range catalog {
		if s.Key == key {
			return s, true
		}
	}
	return Spec{}, false
}

// ParseModelKey maps user input to a catalog key. An empty value or "auto" returns "" with
// no error, meaning the caller should auto-detect.
func ParseModelKey(raw string) (ModelKey, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" || v == "auto" {
		return "", nil
	}
	if key, ok := aliases[v]; ok {
		return key, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidModel, raw)
}

// Resolve parses raw and falls back to AutoDetect on fileName.
func Resolve(raw, fileName string) (ModelKey, error) {
	key, err := ParseModelKey(raw)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = AutoDetect(fileName)
	}
	return key, nil
}

var (
	brainMarkers = []string{"brain", "mri", "tumor", "tumour", "glioma", "meningioma", "pituitary"}
	chestMarkers = []string{"chest", "xray", "x-ray", "pneumonia", "lung", "cxr"}
)

// AutoDetect guesses the classifier from the file name. It is a heuristic: tuberculosis
// markers win, then brain markers, then chest markers, and anything else gets pneumonia.
func AutoDetect(fileName string) ModelKey {
	name := strings.ToLower(fileName)
	switch {
	case strings.Contains(name, "tuberculosis") || hasToken(name, "tb"):
		return Tuberculosis
	case containsAny(name, brainMarkers):
		return BrainTumor
	case containsAny(name, chestMarkers):
		return Pneumonia
	default:
		return Pneumonia
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func hasToken(s, token string) bool {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		if f == token {
			return true
		}
	}
	return false
}
