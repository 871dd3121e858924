package llm

import (
	"fmt"
	"strings"
)

const SystemPrompt = `You are a radiology assistant. You explain automated image classification results ` +
	`to clinicians in plain language. Be concise (at most 120 words), mention the confidence, ` +
	`suggest sensible next steps, and always state that the result must be confirmed by a qualified physician. ` +
	`Do not invent findings that are not in the input.`

// BuildUserPrompt renders the classification as the user message.
func BuildUserPrompt(in InterpretInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Model: %s\n", in.ModelKey)
	if in.Category != "" {
		fmt.Fprintf(&b, "Image type: %s\n", in.Category)
	}
	fmt.Fprintf(&b, "Predicted class: %s\n", in.PredictedClass)
	fmt.Fprintf(&b, "Confidence: %.1f%%\n", in.Confidence*100)
	if len(in.ClassScores) > 0 {
		b.WriteString("Class probabilities:\n")
		for _, s := range in.ClassScores {
			fmt.Fprintf(&b, "- %s: %.1f%%\n", s.Label, s.Score*100)
		}
	}
	if p := in.Patient; p != nil {
		b.WriteString("Patient context:\n")
		if p.Age > 0 {
			fmt.Fprintf(&b, "- age: %d\n", p.Age)
		}
		if p.Gender != "" {
			fmt.Fprintf(&b, "- gender: %s\n", p.Gender)
		}
		if p.Notes != "" {
			fmt.Fprintf(&b, "- notes: %s\n", p.Notes)
		}
	}
	b.WriteString("Write the interpretation.")
	return b.String()
}
