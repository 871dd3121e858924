package predictions

import "context"

// Repo persists prediction records. MarkCompleted and MarkFailed only apply to pending
// records and return ErrNotPending otherwise.
type Repo interface {
	Create(ctx context.Context, rec Record) (Record, error)
	MarkCompleted(ctx context.Context, id string, result Result, processingTimeMs int64, modelVersion string) (Record, error)
	MarkFailed(ctx context.Context, id, message string) (Record, error)
	GetByID(ctx context.Context, id, userID string) (Record, error)
	ListForUser(ctx context.Context, q ListQuery) ([]Record, int, error)
	Stats(ctx context.Context, userID string) (Stats, error)
	Delete(ctx context.Context, id, userID string) (Record, error)
}

func validateNew(rec Record) error {
	var fields []FieldError
	if rec.UserID == "" {
		fields = append(fields, FieldError{Field: "userId", Message: "user is required"})
	}
	if rec.InputData.FileName == "" {
		fields = append(fields, FieldError{Field: "inputData", Message: "input image reference is required"})
	}
	if rec.ModelType == "" {
		fields = append(fields, FieldError{Field: "modelType", Message: "model type is required"})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validateResult(result Result) error {
	if !inUnitRange(result.Confidence) {
		return invalid("confidence", "confidence must be between 0 and 1")
	}
	for _, cs := range result.ClassScores {
		if !inUnitRange(cs.Score) {
			return invalid("classScores", "scores must be between 0 and 1")
		}
	}
	if result.PredictedClass == "" {
		return invalid("predictedClass", "predicted class is required")
	}
	return nil
}

// inUnitRange is false for NaN.
func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}

func failureMessage(message string) string {
	if message == "" {
		return defaultFailureMessage
	}
	return message
}
