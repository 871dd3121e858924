package predictions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"rd-prediction-backend/internal/inference"
	"rd-prediction-backend/internal/llm"
	"rd-prediction-backend/internal/shared/metrics"
	"rd-prediction-backend/internal/shared/storage/object"
	"rd-prediction-backend/internal/shared/telemetry"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	maxPatientAge   = 150
)

// Classifier runs inference for a model key.
type Classifier interface {
	Predict(ctx context.Context, key inference.ModelKey, data []byte) (inference.Output, error)
	Models() []inference.ModelInfo
}

// PredictionCounter tracks how many predictions a user has completed.
type PredictionCounter interface {
	IncrementPredictionCount(ctx context.Context, userID string) error
}

// Service runs the upload, inference, enrichment and persistence sequence.
type Service struct {
	Repo           Repo
	Store          object.ObjectStore
	Classifier     Classifier
	LLM            llm.Client
	Users          PredictionCounter
	Metrics        *metrics.Metrics
	StatsCache     *cache.Cache
	MaxUploadBytes int64
}

// PredictInput is one upload.
type PredictInput struct {
	UserID      string
	FileName    string
	ContentType string
	Data        []byte
	ModelType   string
	Patient     *PatientInfo
	Enrich      bool
	ClientIP    string
	UserAgent   string
}

// Predict validates the upload, records it as pending, classifies it and records the outcome.
// Every validation error is returned before anything is written. When inference fails the
// failed record is returned together with an error wrapping ErrInference.
func (s *Service) Predict(ctx context.Context, in PredictInput) (Record, error) {
	key, err := s.validate(&in)
	if err != nil {
		return Record{}, err
	}

	// The client going away must not leave a record pending.
	ctx = context.WithoutCancel(ctx)

	storageKey, size, mimeType, err := s.Store.Save(ctx, in.UserID, in.FileName, bytes.NewReader(in.Data))
	if err != nil {
		return Record{}, fmt.Errorf("store image: %w", err)
	}
	contentType := strings.TrimSpace(in.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimeType
	}

	rec, err := s.Repo.Create(ctx, Record{
		UserID:    in.UserID,
		ModelType: string(key),
		InputData: InputData{
			FileName:    in.FileName,
			SizeBytes:   size,
			ContentType: contentType,
			StorageKey:  storageKey,
		},
		Patient: in.Patient,
		Metadata: Metadata{
			IP:        in.ClientIP,
			UserAgent: in.UserAgent,
			FileSize:  size,
			FileName:  in.FileName,
		},
	})
	if err != nil {
		s.removeImage(ctx, storageKey)
		return Record{}, fmt.Errorf("create prediction: %w", err)
	}

	start := time.Now()
	out, err := s.Classifier.Predict(ctx, key, in.Data)
	elapsedMs := time.Since(start).Milliseconds()
	if err != nil {
		return s.fail(ctx, rec, err)
	}

	result := Result{
		PredictedClass: out.PredictedClass,
		Confidence:     out.Confidence,
		Category:       out.Category,
		ClassScores:    make([]ClassScore, 0, len(out.ClassScores)),
	}
	for _, cs := range out.ClassScores {
		result.ClassScores = append(result.ClassScores, ClassScore{Label: cs.Label, Score: cs.Score})
	}
	if in.Enrich {
		result.Interpretation = s.interpret(ctx, rec, out)
	}

	completed, err := s.Repo.MarkCompleted(ctx, rec.ID, result, elapsedMs, out.ModelVersion)
	if err != nil {
		if errors.Is(err, ErrNotPending) {
			return Record{}, fmt.Errorf("complete prediction: %w", err)
		}
		// The record must not stay pending; an unusable result fails it.
		return s.fail(ctx, rec, fmt.Errorf("complete prediction: %w", err))
	}
	if s.Users != nil {
		if err := s.Users.IncrementPredictionCount(ctx, in.UserID); err != nil {
			telemetry.Warn("prediction.counter_failed", map[string]any{"user_id": in.UserID, "error": err})
		}
	}
	s.invalidateStats(in.UserID)
	s.Metrics.ObservePrediction(completed.ModelType, StatusCompleted)
	telemetry.Info("prediction.completed", map[string]any{
		"prediction_id":   completed.ID,
		"user_id":         completed.UserID,
		"model_type":      completed.ModelType,
		"model_version":   completed.ModelVersion,
		"predicted_class": result.PredictedClass,
		"confidence":      result.Confidence,
		"duration_ms":     elapsedMs,
		"demo":            out.Demo,
	})
	return completed, nil
}

func (s *Service) validate(in *PredictInput) (inference.ModelKey, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.FileName = strings.TrimSpace(in.FileName)

	var fields []FieldError
	if in.UserID == "" {
		fields = append(fields, FieldError{Field: "userId", Message: "user is required"})
	}
	switch {
	case len(in.Data) == 0:
		fields = append(fields, FieldError{Field: "file", Message: "image file is required"})
	case s.MaxUploadBytes > 0 && int64(len(in.Data)) > s.MaxUploadBytes:
		fields = append(fields, FieldError{Field: "file", Message: fmt.Sprintf("file exceeds %d bytes", s.MaxUploadBytes)})
	default:
		if _, _, err := inference.DecodeImage(in.Data); err != nil {
			fields = append(fields, FieldError{Field: "file", Message: "file must be a PNG, JPEG or GIF image"})
		}
	}
	if in.FileName == "" {
		in.FileName = "upload" + extensionFor(in.Data)
	}
	if p := in.Patient; p != nil && (p.Age < 0 || p.Age > maxPatientAge) {
		fields = append(fields, FieldError{Field: "patientAge", Message: fmt.Sprintf("age must be between 0 and %d", maxPatientAge)})
	}
	if len(fields) > 0 {
		return "", &ValidationError{Fields: fields}
	}
	return inference.Resolve(in.ModelType, in.FileName)
}

func extensionFor(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	default:
		return ""
	}
}

func (s *Service) fail(ctx context.Context, rec Record, cause error) (Record, error) {
	failed, err := s.Repo.MarkFailed(ctx, rec.ID, cause.Error())
	s.Metrics.ObservePrediction(rec.ModelType, StatusFailed)
	s.invalidateStats(rec.UserID)
	telemetry.Error("prediction.failed", map[string]any{
		"prediction_id": rec.ID,
		"user_id":       rec.UserID,
		"model_type":    rec.ModelType,
		"error":         cause,
	})
	if err != nil {
		return rec, errors.Join(fmt.Errorf("%w: %v", ErrInference, cause), fmt.Errorf("mark failed: %w", err))
	}
	return failed, fmt.Errorf("%w: %v", ErrInference, cause)
}

// interpret asks the text service for an explanation. Failures only cost the interpretation.
func (s *Service) interpret(ctx context.Context, rec Record, out inference.Output) string {
	if s.LLM == nil {
		s.Metrics.ObserveEnrichment("skipped")
		return ""
	}
	input := llm.InterpretInput{
		ModelKey:       string(out.ModelKey),
		PredictedClass: out.PredictedClass,
		Confidence:     out.Confidence,
		Category:       out.Category,
	}
	for _, cs := range out.ClassScores {
		input.ClassScores = append(input.ClassScores, llm.ClassScore{Label: cs.Label, Score: cs.Score})
	}
	if p := rec.Patient; p != nil {
		input.Patient = &llm.Patient{PatientID: p.PatientID, Name: p.Name, Age: p.Age, Gender: p.Gender, Notes: p.Notes}
	}

	text, err := s.LLM.Interpret(ctx, input)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		s.Metrics.ObserveEnrichment("skipped")
		return ""
	case err != nil:
		s.Metrics.ObserveEnrichment("failed")
		telemetry.Warn("prediction.enrichment_failed", map[string]any{
			"prediction_id": rec.ID,
			"model_type":    rec.ModelType,
			"error":         err,
		})
		return ""
	}
	s.Metrics.ObserveEnrichment("ok")
	return text
}

func (s *Service) Get(ctx context.Context, userID, id string) (Record, error) {
	if strings.TrimSpace(id) == "" {
		return Record{}, ErrNotFound
	}
	return s.Repo.GetByID(ctx, id, userID)
}

// History returns one page of the user's records, newest first.
func (s *Service) History(ctx context.Context, q ListQuery) (Page, error) {
	if q.UserID == "" {
		return Page{}, invalid("userId", "user is required")
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	if q.DateFrom != nil && q.DateTo != nil && q.DateTo.Before(*q.DateFrom) {
		return Page{}, invalid("dateTo", "dateTo must not be before dateFrom")
	}
	records, total, err := s.Repo.ListForUser(ctx, q)
	if err != nil {
		return Page{}, err
	}
	return Page{Records: records, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// Stats is cached per user until the next write.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	if s.StatsCache != nil {
		if cached, ok := s.StatsCache.Get(userID); ok {
			return cached.(Stats), nil
		}
	}
	stats, err := s.Repo.Stats(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	if s.StatsCache != nil {
		s.StatsCache.SetDefault(userID, stats)
	}
	return stats, nil
}

// Delete removes the record and, best-effort, its stored image.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	rec, err := s.Repo.Delete(ctx, id, userID)
	if err != nil {
		return err
	}
	s.removeImage(ctx, rec.InputData.StorageKey)
	s.invalidateStats(userID)
	telemetry.Info("prediction.deleted", map[string]any{"prediction_id": id, "user_id": userID})
	return nil
}

func (s *Service) Models() []inference.ModelInfo {
	return s.Classifier.Models()
}

func (s *Service) removeImage(ctx context.Context, storageKey string) {
	if storageKey == "" || s.Store == nil {
		return
	}
	if err := s.Store.Delete(ctx, storageKey); err != nil && !errors.Is(err, object.ErrNotFound) {
		telemetry.Warn("prediction.image_delete_failed", map[string]any{"storage_key": storageKey, "error": err})
	}
}

func (s *Service) invalidateStats(userID string) {
	if s.StatsCache != nil {
		s.StatsCache.Delete(userID)
	}
}
