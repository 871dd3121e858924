package predictions

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"rd-prediction-backend/internal/inference"
	"rd-prediction-backend/internal/shared/server/middleware"
	"rd-prediction-backend/internal/shared/server/respond"
)

const (
	multipartOverhead = 1 << 20
	dateLayout        = "2006-01-02"
)

// Handler wires HTTP handlers to the prediction service.
type Handler struct {
	Svc            *Service
	MaxUploadBytes int64
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, maxUploadBytes int64) *Handler {
	return &Handler{Svc: svc, MaxUploadBytes: maxUploadBytes}
}

// RegisterRoutes attaches prediction routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/prediction/predict", h.predict)
	rg.POST("/prediction/enhanced", h.enhanced)
	rg.GET("/prediction/history", h.history)
	rg.GET("/prediction/stats", h.stats)
	rg.GET("/prediction/models", h.models)
	rg.GET("/prediction/:id", h.get)
	rg.DELETE("/prediction/:id", h.delete)
}

func (h *Handler) predict(c *gin.Context) {
	rec, failed, ok := h.runPrediction(c, false)
	if !ok {
		return
	}
	if failed {
		respond.ErrorWithData(c, http.StatusInternalServerError, "inference_failed", "Prediction failed", nil,
			gin.H{"prediction": toResponse(rec)})
		return
	}
	respond.Data(c, http.StatusCreated, gin.H{"prediction": toResponse(rec)})
}

func (h *Handler) enhanced(c *gin.Context) {
	rec, failed, ok := h.runPrediction(c, true)
	if !ok {
		return
	}
	if failed {
		respond.JSON(c, http.StatusOK, respond.Envelope{
			Success: false,
			Message: "Prediction failed",
			Data:    gin.H{"prediction": toResponse(rec)},
		})
		return
	}
	respond.Data(c, http.StatusCreated, gin.H{"prediction": toResponse(rec)})
}

// runPrediction parses the upload and calls the service. ok is false when a response has
// already been written; failed reports that inference failed and rec is the failed record.
func (h *Handler) runPrediction(c *gin.Context, enrich bool) (rec Record, failed bool, ok bool) {
	if h.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes+multipartOverhead)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, http.StatusBadRequest, "validation_error", "validation failed",
				[]respond.FieldError{{Field: "file", Message: fmt.Sprintf("file exceeds %d bytes", h.MaxUploadBytes)}})
			return Record{}, false, false
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "validation failed",
			[]respond.FieldError{{Field: "file", Message: "image file is required"}})
		return Record{}, false, false
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return Record{}, false, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return Record{}, false, false
	}

	patient, fieldErr := patientFromForm(c)
	if fieldErr != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "validation failed", []respond.FieldError{*fieldErr})
		return Record{}, false, false
	}

	rec, err = h.Svc.Predict(c.Request.Context(), PredictInput{
		UserID:      middleware.UserIDFromContext(c),
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
		ModelType:   c.PostForm("modelType"),
		Patient:     patient,
		Enrich:      enrich,
		ClientIP:    c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	})
	if rec.ID != "" {
		c.Set("predictionId", rec.ID)
		c.Set("modelType", rec.ModelType)
		c.Set("statusTransition", StatusPending+"->"+rec.Status)
	}
	if err != nil && !errors.Is(err, ErrInference) {
		h.writeError(c, err)
		return Record{}, false, false
	}
	return rec, err != nil, true
}

func patientFromForm(c *gin.Context) (*PatientInfo, *respond.FieldError) {
	p := PatientInfo{
		PatientID: strings.TrimSpace(c.PostForm("patientId")),
		Name:      strings.TrimSpace(c.PostForm("patientName")),
		Gender:    strings.TrimSpace(c.PostForm("patientGender")),
		Notes:     strings.TrimSpace(c.PostForm("notes")),
	}
	if raw := strings.TrimSpace(c.PostForm("patientAge")); raw != "" {
		age, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &respond.FieldError{Field: "patientAge", Message: "age must be a whole number"}
		}
		p.Age = age
	}
	if p == (PatientInfo{}) {
		return nil, nil
	}
	return &p, nil
}

func (h *Handler) history(c *gin.Context) {
	q := ListQuery{
		UserID:    middleware.UserIDFromContext(c),
		Page:      1,
		PageSize:  DefaultPageSize,
		PatientID: strings.TrimSpace(c.Query("patientId")),
	}
	var fields []respond.FieldError
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			fields = append(fields, respond.FieldError{Field: "page", Message: "page must be a number"})
		} else {
			q.Page = n
		}
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			fields = append(fields, respond.FieldError{Field: "limit", Message: "limit must be a number"})
		} else {
			q.PageSize = n
		}
	}
	if v := strings.TrimSpace(c.Query("modelType")); v != "" {
		key, err := inference.ParseModelKey(v)
		if err != nil || key == "" {
			fields = append(fields, respond.FieldError{Field: "modelType", Message: "unknown model type"})
		} else {
			q.ModelType = string(key)
		}
	}
	if v := c.Query("dateFrom"); v != "" {
		from, err := parseDate(v, false)
		if err != nil {
			fields = append(fields, respond.FieldError{Field: "dateFrom", Message: "use YYYY-MM-DD or RFC3339"})
		} else {
			q.DateFrom = &from
		}
	}
	if v := c.Query("dateTo"); v != "" {
		to, err := parseDate(v, true)
		if err != nil {
			fields = append(fields, respond.FieldError{Field: "dateTo", Message: "use YYYY-MM-DD or RFC3339"})
		} else {
			q.DateTo = &to
		}
	}
	if len(fields) > 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "validation failed", fields)
		return
	}

	page, err := h.Svc.History(c.Request.Context(), q)
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.Data(c, http.StatusOK, toHistoryResponse(page))
}

// parseDate accepts a date or an RFC3339 timestamp. A bare date used as an upper bound
// covers the whole day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func (h *Handler) stats(c *gin.Context) {
	stats, err := h.Svc.Stats(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.Data(c, http.StatusOK, toStatsResponse(stats))
}

func (h *Handler) models(c *gin.Context) {
	respond.Data(c, http.StatusOK, modelsResponse{Models: h.Svc.Models()})
}

func (h *Handler) get(c *gin.Context) {
	rec, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Set("predictionId", rec.ID)
	respond.Data(c, http.StatusOK, gin.H{"prediction": toResponse(rec)})
}

func (h *Handler) delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.Svc.Delete(c.Request.Context(), middleware.UserIDFromContext(c), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Set("predictionId", id)
	respond.Message(c, http.StatusOK, "Prediction deleted successfully")
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		fields := make([]respond.FieldError, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			fields = append(fields, respond.FieldError{Field: f.Field, Message: f.Message})
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "validation failed", fields)
	case errors.Is(err, inference.ErrInvalidModel):
		respond.Error(c, http.StatusBadRequest, "invalid_model", "Invalid model type. Supported: "+supportedModels(),
			[]respond.FieldError{{Field: "modelType", Message: "unknown model type"}})
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "Prediction not found", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "request failed", nil)
	}
}

func supportedModels() string {
	keys := make([]string, 0, 3)
	for _, s := range inference.Catalog() {
		keys = append(keys, string(s.Key))
	}
	return strings.Join(keys, ", ")
}
