package predictions

import (
	"time"

	"rd-prediction-backend/internal/inference"
)

type inputDataResponse struct {
	FileName    string `json:"fileName"`
	SizeBytes   int64  `json:"sizeBytes"`
	ContentType string `json:"contentType"`
}

type predictionResponse struct {
	ID             string            `json:"id"`
	UserID         string            `json:"userId"`
	ModelType      string            `json:"modelType"`
	Status         string            `json:"status"`
	InputData      inputDataResponse `json:"inputData"`
	Patient        *PatientInfo      `json:"patient,omitempty"`
	Result         *Result           `json:"result"`
	ModelVersion   string            `json:"modelVersion,omitempty"`
	ProcessingTime *int64            `json:"processingTime"`
	ErrorMessage   *string           `json:"errorMessage"`
	Metadata       Metadata          `json:"metadata"`
	CreatedAt      string            `json:"createdAt"`
	UpdatedAt      string            `json:"updatedAt"`
	CompletedAt    *string           `json:"completedAt,omitempty"`
}

type paginationResponse struct {
	CurrentPage      int  `json:"currentPage"`
	TotalPages       int  `json:"totalPages"`
	TotalPredictions int  `json:"totalPredictions"`
	Limit            int  `json:"limit"`
	HasNext          bool `json:"hasNext"`
	HasPrev          bool `json:"hasPrev"`
}

type historyResponse struct {
	Predictions []predictionResponse `json:"predictions"`
	Pagination  paginationResponse   `json:"pagination"`
}

type statsResponse struct {
	TotalPredictions      int            `json:"totalPredictions"`
	AvgConfidence         float64        `json:"avgConfidence"`
	SuccessfulPredictions int            `json:"successfulPredictions"`
	FailedPredictions     int            `json:"failedPredictions"`
	ModelDistribution     map[string]int `json:"modelDistribution"`
}

type modelsResponse struct {
	Models []inference.ModelInfo `json:"models"`
}

func toResponse(r Record) predictionResponse {
	resp := predictionResponse{
		ID:        r.ID,
		UserID:    r.UserID,
		ModelType: r.ModelType,
		Status:    r.Status,
		InputData: inputDataResponse{
			FileName:    r.InputData.FileName,
			SizeBytes:   r.InputData.SizeBytes,
			ContentType: r.InputData.ContentType,
		},
		Patient:        r.Patient,
		ModelVersion:   r.ModelVersion,
		ProcessingTime: r.ProcessingTimeMs,
		Metadata:       r.Metadata,
		CreatedAt:      r.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:      r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if r.Status == StatusCompleted {
		resp.Result = r.Result
	}
	if r.Status == StatusFailed {
		msg := r.ErrorMessage
		resp.ErrorMessage = &msg
	}
	if r.CompletedAt != nil {
		at := r.CompletedAt.UTC().Format(time.RFC3339Nano)
		resp.CompletedAt = &at
	}
	return resp
}

func toHistoryResponse(p Page) historyResponse {
	items := make([]predictionResponse, 0, len(p.Records))
	for _, r := range p.Records {
		items = append(items, toResponse(r))
	}
	totalPages := p.TotalPages()
	return historyResponse{
		Predictions: items,
		Pagination: paginationResponse{
			CurrentPage:      p.Page,
			TotalPages:       totalPages,
			TotalPredictions: p.Total,
			Limit:            p.PageSize,
			HasNext:          p.Page < totalPages,
			HasPrev:          p.Page > 1,
		},
	}
}

func toStatsResponse(s Stats) statsResponse {
	dist := s.ModelDistribution
	if dist == nil {
		dist = map[string]int{}
	}
	return statsResponse{
		TotalPredictions:      s.Count,
		AvgConfidence:         s.AvgConfidence,
		SuccessfulPredictions: s.SuccessCount,
		FailedPredictions:     s.FailedCount,
		ModelDistribution:     dist,
	}
}
