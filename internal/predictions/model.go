package predictions

import (
	"math"
	"time"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// InputData references the uploaded image.
type InputData struct {
	FileName    string `json:"fileName"`
	SizeBytes   int64  `json:"sizeBytes"`
	ContentType string `json:"contentType"`
	StorageKey  string `json:"storageKey"`
}

type PatientInfo struct {
	PatientID string `json:"patientId,omitempty"`
	Name      string `json:"name,omitempty"`
	Age       int    `json:"age,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

type ClassScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Result is the classification outcome stored on completed records.
type Result struct {
	PredictedClass string       `json:"predictedClass"`
	Confidence     float64      `json:"confidence"`
	Category       string       `json:"category"`
	ClassScores    []ClassScore `json:"classScores"`
	Interpretation string       `json:"interpretation,omitempty"`
}

// Metadata is the client context captured at upload.
type Metadata struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	FileSize  int64  `json:"fileSize"`
	FileName  string `json:"fileName"`
}

// Record is one prediction request. It is created pending and moves exactly once to
// completed or failed.
type Record struct {
	ID               string
	UserID           string
	ModelType        string
	InputData        InputData
	Patient          *PatientInfo
	Result           *Result
	ModelVersion     string
	ProcessingTimeMs *int64
	Status           string
	ErrorMessage     string
	Metadata         Metadata
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

// ListQuery selects one page of a user's history.
type ListQuery struct {
	UserID    string
	Page      int
	PageSize  int
	PatientID string
	ModelType string
	DateFrom  *time.Time
	DateTo    *time.Time
}

// offset saturates at math.MaxInt so an absurd page number yields an empty page.
func (q ListQuery) offset() int {
	if q.Page < 1 || q.PageSize < 1 {
		return 0
	}
	if q.Page-1 > math.MaxInt/q.PageSize {
		return math.MaxInt
	}
	return (q.Page - 1) * q.PageSize
}

// Stats aggregates a user's history.
type Stats struct {
	Count             int
	AvgConfidence     float64
	SuccessCount      int
	FailedCount       int
	ModelDistribution map[string]int
}

// Page is a slice of history plus the total number of matching records.
type Page struct {
	Records  []Record
	Total    int
	Page     int
	PageSize int
}

func (p Page) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

func cloneRecord(r Record) Record {
	if r.Patient != nil {
		p := *r.Patient
		r.Patient = &p
	}
	if r.Result != nil {
		res := *r.Result
		res.ClassScores = append([]ClassScore(nil), r.Result.ClassScores...)
		r.Result = &res
	}
	if r.ProcessingTimeMs != nil {
		ms := *r.ProcessingTimeMs
		r.ProcessingTimeMs = &ms
	}
	if r.CompletedAt != nil {
		at := *r.CompletedAt
		r.CompletedAt = &at
	}
	return r
}
