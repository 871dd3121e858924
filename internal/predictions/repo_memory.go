package predictions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo stores predictions in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu    sync.RWMutex
	byID  map[string]Record
	order []string
	now   func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID: make(map[string]Record),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepo) Create(ctx context.Context, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if err := validateNew(rec); err != nil {
		return Record{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := r.now()
	rec.Status = StatusPending
	rec.Result = nil
	rec.ErrorMessage = ""
	rec.ProcessingTimeMs = nil
	rec.CompletedAt = nil
	rec.CreatedAt = now
	rec.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[rec.ID]; exists {
		return Record{}, ErrAlreadyExists
	}
	r.byID[rec.ID] = cloneRecord(rec)
	r.order = append(r.order, rec.ID)
	return cloneRecord(rec), nil
}

func (r *MemoryRepo) MarkCompleted(ctx context.Context, id string, result Result, processingTimeMs int64, modelVersion string) (Record, error) {
	if err := validateResult(result); err != nil {
		return Record{}, err
	}
	return r.transition(ctx, id, func(rec *Record, now time.Time) {
		res := result
		res.ClassScores = append([]ClassScore(nil), result.ClassScores...)
		ms := processingTimeMs
		rec.Status = StatusCompleted
		rec.Result = &res
		rec.ProcessingTimeMs = &ms
		rec.ModelVersion = modelVersion
		rec.ErrorMessage = ""
		rec.CompletedAt = &now
	})
}

func (r *MemoryRepo) MarkFailed(ctx context.Context, id, message string) (Record, error) {
	return r.transition(ctx, id, func(rec *Record, now time.Time) {
		rec.Status = StatusFailed
		rec.Result = nil
		rec.ErrorMessage = failureMessage(message)
		rec.CompletedAt = &now
	})
}

func (r *MemoryRepo) transition(ctx context.Context, id string, apply func(*Record, time.Time)) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if rec.Status != StatusPending {
		return Record{}, ErrNotPending
	}
	now := r.now()
	apply(&rec, now)
	rec.UpdatedAt = now
	r.byID[id] = rec
	return cloneRecord(rec), nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, id, userID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok || rec.UserID != userID {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (r *MemoryRepo) ListForUser(ctx context.Context, q ListQuery) ([]Record, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	matched := make([]Record, 0)
	for i := len(r.order) - 1; i >= 0; i-- {
		rec := r.byID[r.order[i]]
		if matches(rec, q) {
			matched = append(matched, rec)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := q.offset()
	if start < 0 {
		start = 0
	}
	if start >= total {
		return []Record{}, total, nil
	}
	end := total
	if q.PageSize > 0 && start+q.PageSize < end {
		end = start + q.PageSize
	}
	out := make([]Record, 0, end-start)
	for _, rec := range matched[start:end] {
		out = append(out, cloneRecord(rec))
	}
	return out, total, nil
}

func matches(rec Record, q ListQuery) bool {
	if rec.UserID != q.UserID {
		return false
	}
	if q.ModelType != "" && rec.ModelType != q.ModelType {
		return false
	}
	if q.PatientID != "" && (rec.Patient == nil || rec.Patient.PatientID != q.PatientID) {
		return false
	}
	if q.DateFrom != nil && rec.CreatedAt.Before(*q.DateFrom) {
		return false
	}
	if q.DateTo != nil && rec.CreatedAt.After(*q.DateTo) {
		return false
	}
	return true
}

func (r *MemoryRepo) Stats(ctx context.Context, userID string) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := Stats{ModelDistribution: make(map[string]int)}
	var confidenceSum float64
	for _, rec := range r.byID {
		if rec.UserID != userID {
			continue
		}
		stats.Count++
		stats.ModelDistribution[rec.ModelType]++
		switch rec.Status {
		case StatusCompleted:
			stats.SuccessCount++
			if rec.Result != nil {
				confidenceSum += rec.Result.Confidence
			}
		case StatusFailed:
			stats.FailedCount++
		}
	}
	if stats.SuccessCount > 0 {
		stats.AvgConfidence = confidenceSum / float64(stats.SuccessCount)
	}
	return stats, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id, userID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok || rec.UserID != userID {
		return Record{}, ErrNotFound
	}
	delete(r.byID, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return rec, nil
}
