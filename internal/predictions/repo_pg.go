package predictions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const recordColumns = `id, user_id, model_type, status, input_data, patient, result, model_version,
processing_time_ms, error_message, metadata, created_at, updated_at, completed_at`

const uniqueViolation = "23505"

type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, rec Record) (Record, error) {
	if err := validateNew(rec); err != nil {
		return Record{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.Status = StatusPending
	rec.Result = nil
	rec.ErrorMessage = ""
	rec.ProcessingTimeMs = nil
	rec.CompletedAt = nil
	rec.CreatedAt = now
	rec.UpdatedAt = now

	inputJSON, err := json.Marshal(rec.InputData)
	if err != nil {
		return Record{}, fmt.Errorf("marshal input data: %w", err)
	}
	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return Record{}, fmt.Errorf("marshal metadata: %w", err)
	}
	var patientJSON any
	var patientID any
	if rec.Patient != nil {
		raw, err := json.Marshal(rec.Patient)
		if err != nil {
			return Record{}, fmt.Errorf("marshal patient: %w", err)
		}
		patientJSON = raw
		patientID = nullableString(rec.Patient.PatientID)
	}

	const query = `
INSERT INTO predictions (id, user_id, model_type, status, input_data, patient, patient_id, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`
	_, err = r.DB.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.ModelType,
		rec.Status,
		inputJSON,
		patientJSON,
		patientID,
		metadataJSON,
		now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Record{}, ErrAlreadyExists
		}
		return Record{}, fmt.Errorf("insert prediction: %w", err)
	}
	return rec, nil
}

func (r *PGRepo) MarkCompleted(ctx context.Context, id string, result Result, processingTimeMs int64, modelVersion string) (Record, error) {
	if err := validateResult(result); err != nil {
		return Record{}, err
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return Record{}, fmt.Errorf("marshal result: %w", err)
	}
	const query = `
UPDATE predictions
SET status = 'completed', result = $2, processing_time_ms = $3, model_version = $4,
    error_message = NULL, completed_at = $5, updated_at = $5
WHERE id = $1 AND status = 'pending'
RETURNING ` + recordColumns
	row := r.DB.QueryRowContext(ctx, query, id, resultJSON, processingTimeMs, nullableString(modelVersion), time.Now().UTC())
	return r.finishTransition(ctx, id, row)
}

func (r *PGRepo) MarkFailed(ctx context.Context, id, message string) (Record, error) {
	const query = `
UPDATE predictions
SET status = 'failed', result = NULL, error_message = $2, completed_at = $3, updated_at = $3
WHERE id = $1 AND status = 'pending'
RETURNING ` + recordColumns
	row := r.DB.QueryRowContext(ctx, query, id, failureMessage(message), time.Now().UTC())
	return r.finishTransition(ctx, id, row)
}

// finishTransition scans the updated row. No row means the record is missing or already terminal.
func (r *PGRepo) finishTransition(ctx context.Context, id string, row *sql.Row) (Record, error) {
	rec, err := scanRecord(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Record{}, err
	}
	var status string
	err = r.DB.QueryRowContext(ctx, `SELECT status FROM predictions WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return Record{}, ErrNotPending
}

func (r *PGRepo) GetByID(ctx context.Context, id, userID string) (Record, error) {
	query := `SELECT ` + recordColumns + ` FROM predictions WHERE id = $1 AND user_id = $2 LIMIT 1`
	rec, err := scanRecord(r.DB.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func (r *PGRepo) ListForUser(ctx context.Context, q ListQuery) ([]Record, int, error) {
	where, args := listFilter(q)

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count predictions: %w", err)
	}

	offset := q.offset()
	if offset < 0 {
		offset = 0
	}
	args = append(args, q.PageSize, offset)
	query := fmt.Sprintf(`SELECT %s FROM predictions WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		recordColumns, where, len(args)-1, len(args))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func listFilter(q ListQuery) (string, []any) {
	clauses := []string{"user_id = $1"}
	args := []any{q.UserID}
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if q.ModelType != "" {
		add("model_type = $%d", q.ModelType)
	}
	if q.PatientID != "" {
		add("patient_id = $%d", q.PatientID)
	}
	if q.DateFrom != nil {
		add("created_at >= $%d", q.DateFrom.UTC())
	}
	if q.DateTo != nil {
		add("created_at <= $%d", q.DateTo.UTC())
	}
	return strings.Join(clauses, " AND "), args
}

func (r *PGRepo) Stats(ctx context.Context, userID string) (Stats, error) {
	const totalsQuery = `
SELECT COUNT(*),
       COALESCE(AVG((result->>'confidence')::float8) FILTER (WHERE status = 'completed'), 0),
       COUNT(*) FILTER (WHERE status = 'completed'),
       COUNT(*) FILTER (WHERE status = 'failed')
FROM predictions
WHERE user_id = $1`
	stats := Stats{ModelDistribution: make(map[string]int)}
	err := r.DB.QueryRowContext(ctx, totalsQuery, userID).Scan(
		&stats.Count,
		&stats.AvgConfidence,
		&stats.SuccessCount,
		&stats.FailedCount,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("prediction totals: %w", err)
	}

	const distributionQuery = `SELECT model_type, COUNT(*) FROM predictions WHERE user_id = $1 GROUP BY model_type`
	rows, err := r.DB.QueryContext(ctx, distributionQuery, userID)
	if err != nil {
		return Stats{}, fmt.Errorf("prediction distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var model string
		var count int
		if err := rows.Scan(&model, &count); err != nil {
			return Stats{}, err
		}
		stats.ModelDistribution[model] = count
	}
	return stats, rows.Err()
}

func (r *PGRepo) Delete(ctx context.Context, id, userID string) (Record, error) {
	query := `DELETE FROM predictions WHERE id = $1 AND user_id = $2 RETURNING ` + recordColumns
	rec, err := scanRecord(r.DB.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec          Record
		inputJSON    []byte
		patientJSON  []byte
		resultJSON   []byte
		metadataJSON []byte
		modelVersion sql.NullString
		processingMs sql.NullInt64
		errorMessage sql.NullString
		completedAt  sql.NullTime
	)
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.ModelType,
		&rec.Status,
		&inputJSON,
		&patientJSON,
		&resultJSON,
		&modelVersion,
		&processingMs,
		&errorMessage,
		&metadataJSON,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return Record{}, err
	}

	if err := unmarshalOptional(inputJSON, &rec.InputData); err != nil {
		return Record{}, fmt.Errorf("decode input data: %w", err)
	}
	if err := unmarshalOptional(metadataJSON, &rec.Metadata); err != nil {
		return Record{}, fmt.Errorf("decode metadata: %w", err)
	}
	if len(patientJSON) > 0 {
		rec.Patient = &PatientInfo{}
		if err := json.Unmarshal(patientJSON, rec.Patient); err != nil {
			return Record{}, fmt.Errorf("decode patient: %w", err)
		}
	}
	if len(resultJSON) > 0 {
		rec.Result = &Result{}
		if err := json.Unmarshal(resultJSON, rec.Result); err != nil {
			return Record{}, fmt.Errorf("decode result: %w", err)
		}
	}
	if modelVersion.Valid {
		rec.ModelVersion = modelVersion.String
	}
	if processingMs.Valid {
		ms := processingMs.Int64
		rec.ProcessingTimeMs = &ms
	}
	if errorMessage.Valid {
		rec.ErrorMessage = errorMessage.String
	}
	if completedAt.Valid {
		at := completedAt.Time
		rec.CompletedAt = &at
	}
	return rec, nil
}

func unmarshalOptional(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
