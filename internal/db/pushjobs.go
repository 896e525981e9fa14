package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

// CreatePushJob inserts a queued push job
func CreatePushJob(ctx context.Context, job *models.PushJob) error {
	if Pool == nil {
		return ErrNoDatabase
	}

	payloadJSON, err := json.Marshal(job.RequestPayload)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}

	query := `
		INSERT INTO push_jobs (id, record_id, connection_id, status, request_payload, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	return Pool.QueryRow(ctx, query,
		job.ID, job.RecordID, job.ConnectionID, string(job.Status),
		payloadJSON, job.RetryCount,
	).Scan(&job.CreatedAt)
}

// StartPushJob moves a queued job to running. pgx.ErrNoRows means the job
// was not queued anymore, so the caller's transition was lost.
func StartPushJob(ctx context.Context, id uuid.UUID) error {
	if Pool == nil {
		return ErrNoDatabase
	}
	tag, err := Pool.Exec(ctx, `
		UPDATE push_jobs SET status = $1, started_at = NOW()
		WHERE id = $2 AND status = $3
	`, string(models.JobStatusRunning), id, string(models.JobStatusQueued))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CompletePushJob marks a running job successful with the adapter response
func CompletePushJob(ctx context.Context, id uuid.UUID, response json.RawMessage) error {
	if Pool == nil {
		return ErrNoDatabase
	}
	tag, err := Pool.Exec(ctx, `
		UPDATE push_jobs SET status = $1, response_payload = $2, completed_at = NOW()
		WHERE id = $3 AND status = $4
	`, string(models.JobStatusSuccess), []byte(response), id, string(models.JobStatusRunning))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// FailPushJob marks a running job failed with the error
func FailPushJob(ctx context.Context, id uuid.UUID, message string) error {
	if Pool == nil {
		return ErrNoDatabase
	}
	tag, err := Pool.Exec(ctx, `
		UPDATE push_jobs SET status = $1, error_message = $2, completed_at = NOW()
		WHERE id = $3 AND status = $4
	`, string(models.JobStatusFailed), message, id, string(models.JobStatusRunning))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// GetPushJob retrieves a push job
func GetPushJob(ctx context.Context, id uuid.UUID) (*models.PushJob, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		SELECT id, record_id, connection_id, status, request_payload,
		       response_payload, error_message, retry_count,
		       created_at, started_at, completed_at
		FROM push_jobs
		WHERE id = $1
	`
	return scanPushJob(Pool.QueryRow(ctx, query, id))
}

// ListPushJobsByRecord returns a record's push history, newest first
func ListPushJobsByRecord(ctx context.Context, recordID uuid.UUID) ([]models.PushJob, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		SELECT id, record_id, connection_id, status, request_payload,
		       response_payload, error_message, retry_count,
		       created_at, started_at, completed_at
		FROM push_jobs
		WHERE record_id = $1
		ORDER BY created_at DESC
	`
	rows, err := Pool.Query(ctx, query, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.PushJob
	for rows.Next() {
		job, err := scanPushJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanPushJob(row rowScanner) (*models.PushJob, error) {
	var job models.PushJob
	var status string
	var payloadJSON, responseJSON []byte
	err := row.Scan(
		&job.ID, &job.RecordID, &job.ConnectionID, &status, &payloadJSON,
		&responseJSON, &job.ErrorMessage, &job.RetryCount,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	if err := json.Unmarshal(payloadJSON, &job.RequestPayload); err != nil {
		return nil, fmt.Errorf("unmarshal job payload: %w", err)
	}
	job.ResponsePayload = json.RawMessage(responseJSON)
	return &job, nil
}
