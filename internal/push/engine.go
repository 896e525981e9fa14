package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

// Store persists push jobs and applies the side effects of a successful
// push.
type Store interface {
	CreateJob(ctx context.Context, job *models.PushJob) error
	StartJob(ctx context.Context, id uuid.UUID) error
	CompleteJob(ctx context.Context, id uuid.UUID, response json.RawMessage) error
	FailJob(ctx context.Context, id uuid.UUID, message string) error
	ApproveRecord(ctx context.Context, recordID uuid.UUID, reviewedBy string) error
	SetDocumentStatus(ctx context.Context, documentID uuid.UUID, status models.DocStatus) error
}

// FileStore saves adapter artifacts such as CSV exports
type FileStore interface {
	UploadExport(ctx context.Context, filename string, data []byte) (string, error)
}

// Engine executes push jobs against destination connections
type Engine struct {
	store      Store
	files      FileStore
	httpClient *http.Client
}

// NewEngine creates a push engine. files may be nil when no object store
// is configured; CSV results are then returned inline only.
func NewEngine(store Store, files FileStore) *Engine {
	return &Engine{
		store:      store,
		files:      files,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Dispatch pushes one record through a connection. It creates the job,
// walks it queued to running to a terminal status, and on success approves
// the record and marks the document pushed. The returned job reflects the
// terminal state; the error is non-nil exactly when the job failed.
func (e *Engine) Dispatch(ctx context.Context, record *models.Record, conn *models.Connection, fm *models.FieldMap, reviewedBy string) (*models.PushJob, error) {
	if conn.Status != models.ConnectionStatusActive {
		return nil, fmt.Errorf("connection %s is %s, not active", conn.ID, conn.Status)
	}

	payload := BuildPayload(record.NormalizedData, fm)

	now := time.Now().UTC()
	job := &models.PushJob{
		ID:             uuid.New(),
		RecordID:       record.ID,
		ConnectionID:   conn.ID,
		Status:         models.JobStatusQueued,
		RequestPayload: payload,
		CreatedAt:      now,
	}
	if err := e.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create push job: %w", err)
	}

	if err := e.store.StartJob(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("start push job: %w", err)
	}
	job.Status = models.JobStatusRunning
	started := time.Now().UTC()
	job.StartedAt = &started

	response, execErr := e.execute(ctx, conn, payload)
	completed := time.Now().UTC()
	job.CompletedAt = &completed

	if execErr != nil {
		msg := execErr.Error()
		job.Status = models.JobStatusFailed
		job.ErrorMessage = &msg
		if err := e.store.FailJob(ctx, job.ID, msg); err != nil {
			return job, fmt.Errorf("record job failure: %w", err)
		}
		return job, fmt.Errorf("push failed: %w", execErr)
	}

	job.Status = models.JobStatusSuccess
	job.ResponsePayload = response
	if err := e.store.CompleteJob(ctx, job.ID, response); err != nil {
		return job, fmt.Errorf("record job success: %w", err)
	}
	if err := e.store.ApproveRecord(ctx, record.ID, reviewedBy); err != nil {
		return job, fmt.Errorf("approve record after push: %w", err)
	}
	if err := e.store.SetDocumentStatus(ctx, record.DocumentID, models.DocStatusPushed); err != nil {
		return job, fmt.Errorf("mark document pushed: %w", err)
	}

	return job, nil
}

// execute routes the payload to the connection's adapter
func (e *Engine) execute(ctx context.Context, conn *models.Connection, payload map[string]any) (json.RawMessage, error) {
	meta, err := conn.DecodeMeta()
	if err != nil {
		return nil, err
	}

	switch m := meta.(type) {
	case *models.WebhookMeta:
		return e.executeWebhook(ctx, m, payload)
	case *models.CSVMeta:
		return e.executeCSV(ctx, m, payload)
	case *models.TokenMeta:
		return e.executeMockERP(conn.Adapter, payload)
	default:
		return nil, fmt.Errorf("no adapter for connection kind %s", conn.Adapter)
	}
}

// TestWebhook sends a signed ping to a webhook connection without touching
// any record or job state. Used to verify a connection after setup.
func (e *Engine) TestWebhook(ctx context.Context, conn *models.Connection) error {
	if conn.Adapter != models.AdapterWebhook {
		return fmt.Errorf("connection %s is not a webhook", conn.ID)
	}
	meta, err := conn.DecodeMeta()
	if err != nil {
		return err
	}
	payload := map[string]any{
		"event":         "connection.test",
		"connection_id": conn.ID.String(),
		"sent_at":       time.Now().UTC().Format(time.RFC3339),
	}
	_, err = e.executeWebhook(ctx, meta.(*models.WebhookMeta), payload)
	return err
}
