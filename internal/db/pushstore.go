package db

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

// PushStore adapts the package-level store functions to the push engine's
// Store interface.
type PushStore struct{}

func (PushStore) CreateJob(ctx context.Context, job *models.PushJob) error {
	return CreatePushJob(ctx, job)
}

func (PushStore) StartJob(ctx context.Context, id uuid.UUID) error {
	return StartPushJob(ctx, id)
}

func (PushStore) CompleteJob(ctx context.Context, id uuid.UUID, response json.RawMessage) error {
	return CompletePushJob(ctx, id, response)
}

func (PushStore) FailJob(ctx context.Context, id uuid.UUID, message string) error {
	return FailPushJob(ctx, id, message)
}

func (PushStore) ApproveRecord(ctx context.Context, recordID uuid.UUID, reviewedBy string) error {
	return UpdateRecordStatus(ctx, recordID, models.RecordStatusApproved, reviewedBy)
}

func (PushStore) SetDocumentStatus(ctx context.Context, documentID uuid.UUID, status models.DocStatus) error {
	return SetDocumentStatus(ctx, documentID, status)
}
