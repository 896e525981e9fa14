package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

// UpsertRecord saves a record for a document. Reprocessing replaces the
// data and resets the record to pending review.
func UpsertRecord(ctx context.Context, rec *models.Record) error {
	if Pool == nil {
		return ErrNoDatabase
	}

	dataJSON, err := json.Marshal(rec.NormalizedData)
	if err != nil {
		return fmt.Errorf("marshal record data: %w", err)
	}
	var validationJSON []byte
	if rec.ValidationResult != nil {
		validationJSON, err = json.Marshal(rec.ValidationResult)
		if err != nil {
			return fmt.Errorf("marshal validation result: %w", err)
		}
	}

	query := `
		INSERT INTO records (id, document_id, organization_id, record_type, status, normalized_data, validation_result)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (document_id) DO UPDATE SET
			record_type = EXCLUDED.record_type,
			status = EXCLUDED.status,
			normalized_data = EXCLUDED.normalized_data,
			validation_result = EXCLUDED.validation_result,
			reviewed_by = NULL,
			reviewed_at = NULL,
			updated_at = NOW()
		RETURNING id, created_at
	`
	return Pool.QueryRow(ctx, query,
		rec.ID, rec.DocumentID, rec.OrganizationID, string(rec.RecordType),
		string(rec.Status), dataJSON, validationJSON,
	).Scan(&rec.ID, &rec.CreatedAt)
}

// GetRecord retrieves a record scoped to an organization
func GetRecord(ctx context.Context, orgID, recordID uuid.UUID) (*models.Record, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		SELECT id, document_id, organization_id, record_type, status,
		       normalized_data, validation_result, reviewed_by, reviewed_at,
		       created_at, updated_at
		FROM records
		WHERE id = $1 AND organization_id = $2
	`
	return scanRecord(Pool.QueryRow(ctx, query, recordID, orgID))
}

// GetRecordByDocument retrieves the record derived from a document
func GetRecordByDocument(ctx context.Context, docID uuid.UUID) (*models.Record, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		SELECT id, document_id, organization_id, record_type, status,
		       normalized_data, validation_result, reviewed_by, reviewed_at,
		       created_at, updated_at
		FROM records
		WHERE document_id = $1
	`
	return scanRecord(Pool.QueryRow(ctx, query, docID))
}

// ListRecords returns an organization's records, optionally filtered by
// status, newest first.
func ListRecords(ctx context.Context, orgID uuid.UUID, status models.RecordStatus, limit int) ([]models.Record, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, document_id, organization_id, record_type, status,
		       normalized_data, validation_result, reviewed_by, reviewed_at,
		       created_at, updated_at
		FROM records
		WHERE organization_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := Pool.Query(ctx, query, orgID, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// UpdateRecordStatus applies a review decision
func UpdateRecordStatus(ctx context.Context, recordID uuid.UUID, status models.RecordStatus, reviewedBy string) error {
	if Pool == nil {
		return ErrNoDatabase
	}
	_, err := Pool.Exec(ctx, `
		UPDATE records
		SET status = $1, reviewed_by = $2, reviewed_at = $3, updated_at = $3
		WHERE id = $4
	`, string(status), reviewedBy, time.Now(), recordID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var rec models.Record
	var dataJSON, validationJSON []byte
	err := row.Scan(
		&rec.ID, &rec.DocumentID, &rec.OrganizationID, &rec.RecordType,
		&rec.Status, &dataJSON, &validationJSON, &rec.ReviewedBy,
		&rec.ReviewedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(dataJSON, &rec.NormalizedData); err != nil {
		return nil, fmt.Errorf("unmarshal record data: %w", err)
	}
	if len(validationJSON) > 0 {
		rec.ValidationResult = &models.TaxValidation{}
		if err := json.Unmarshal(validationJSON, rec.ValidationResult); err != nil {
			return nil, fmt.Errorf("unmarshal validation result: %w", err)
		}
	}
	return &rec, nil
}
