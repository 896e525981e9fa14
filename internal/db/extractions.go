package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

// UpsertExtraction saves an extraction result, replacing any earlier run
// for the same document.
func UpsertExtraction(ctx context.Context, res *models.ExtractionResult) error {
	if Pool == nil {
		return ErrNoDatabase
	}

	dataJSON, err := json.Marshal(res.Data)
	if err != nil {
		return fmt.Errorf("marshal extraction data: %w", err)
	}
	metaJSON, err := json.Marshal(res.Metadata)
	if err != nil {
		return fmt.Errorf("marshal extraction metadata: %w", err)
	}

	query := `
		INSERT INTO extraction_results (id, document_id, markdown, data, confidence, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (document_id) DO UPDATE SET
			markdown = EXCLUDED.markdown,
			data = EXCLUDED.data,
			confidence = EXCLUDED.confidence,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id, created_at
	`
	return Pool.QueryRow(ctx, query,
		res.ID, res.DocumentID, res.Markdown, dataJSON, res.Confidence, metaJSON,
	).Scan(&res.ID, &res.CreatedAt)
}

// GetExtractionByDocument retrieves the extraction result for a document
func GetExtractionByDocument(ctx context.Context, docID uuid.UUID) (*models.ExtractionResult, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		SELECT id, document_id, COALESCE(markdown, ''), data, confidence, metadata, created_at, updated_at
		FROM extraction_results
		WHERE document_id = $1
	`
	var res models.ExtractionResult
	var dataJSON, metaJSON []byte
	err := Pool.QueryRow(ctx, query, docID).Scan(
		&res.ID, &res.DocumentID, &res.Markdown, &dataJSON, &res.Confidence,
		&metaJSON, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(dataJSON, &res.Data); err != nil {
		return nil, fmt.Errorf("unmarshal extraction data: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &res.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal extraction metadata: %w", err)
	}
	return &res, nil
}
