package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

// CreateDocument inserts a new document in status uploaded
func CreateDocument(ctx context.Context, doc *models.Document) error {
	if Pool == nil {
		return ErrNoDatabase
	}

	query := `
		INSERT INTO documents (id, organization_id, filename, storage_path, mime_type, doc_type, status)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		RETURNING created_at
	`
	return Pool.QueryRow(ctx, query,
		doc.ID, doc.OrganizationID, doc.Filename, doc.StoragePath,
		doc.MimeType, string(doc.DocType), string(doc.Status),
	).Scan(&doc.CreatedAt)
}

// GetDocument retrieves a document scoped to an organization
func GetDocument(ctx context.Context, orgID, docID uuid.UUID) (*models.Document, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		SELECT id, organization_id, COALESCE(filename, ''), COALESCE(storage_path, ''),
		       COALESCE(mime_type, ''), COALESCE(doc_type, ''), status,
		       error_message, created_at, updated_at
		FROM documents
		WHERE id = $1 AND organization_id = $2
	`
	var doc models.Document
	var docType string
	err := Pool.QueryRow(ctx, query, docID, orgID).Scan(
		&doc.ID, &doc.OrganizationID, &doc.Filename, &doc.StoragePath,
		&doc.MimeType, &docType, &doc.Status,
		&doc.ErrorMessage, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.DocType = models.DocType(docType)
	return &doc, nil
}

// ListDocuments returns an organization's documents, newest first
func ListDocuments(ctx context.Context, orgID uuid.UUID, limit int) ([]models.Document, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, organization_id, COALESCE(filename, ''), COALESCE(storage_path, ''),
		       COALESCE(mime_type, ''), COALESCE(doc_type, ''), status,
		       error_message, created_at, updated_at
		FROM documents
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := Pool.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		var docType string
		err := rows.Scan(
			&doc.ID, &doc.OrganizationID, &doc.Filename, &doc.StoragePath,
			&doc.MimeType, &docType, &doc.Status,
			&doc.ErrorMessage, &doc.CreatedAt, &doc.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		doc.DocType = models.DocType(docType)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// SetDocumentStatus moves a document through its lifecycle
func SetDocumentStatus(ctx context.Context, docID uuid.UUID, status models.DocStatus) error {
	if Pool == nil {
		return ErrNoDatabase
	}
	_, err := Pool.Exec(ctx,
		`UPDATE documents SET status = $1, error_message = NULL, updated_at = $2 WHERE id = $3`,
		string(status), time.Now(), docID)
	return err
}

// SetDocumentError marks a document failed with a reason
func SetDocumentError(ctx context.Context, docID uuid.UUID, message string) error {
	if Pool == nil {
		return ErrNoDatabase
	}
	_, err := Pool.Exec(ctx,
		`UPDATE documents SET status = $1, error_message = $2, updated_at = $3 WHERE id = $4`,
		string(models.DocStatusError), message, time.Now(), docID)
	return err
}

// SetDocumentType records the detected document type
func SetDocumentType(ctx context.Context, docID uuid.UUID, docType models.DocType) error {
	if Pool == nil {
		return ErrNoDatabase
	}
	_, err := Pool.Exec(ctx,
		`UPDATE documents SET doc_type = $1, updated_at = $2 WHERE id = $3`,
		string(docType), time.Now(), docID)
	return err
}
