package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

// UpsertFieldMap saves a field map for an (organization, doc type) pair,
// either connection-scoped or organization-wide.
func UpsertFieldMap(ctx context.Context, fm *models.FieldMap) error {
	if Pool == nil {
		return ErrNoDatabase
	}

	mapJSON, err := json.Marshal(fm.Map)
	if err != nil {
		return fmt.Errorf("marshal field map: %w", err)
	}

	// Two partial unique indexes back these targets: one over
	// (organization_id, doc_type, connection_id) and one over
	// (organization_id, doc_type) where connection_id is null.
	var query string
	if fm.ConnectionID != nil {
		query = `
			INSERT INTO field_maps (id, organization_id, doc_type, connection_id, map)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (organization_id, doc_type, connection_id) WHERE connection_id IS NOT NULL
			DO UPDATE SET map = EXCLUDED.map, updated_at = NOW()
			RETURNING id, created_at
		`
	} else {
		query = `
			INSERT INTO field_maps (id, organization_id, doc_type, connection_id, map)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (organization_id, doc_type) WHERE connection_id IS NULL
			DO UPDATE SET map = EXCLUDED.map, updated_at = NOW()
			RETURNING id, created_at
		`
	}
	return Pool.QueryRow(ctx, query,
		fm.ID, fm.OrganizationID, string(fm.DocType), fm.ConnectionID, mapJSON,
	).Scan(&fm.ID, &fm.CreatedAt)
}

// ResolveFieldMap returns the field map for a push: the map scoped to the
// connection wins over the organization-wide one, and nil means
// passthrough.
func ResolveFieldMap(ctx context.Context, orgID uuid.UUID, docType models.DocType, connID uuid.UUID) (*models.FieldMap, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		SELECT id, organization_id, doc_type, connection_id, map, created_at, updated_at
		FROM field_maps
		WHERE organization_id = $1 AND doc_type = $2
		  AND (connection_id = $3 OR connection_id IS NULL)
		ORDER BY connection_id NULLS LAST
		LIMIT 1
	`
	fm, err := scanFieldMap(Pool.QueryRow(ctx, query, orgID, string(docType), connID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return fm, err
}

// ListFieldMaps returns an organization's field maps
func ListFieldMaps(ctx context.Context, orgID uuid.UUID) ([]models.FieldMap, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		SELECT id, organization_id, doc_type, connection_id, map, created_at, updated_at
		FROM field_maps
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`
	rows, err := Pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var maps []models.FieldMap
	for rows.Next() {
		fm, err := scanFieldMap(rows)
		if err != nil {
			return nil, err
		}
		maps = append(maps, *fm)
	}
	return maps, rows.Err()
}

func scanFieldMap(row rowScanner) (*models.FieldMap, error) {
	var fm models.FieldMap
	var docType string
	var mapJSON []byte
	err := row.Scan(
		&fm.ID, &fm.OrganizationID, &docType, &fm.ConnectionID,
		&mapJSON, &fm.CreatedAt, &fm.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	fm.DocType = models.DocType(docType)
	if err := json.Unmarshal(mapJSON, &fm.Map); err != nil {
		return nil, fmt.Errorf("unmarshal field map: %w", err)
	}
	return &fm, nil
}
