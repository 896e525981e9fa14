package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

// CreateConnection inserts a destination connection. Creating a default
// connection clears the previous default in the same transaction so the
// single-default rule holds.
func CreateConnection(ctx context.Context, conn *models.Connection) error {
	if Pool == nil {
		return ErrNoDatabase
	}

	return pgx.BeginFunc(ctx, Pool, func(tx pgx.Tx) error {
		if conn.IsDefault {
			_, err := tx.Exec(ctx,
				`UPDATE connections SET is_default = FALSE, updated_at = NOW() WHERE organization_id = $1 AND is_default`,
				conn.OrganizationID)
			if err != nil {
				return fmt.Errorf("clear previous default: %w", err)
			}
		}
		query := `
			INSERT INTO connections (id, organization_id, adapter, display_name, status, is_default, meta)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at
		`
		return tx.QueryRow(ctx, query,
			conn.ID, conn.OrganizationID, string(conn.Adapter), conn.DisplayName,
			string(conn.Status), conn.IsDefault, []byte(conn.Meta),
		).Scan(&conn.CreatedAt)
	})
}

// GetConnection retrieves a connection scoped to an organization
func GetConnection(ctx context.Context, orgID, connID uuid.UUID) (*models.Connection, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		SELECT id, organization_id, adapter, COALESCE(display_name, ''), status,
		       is_default, COALESCE(meta, '{}'::jsonb), created_at, updated_at
		FROM connections
		WHERE id = $1 AND organization_id = $2
	`
	return scanConnection(Pool.QueryRow(ctx, query, connID, orgID))
}

// GetDefaultConnection returns the organization's default connection, or
// pgx.ErrNoRows when none is set.
func GetDefaultConnection(ctx context.Context, orgID uuid.UUID) (*models.Connection, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		SELECT id, organization_id, adapter, COALESCE(display_name, ''), status,
		       is_default, COALESCE(meta, '{}'::jsonb), created_at, updated_at
		FROM connections
		WHERE organization_id = $1 AND is_default
	`
	return scanConnection(Pool.QueryRow(ctx, query, orgID))
}

// ListConnections returns an organization's connections
func ListConnections(ctx context.Context, orgID uuid.UUID) ([]models.Connection, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		SELECT id, organization_id, adapter, COALESCE(display_name, ''), status,
		       is_default, COALESCE(meta, '{}'::jsonb), created_at, updated_at
		FROM connections
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`
	rows, err := Pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *conn)
	}
	return conns, rows.Err()
}

// SetDefaultConnection makes one connection the organization default,
// clearing any previous default in the same transaction.
func SetDefaultConnection(ctx context.Context, orgID, connID uuid.UUID) error {
	if Pool == nil {
		return ErrNoDatabase
	}

	return pgx.BeginFunc(ctx, Pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE connections SET is_default = FALSE, updated_at = NOW() WHERE organization_id = $1 AND is_default`,
			orgID)
		if err != nil {
			return fmt.Errorf("clear previous default: %w", err)
		}
		tag, err := tx.Exec(ctx,
			`UPDATE connections SET is_default = TRUE, updated_at = NOW() WHERE id = $1 AND organization_id = $2`,
			connID, orgID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
}

// SetConnectionStatus updates a connection's health status
func SetConnectionStatus(ctx context.Context, connID uuid.UUID, status models.ConnectionStatus) error {
	if Pool == nil {
		return ErrNoDatabase
	}
	_, err := Pool.Exec(ctx,
		`UPDATE connections SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now(), connID)
	return err
}

// DeleteConnection removes a connection
func DeleteConnection(ctx context.Context, orgID, connID uuid.UUID) error {
	if Pool == nil {
		return ErrNoDatabase
	}
	tag, err := Pool.Exec(ctx,
		`DELETE FROM connections WHERE id = $1 AND organization_id = $2`,
		connID, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanConnection(row rowScanner) (*models.Connection, error) {
	var conn models.Connection
	var adapter, status string
	var meta []byte
	err := row.Scan(
		&conn.ID, &conn.OrganizationID, &adapter, &conn.DisplayName,
		&status, &conn.IsDefault, &meta, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	conn.Adapter = models.AdapterKind(adapter)
	conn.Status = models.ConnectionStatus(status)
	conn.Meta = json.RawMessage(meta)
	return &conn, nil
}
