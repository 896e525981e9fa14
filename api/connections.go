package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/parseledger/document-pipeline-service/internal/auth"
	"github.com/parseledger/document-pipeline-service/internal/db"
	"github.com/parseledger/document-pipeline-service/internal/models"
)

// CreateConnectionRequest is the body for creating a connection
type CreateConnectionRequest struct {
	Adapter     models.AdapterKind `json:"adapter"`
	DisplayName string             `json:"display_name"`
	IsDefault   bool               `json:"is_default"`
	Meta        json.RawMessage    `json:"meta"`
}

var knownAdapters = map[models.AdapterKind]bool{
	models.AdapterWebhook:    true,
	models.AdapterCSV:        true,
	models.AdapterNetSuite:   true,
	models.AdapterQuickBooks: true,
	models.AdapterXero:       true,
}

// CreateConnection registers a destination connection
func (h *Handler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orgID, err := uuid.Parse(claims.OrgID)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "invalid organization in token")
		return
	}

	var req CreateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !knownAdapters[req.Adapter] {
		h.sendError(w, http.StatusBadRequest, fmt.Sprintf("unknown adapter %q", req.Adapter))
		return
	}

	conn := &models.Connection{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Adapter:        req.Adapter,
		DisplayName:    req.DisplayName,
		Status:         models.ConnectionStatusActive,
		IsDefault:      req.IsDefault,
		Meta:           req.Meta,
	}

	// Reject malformed meta up front rather than at first push
	if _, err := conn.DecodeMeta(); err != nil {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := db.CreateConnection(ctx, conn); err != nil {
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create connection: %v", err))
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success":    true,
		"connection": conn,
	})
}

// ListConnections returns the organization's connections
func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orgID, err := uuid.Parse(claims.OrgID)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "invalid organization in token")
		return
	}

	conns, err := db.ListConnections(ctx, orgID)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list connections: %v", err))
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"connections": conns,
		"count":       len(conns),
	})
}

// DeleteConnection removes a connection
func (h *Handler) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orgID, err := uuid.Parse(claims.OrgID)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "invalid organization in token")
		return
	}

	connID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid connection id")
		return
	}

	if err := db.DeleteConnection(ctx, orgID, connID); err != nil {
		h.sendError(w, http.StatusNotFound, "connection not found")
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": "connection deleted",
	})
}

// SetDefaultConnection makes a connection the organization default
func (h *Handler) SetDefaultConnection(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orgID, err := uuid.Parse(claims.OrgID)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "invalid organization in token")
		return
	}

	connID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid connection id")
		return
	}

	if err := db.SetDefaultConnection(ctx, orgID, connID); err != nil {
		h.sendError(w, http.StatusNotFound, "connection not found")
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": "default connection updated",
	})
}

// TestConnection sends a signed ping to a webhook connection and records
// the result in the connection's status.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orgID, err := uuid.Parse(claims.OrgID)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "invalid organization in token")
		return
	}

	connID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid connection id")
		return
	}

	conn, err := db.GetConnection(ctx, orgID, connID)
	if err != nil {
		h.sendError(w, http.StatusNotFound, "connection not found")
		return
	}

	if testErr := h.engine.TestWebhook(ctx, conn); testErr != nil {
		if err := db.SetConnectionStatus(ctx, connID, models.ConnectionStatusError); err != nil {
			fmt.Printf("Warning: failed to update connection status: %v\n", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   testErr.Error(),
		})
		return
	}

	if err := db.SetConnectionStatus(ctx, connID, models.ConnectionStatusActive); err != nil {
		fmt.Printf("Warning: failed to update connection status: %v\n", err)
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": "webhook reachable",
	})
}

// FieldMapRequest is the body for saving a field map
type FieldMapRequest struct {
	DocType      models.DocType    `json:"doc_type"`
	ConnectionID *uuid.UUID        `json:"connection_id,omitempty"`
	Map          map[string]string `json:"map"`
}

// UpsertFieldMap saves an organization-wide or connection-scoped field map
func (h *Handler) UpsertFieldMap(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orgID, err := uuid.Parse(claims.OrgID)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "invalid organization in token")
		return
	}

	var req FieldMapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DocType != models.DocTypeReceipt && req.DocType != models.DocTypeInvoice {
		h.sendError(w, http.StatusBadRequest, fmt.Sprintf("unknown doc_type %q", req.DocType))
		return
	}
	if len(req.Map) == 0 {
		h.sendError(w, http.StatusBadRequest, "map must not be empty")
		return
	}

	if req.ConnectionID != nil {
		if _, err := db.GetConnection(ctx, orgID, *req.ConnectionID); err != nil {
			h.sendError(w, http.StatusNotFound, "connection not found")
			return
		}
	}

	fm := &models.FieldMap{
		ID:             uuid.New(),
		OrganizationID: orgID,
		DocType:        req.DocType,
		ConnectionID:   req.ConnectionID,
		Map:            req.Map,
	}
	if err := db.UpsertFieldMap(ctx, fm); err != nil {
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save field map: %v", err))
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success":   true,
		"field_map": fm,
	})
}

// ListFieldMaps returns the organization's field maps
func (h *Handler) ListFieldMaps(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orgID, err := uuid.Parse(claims.OrgID)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "invalid organization in token")
		return
	}

	maps, err := db.ListFieldMaps(ctx, orgID)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list field maps: %v", err))
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success":    true,
		"field_maps": maps,
		"count":      len(maps),
	})
}
