package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"

	"github.com/parseledger/document-pipeline-service/internal/auth"
	"github.com/parseledger/document-pipeline-service/internal/db"
	"github.com/parseledger/document-pipeline-service/internal/models"
	"github.com/parseledger/document-pipeline-service/internal/push"
)

// PushRequest is the body of a push
type PushRequest struct {
	ConnectionID *uuid.UUID `json:"connection_id,omitempty"`
	Preview      bool       `json:"preview,omitempty"`
}

// PushRecord dispatches a record to a destination connection. Without a
// connection_id the organization default is used. With preview set, the
// resolved payload is returned and nothing is sent or persisted.
func (h *Handler) PushRecord(w http.ResponseWriter, r *http.Request) {
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

	recordID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	var req PushRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.sendError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	record, err := db.GetRecord(ctx, orgID, recordID)
	if err != nil {
		h.sendError(w, http.StatusNotFound, "record not found")
		return
	}
	if record.Status == models.RecordStatusRejected {
		h.sendError(w, http.StatusConflict, "rejected records cannot be pushed")
		return
	}

	// Resolve the connection: explicit id, or the organization default
	var conn *models.Connection
	if req.ConnectionID != nil {
		conn, err = db.GetConnection(ctx, orgID, *req.ConnectionID)
		if err != nil {
			h.sendError(w, http.StatusNotFound, "connection not found")
			return
		}
	} else {
		conn, err = db.GetDefaultConnection(ctx, orgID)
		if errors.Is(err, pgx.ErrNoRows) {
			h.sendError(w, http.StatusConflict, "no connection specified and no default connection configured")
			return
		}
		if err != nil {
			h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("failed to resolve connection: %v", err))
			return
		}
	}
	if conn.Status != models.ConnectionStatusActive {
		h.sendError(w, http.StatusConflict, fmt.Sprintf("connection is %s, not active", conn.Status))
		return
	}

	fm, err := db.ResolveFieldMap(ctx, orgID, record.RecordType, conn.ID)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("failed to resolve field map: %v", err))
		return
	}

	if req.Preview {
		json.NewEncoder(w).Encode(map[string]any{
			"success":       true,
			"preview":       true,
			"connection_id": conn.ID,
			"adapter":       conn.Adapter,
			"payload":       push.BuildPayload(record.NormalizedData, fm),
		})
		return
	}

	job, err := h.engine.Dispatch(ctx, record, conn, fm, claims.UserID)
	if err != nil {
		status := http.StatusBadGateway
		if job == nil {
			status = http.StatusInternalServerError
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"job":     job,
			"error":   err.Error(),
		})
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"job":     job,
	})
}

// GetJob returns one push job with its raw request and response payloads
// for audit. The job is only visible when its record belongs to the
// caller's organization.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
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

	jobID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := db.GetPushJob(ctx, jobID)
	if errors.Is(err, db.ErrNoDatabase) {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}
	if err != nil {
		h.sendError(w, http.StatusNotFound, "job not found")
		return
	}

	// Scope through the owning record
	if _, err := db.GetRecord(ctx, orgID, job.RecordID); err != nil {
		h.sendError(w, http.StatusNotFound, "job not found")
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"job":     job,
	})
}

// ListRecordJobs returns a record's push history
func (h *Handler) ListRecordJobs(w http.ResponseWriter, r *http.Request) {
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

	recordID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	// Scope check before listing
	if _, err := db.GetRecord(ctx, orgID, recordID); err != nil {
		h.sendError(w, http.StatusNotFound, "record not found")
		return
	}

	jobs, err := db.ListPushJobsByRecord(ctx, recordID)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list jobs: %v", err))
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"jobs":    jobs,
		"count":   len(jobs),
	})
}
