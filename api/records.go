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

// ListRecords returns the organization's records, optionally filtered by
// ?status=pending_review|approved|rejected.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
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

	status := models.RecordStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.RecordStatusPendingReview, models.RecordStatusApproved, models.RecordStatusRejected:
	default:
		h.sendError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
		return
	}

	records, err := db.ListRecords(ctx, orgID, status, 100)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list records: %v", err))
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"records": records,
		"count":   len(records),
	})
}

// GetRecord returns one record
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
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

	record, err := db.GetRecord(ctx, orgID, recordID)
	if err != nil {
		h.sendError(w, http.StatusNotFound, "record not found")
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"record":  record,
	})
}

// ReviewRequest is the body of a review decision
type ReviewRequest struct {
	Decision models.RecordStatus `json:"decision"`
}

// ReviewRecord applies an approve or reject decision to a pending record
func (h *Handler) ReviewRecord(w http.ResponseWriter, r *http.Request) {
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

	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Decision != models.RecordStatusApproved && req.Decision != models.RecordStatusRejected {
		h.sendError(w, http.StatusBadRequest, "decision must be approved or rejected")
		return
	}

	record, err := db.GetRecord(ctx, orgID, recordID)
	if err != nil {
		h.sendError(w, http.StatusNotFound, "record not found")
		return
	}
	if record.Status != models.RecordStatusPendingReview {
		h.sendError(w, http.StatusConflict, fmt.Sprintf("record is %s, only pending_review records can be reviewed", record.Status))
		return
	}

	if err := db.UpdateRecordStatus(ctx, recordID, req.Decision, claims.UserID); err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to update record")
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"status":  req.Decision,
	})
}
