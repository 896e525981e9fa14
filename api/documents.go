package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/parseledger/document-pipeline-service/internal/auth"
	"github.com/parseledger/document-pipeline-service/internal/db"
	"github.com/parseledger/document-pipeline-service/internal/models"
	"github.com/parseledger/document-pipeline-service/internal/storage"
)

// UploadDocument accepts a file, stores it, and runs the extraction
// pipeline. The response carries the document, its extraction result, and
// the review record.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()

	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized: "+err.Error())
		return
	}
	orgID, err := uuid.Parse(claims.OrgID)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "invalid organization in token")
		return
	}

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		h.sendError(w, http.StatusBadRequest, "File too large or invalid form data")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "No file provided (use 'file' field)")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}

	// Optional declared type skips classification
	declared := models.DocType(r.FormValue("doc_type"))
	if declared != "" && declared != models.DocTypeReceipt && declared != models.DocTypeInvoice {
		h.sendError(w, http.StatusBadRequest, fmt.Sprintf("unknown doc_type %q", declared))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	storedName := fmt.Sprintf("%s_%s%s",
		time.Now().Format("20060102_150405"),
		uuid.New().String()[:8],
		storage.GetFileExtension(contentType),
	)

	var storagePath string
	if storage.Client != nil {
		storagePath, err = storage.UploadDocument(ctx, claims.OrgID, storedName,
			bytes.NewReader(raw), int64(len(raw)), contentType)
		if err != nil {
			// Log but don't fail - the original bytes are still in hand
			fmt.Printf("Warning: failed to upload document to MinIO: %v\n", err)
			storagePath = ""
		}
	}

	doc := &models.Document{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Filename:       header.Filename,
		StoragePath:    storagePath,
		MimeType:       contentType,
		DocType:        declared,
		Status:         models.DocStatusUploaded,
	}
	if err := db.CreateDocument(ctx, doc); err != nil {
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create document: %v", err))
		return
	}

	extraction, record, err := h.runPipeline(ctx, doc, raw, declared)
	if err != nil {
		json.NewEncoder(w).Encode(map[string]any{
			"success":  false,
			"document": doc,
			"error":    err.Error(),
		})
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success":    true,
		"document":   doc,
		"extraction": extraction,
		"record":     record,
	})
}

// runPipeline processes raw bytes for a document and persists the
// extraction result and record. Document status moves parsing to ready, or
// to error with the failure message.
func (h *Handler) runPipeline(ctx context.Context, doc *models.Document, raw []byte, declared models.DocType) (*models.ExtractionResult, *models.Record, error) {
	if err := db.SetDocumentStatus(ctx, doc.ID, models.DocStatusParsing); err != nil {
		return nil, nil, fmt.Errorf("failed to mark document parsing: %w", err)
	}
	doc.Status = models.DocStatusParsing

	outcome, err := h.processor.Process(ctx, raw, doc.MimeType, doc.Filename, declared)
	if err != nil {
		if dbErr := db.SetDocumentError(ctx, doc.ID, err.Error()); dbErr != nil {
			fmt.Printf("Warning: failed to record document error: %v\n", dbErr)
		}
		doc.Status = models.DocStatusError
		msg := err.Error()
		doc.ErrorMessage = &msg
		return nil, nil, err
	}

	extraction := &models.ExtractionResult{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		Markdown:   outcome.Markdown,
		Data:       outcome.Data,
		Confidence: outcome.Confidence,
		Metadata: models.ExtractionMetadata{
			ParsedAt:          time.Now().UTC(),
			DocType:           outcome.DocType,
			Source:            outcome.Source,
			RecoveryAttempted: outcome.RecoveryAttempted,
			RecoveredFields:   outcome.RecoveredFields,
		},
	}
	if outcome.Validation != nil {
		extraction.Metadata.TaxRule = outcome.Validation.Rule
	}
	if err := db.UpsertExtraction(ctx, extraction); err != nil {
		return nil, nil, fmt.Errorf("failed to save extraction: %w", err)
	}

	record := &models.Record{
		ID:               uuid.New(),
		DocumentID:       doc.ID,
		OrganizationID:   doc.OrganizationID,
		RecordType:       outcome.DocType,
		Status:           models.RecordStatusPendingReview,
		NormalizedData:   outcome.Data,
		ValidationResult: outcome.Validation,
	}
	if err := db.UpsertRecord(ctx, record); err != nil {
		return nil, nil, fmt.Errorf("failed to save record: %w", err)
	}

	if err := db.SetDocumentType(ctx, doc.ID, outcome.DocType); err != nil {
		fmt.Printf("Warning: failed to record document type: %v\n", err)
	}
	if err := db.SetDocumentStatus(ctx, doc.ID, models.DocStatusReady); err != nil {
		return nil, nil, fmt.Errorf("failed to mark document ready: %w", err)
	}
	doc.DocType = outcome.DocType
	doc.Status = models.DocStatusReady

	return extraction, record, nil
}

// ListDocuments returns the organization's documents
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
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

	docs, err := db.ListDocuments(ctx, orgID, 100)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list documents: %v", err))
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success":   true,
		"documents": docs,
		"count":     len(docs),
	})
}

// GetDocument returns one document with its extraction, record, and a
// presigned URL for the original file.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
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

	docID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := db.GetDocument(ctx, orgID, docID)
	if err != nil {
		h.sendError(w, http.StatusNotFound, "document not found")
		return
	}

	response := map[string]any{
		"success":  true,
		"document": doc,
	}

	if extraction, err := db.GetExtractionByDocument(ctx, docID); err == nil {
		response["extraction"] = extraction
	}
	if record, err := db.GetRecordByDocument(ctx, docID); err == nil {
		response["record"] = record
	}
	if doc.StoragePath != "" && storage.Client != nil {
		if url, err := storage.GetPresignedURL(ctx, doc.StoragePath); err == nil {
			response["file_url"] = url
		}
	}

	json.NewEncoder(w).Encode(response)
}

// ReprocessDocument reruns the pipeline over the stored original. The
// extraction result and record are replaced in place; review state resets
// to pending.
func (h *Handler) ReprocessDocument(w http.ResponseWriter, r *http.Request) {
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

	docID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := db.GetDocument(ctx, orgID, docID)
	if err != nil {
		h.sendError(w, http.StatusNotFound, "document not found")
		return
	}
	if doc.StoragePath == "" || storage.Client == nil {
		h.sendError(w, http.StatusConflict, "original file not available for reprocessing")
		return
	}

	raw, err := storage.DownloadDocument(ctx, doc.StoragePath)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("failed to fetch original: %v", err))
		return
	}

	extraction, record, err := h.runPipeline(ctx, doc, raw, doc.DocType)
	if err != nil {
		json.NewEncoder(w).Encode(map[string]any{
			"success":  false,
			"document": doc,
			"error":    err.Error(),
		})
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success":    true,
		"document":   doc,
		"extraction": extraction,
		"record":     record,
	})
}
