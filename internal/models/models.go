package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocType identifies one of the supported document schemas.
type DocType string

const (
	DocTypeReceipt DocType = "receipt"
	DocTypeInvoice DocType = "invoice"
)

// DocStatus is the lifecycle status of an uploaded document.
type DocStatus string

const (
	DocStatusUploaded DocStatus = "uploaded"
	DocStatusParsing  DocStatus = "parsing"
	DocStatusReady    DocStatus = "ready"
	DocStatusPushed   DocStatus = "pushed"
	DocStatusError    DocStatus = "error"
)

// RecordStatus is the review status of an extracted record.
type RecordStatus string

const (
	RecordStatusPendingReview RecordStatus = "pending_review"
	RecordStatusApproved      RecordStatus = "approved"
	RecordStatusRejected      RecordStatus = "rejected"
)

// JobStatus is the status of a push job. Success and failed are terminal.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
)

// ConnectionStatus is the health status of a destination connection.
type ConnectionStatus string

const (
	ConnectionStatusActive       ConnectionStatus = "active"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
	ConnectionStatusError        ConnectionStatus = "error"
)

// AdapterKind identifies the dispatch strategy of a connection.
// Kinds without a live integration (quickbooks, xero, netsuite) dispatch
// through the mock ERP adapter.
type AdapterKind string

const (
	AdapterWebhook    AdapterKind = "webhook"
	AdapterCSV        AdapterKind = "csv"
	AdapterNetSuite   AdapterKind = "netsuite"
	AdapterQuickBooks AdapterKind = "quickbooks"
	AdapterXero       AdapterKind = "xero"
)

// Document represents one uploaded file owned by an organization.
type Document struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	Filename       string     `json:"filename"`
	StoragePath    string     `json:"storage_path"`
	MimeType       string     `json:"mime_type"`
	DocType        DocType    `json:"doc_type,omitempty"`
	Status         DocStatus  `json:"status"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// ExtractionMetadata is the audit trail of one extraction pass.
type ExtractionMetadata struct {
	ParsedAt          time.Time `json:"parsed_at"`
	DocType           DocType   `json:"doc_type"`
	TaxRule           string    `json:"tax_rule,omitempty"`
	Source            string    `json:"source"`
	RecoveryAttempted bool      `json:"recovery_attempted"`
	RecoveredFields   []string  `json:"recovered_fields"`
}

// ExtractionResult holds the structured output of the extraction pipeline.
// At most one exists per document; reruns upsert in place.
type ExtractionResult struct {
	ID         uuid.UUID          `json:"id"`
	DocumentID uuid.UUID          `json:"document_id"`
	Markdown   string             `json:"markdown,omitempty"`
	Data       map[string]any     `json:"data"`
	Confidence float64            `json:"confidence"`
	Metadata   ExtractionMetadata `json:"metadata"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  *time.Time         `json:"updated_at,omitempty"`
}

// TaxValidation is the outcome of total reconciliation for a receipt.
// A mismatch is recorded here, never raised as an error.
type TaxValidation struct {
	Valid      bool    `json:"valid"`
	Rule       string  `json:"rule"`
	Confidence float64 `json:"confidence"`
}

// Record is the reviewable unit derived from a document. At most one exists
// per document; reruns upsert in place.
type Record struct {
	ID               uuid.UUID      `json:"id"`
	DocumentID       uuid.UUID      `json:"document_id"`
	OrganizationID   uuid.UUID      `json:"organization_id"`
	RecordType       DocType        `json:"record_type"`
	Status           RecordStatus   `json:"status"`
	NormalizedData   map[string]any `json:"normalized_data"`
	ValidationResult *TaxValidation `json:"validation_result,omitempty"`
	ReviewedBy       *string        `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time     `json:"reviewed_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        *time.Time     `json:"updated_at,omitempty"`
}

// Connection is a named destination configuration. At most one connection
// per organization may be the default at a time.
type Connection struct {
	ID             uuid.UUID        `json:"id"`
	OrganizationID uuid.UUID        `json:"organization_id"`
	Adapter        AdapterKind      `json:"adapter"`
	DisplayName    string           `json:"display_name"`
	Status         ConnectionStatus `json:"status"`
	IsDefault      bool             `json:"is_default"`
	Meta           json.RawMessage  `json:"meta,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      *time.Time       `json:"updated_at,omitempty"`
}

// WebhookMeta configures a webhook connection.
type WebhookMeta struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

// CSVMeta configures a CSV materialization connection.
type CSVMeta struct {
	Format           string `json:"format,omitempty"`
	Delimiter        string `json:"delimiter,omitempty"`
	DecimalSeparator string `json:"decimalSeparator,omitempty"`
}

// TokenMeta configures a token-based ERP connection (netsuite style).
type TokenMeta struct {
	AccountID      string `json:"accountId"`
	ConsumerKey    string `json:"consumerKey,omitempty"`
	ConsumerSecret string `json:"consumerSecret,omitempty"`
	TokenKey       string `json:"tokenKey,omitempty"`
	TokenSecret    string `json:"tokenSecret,omitempty"`
}

// DecodeMeta parses a connection's metadata blob into the variant for its
// adapter kind. The switch is exhaustive over AdapterKind so a new kind
// cannot be added without deciding its configuration shape.
func (c *Connection) DecodeMeta() (any, error) {
	raw := c.Meta
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	switch c.Adapter {
	case AdapterWebhook:
		var m WebhookMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode webhook meta: %w", err)
		}
		return &m, nil
	case AdapterCSV:
		var m CSVMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode csv meta: %w", err)
		}
		return &m, nil
	case AdapterNetSuite, AdapterQuickBooks, AdapterXero:
		var m TokenMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode token meta: %w", err)
		}
		return &m, nil
	default:
		return nil, fmt.Errorf("unknown adapter kind: %s", c.Adapter)
	}
}

// FieldMap projects normalized record data onto a destination payload.
// ConnectionID is nil for organization-wide maps; a map scoped to a
// connection takes precedence for the same (organization, doc type) pair.
type FieldMap struct {
	ID             uuid.UUID         `json:"id"`
	OrganizationID uuid.UUID         `json:"organization_id"`
	DocType        DocType           `json:"doc_type"`
	ConnectionID   *uuid.UUID        `json:"connection_id,omitempty"`
	Map            map[string]string `json:"map"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      *time.Time        `json:"updated_at,omitempty"`
}

// PushJob is one dispatch attempt of a record against a connection.
// Once success or failed, only audit fields may change.
type PushJob struct {
	ID              uuid.UUID       `json:"id"`
	RecordID        uuid.UUID       `json:"record_id"`
	ConnectionID    uuid.UUID       `json:"connection_id"`
	Status          JobStatus       `json:"status"`
	RequestPayload  map[string]any  `json:"request_payload"`
	ResponsePayload json.RawMessage `json:"response_payload,omitempty"`
	ErrorMessage    *string         `json:"error_message,omitempty"`
	RetryCount      int             `json:"retry_count"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}
