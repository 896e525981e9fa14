// Package schema defines the extraction schemas for each supported document
// type and validates structured model output against them.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

// DocSchema describes the expected shape of extracted data for one
// document type.
type DocSchema struct {
	Type            models.DocType
	Required        []string
	NumberFields    []string
	DateFields      []string
	DefaultCurrency string

	properties map[string]any
	compiled   *jsonschema.Schema
}

var receiptSchema = mustBuild(DocSchema{
	Type:            models.DocTypeReceipt,
	Required:        []string{"merchant_name", "total"},
	NumberFields:    []string{"subtotal", "tps", "tvq", "total"},
	DateFields:      []string{"datetime"},
	DefaultCurrency: "CAD",
	properties: map[string]any{
		"merchant_name": map[string]any{"type": []string{"string", "null"}},
		"merchant_address": map[string]any{
			"type": []string{"string", "null"},
		},
		"datetime":   map[string]any{"type": []string{"string", "null"}},
		"subtotal":   map[string]any{"type": []string{"number", "string", "null"}},
		"tps":        map[string]any{"type": []string{"number", "string", "null"}},
		"tvq":        map[string]any{"type": []string{"number", "string", "null"}},
		"total":      map[string]any{"type": []string{"number", "string", "null"}},
		"currency":   map[string]any{"type": []string{"string", "null"}},
		"card_last4": map[string]any{"type": []string{"string", "null"}},
		"payment_method": map[string]any{
			"type": []string{"string", "null"},
		},
		"line_items": map[string]any{
			"type": []string{"array", "null"},
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"description": map[string]any{"type": []string{"string", "null"}},
					"quantity":    map[string]any{"type": []string{"number", "string", "null"}},
					"amount":      map[string]any{"type": []string{"number", "string", "null"}},
				},
			},
		},
		"tax_ids": map[string]any{
			"type": []string{"object", "null"},
			"properties": map[string]any{
				"tps": map[string]any{"type": []string{"string", "null"}},
				"tvq": map[string]any{"type": []string{"string", "null"}},
			},
		},
	},
})

var invoiceSchema = mustBuild(DocSchema{
	Type:            models.DocTypeInvoice,
	Required:        []string{"vendor_name", "invoice_number", "total"},
	NumberFields:    []string{"subtotal", "tax", "total"},
	DateFields:      []string{"invoice_date", "due_date"},
	DefaultCurrency: "USD",
	properties: map[string]any{
		"vendor_name":    map[string]any{"type": []string{"string", "null"}},
		"vendor_address": map[string]any{"type": []string{"string", "null"}},
		"invoice_number": map[string]any{"type": []string{"string", "null"}},
		"invoice_date":   map[string]any{"type": []string{"string", "null"}},
		"due_date":       map[string]any{"type": []string{"string", "null"}},
		"po_number":      map[string]any{"type": []string{"string", "null"}},
		"subtotal":       map[string]any{"type": []string{"number", "string", "null"}},
		"tax":            map[string]any{"type": []string{"number", "string", "null"}},
		"total":          map[string]any{"type": []string{"number", "string", "null"}},
		"currency":       map[string]any{"type": []string{"string", "null"}},
		"line_items": map[string]any{
			"type": []string{"array", "null"},
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"description": map[string]any{"type": []string{"string", "null"}},
					"quantity":    map[string]any{"type": []string{"number", "string", "null"}},
					"unit_price":  map[string]any{"type": []string{"number", "string", "null"}},
					"amount":      map[string]any{"type": []string{"number", "string", "null"}},
				},
			},
		},
	},
})

func mustBuild(s DocSchema) *DocSchema {
	doc, err := json.Marshal(s.jsonSchema())
	if err != nil {
		panic(fmt.Sprintf("marshal %s schema: %v", s.Type, err))
	}
	compiled, err := jsonschema.CompileString(string(s.Type)+".json", string(doc))
	if err != nil {
		panic(fmt.Sprintf("compile %s schema: %v", s.Type, err))
	}
	s.compiled = compiled
	return &s
}

// ForType returns the schema for the given document type.
func ForType(t models.DocType) (*DocSchema, error) {
	switch t {
	case models.DocTypeReceipt:
		return receiptSchema, nil
	case models.DocTypeInvoice:
		return invoiceSchema, nil
	default:
		return nil, fmt.Errorf("no schema for document type %q", t)
	}
}

func (s *DocSchema) jsonSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": s.properties,
	}
}

// JSONSchema returns the schema as a JSON Schema object suitable for
// embedding in a model prompt or a tool definition. The required list is
// deliberately omitted so a partial extraction still parses; required
// fields are enforced through confidence scoring instead.
func (s *DocSchema) JSONSchema() map[string]any {
	return s.jsonSchema()
}

// Validate checks structured model output against the compiled schema.
func (s *DocSchema) Validate(data map[string]any) error {
	// The compiler works on generic JSON values, so round-trip through
	// encoding/json to erase concrete Go types like []string.
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal data for validation: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("unmarshal data for validation: %w", err)
	}
	if err := s.compiled.Validate(generic); err != nil {
		return fmt.Errorf("data does not match %s schema: %w", s.Type, err)
	}
	return nil
}

// MissingRequired returns the required fields that are absent or empty in
// data. A field counts as missing when it is not present, nil, an empty or
// whitespace-only string, or a zero number.
func (s *DocSchema) MissingRequired(data map[string]any) []string {
	var missing []string
	for _, field := range s.Required {
		v, ok := data[field]
		if !ok || v == nil {
			missing = append(missing, field)
			continue
		}
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) == "" {
				missing = append(missing, field)
			}
		case float64:
			if t == 0 {
				missing = append(missing, field)
			}
		}
	}
	return missing
}

// PresentFraction returns the fraction of required fields that are present
// and non-nil in data. Used for confidence scoring, it is looser than
// MissingRequired: an empty string or zero still counts as present.
func (s *DocSchema) PresentFraction(data map[string]any) float64 {
	if len(s.Required) == 0 {
		return 1.0
	}
	present := 0
	for _, field := range s.Required {
		if v, ok := data[field]; ok && v != nil {
			present++
		}
	}
	return float64(present) / float64(len(s.Required))
}
