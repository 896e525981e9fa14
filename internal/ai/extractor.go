package ai

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/parseledger/document-pipeline-service/internal/schema"
)

// maxExcerptChars bounds how much document text is sent to the model.
// Receipts and invoices carry their fields near the top, so truncation is
// safe and keeps token usage predictable.
const maxExcerptChars = 4000

// Extractor handles AI-based data extraction from document text
type Extractor struct {
	provider Provider
}

// NewExtractor creates a new AI extractor
func NewExtractor(provider Provider) *Extractor {
	return &Extractor{provider: provider}
}

// Provider returns the underlying AI provider
func (e *Extractor) Provider() Provider {
	return e.provider
}

// Extract asks the model for all schema fields of the document.
func (e *Extractor) Extract(ctx context.Context, markdown string, sch *schema.DocSchema) (map[string]any, error) {
	system := fmt.Sprintf(
		"You are a document data extraction engine. Extract the fields of a %s from the text the user provides. "+
			"Documents may be in English or French. "+
			"Use null for any field you cannot read. Never invent values. "+
			"Return amounts as they appear, including the original decimal separator.",
		sch.Type)

	user := fmt.Sprintf("Document text:\n\n%s", excerpt(markdown))

	data, err := e.provider.ExtractStructured(ctx, system, user, sch.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("AI extraction failed: %w", err)
	}

	// Malformed output is logged, not fatal: downstream normalization and
	// confidence scoring handle partial data.
	if err := sch.Validate(data); err != nil {
		fmt.Printf("[Extract] schema validation warning: %v\n", err)
	}

	return data, nil
}

// Recover re-prompts the model for specific fields that a first pass left
// missing. The narrow prompt gives the model a second chance to find
// values it skipped over.
func (e *Extractor) Recover(ctx context.Context, markdown string, sch *schema.DocSchema, missing []string) (map[string]any, error) {
	system := fmt.Sprintf(
		"You are a document data extraction engine. A first pass over this %s failed to find some fields. "+
			"Search the text again, carefully, for ONLY these fields: %s. "+
			"Documents may be in English or French. Use null for anything you still cannot find. Never invent values.",
		sch.Type, strings.Join(missing, ", "))

	user := fmt.Sprintf("Document text:\n\n%s", excerpt(markdown))

	data, err := e.provider.ExtractStructured(ctx, system, user, sch.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("AI recovery failed: %w", err)
	}
	return data, nil
}

// excerpt truncates without splitting a multi-byte rune at the cut.
func excerpt(s string) string {
	if len(s) <= maxExcerptChars {
		return s
	}
	cut := maxExcerptChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// stripCodeFences removes markdown code block wrappers some models add
// around JSON output.
func stripCodeFences(s string) string {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}
