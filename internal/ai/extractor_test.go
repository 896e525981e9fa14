package ai

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parseledger/document-pipeline-service/internal/models"
	"github.com/parseledger/document-pipeline-service/internal/schema"
)

type stubProvider struct {
	data       map[string]any
	err        error
	lastSystem string
	lastUser   string
	lastSchema map[string]any
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) ExtractStructured(ctx context.Context, systemPrompt, userPrompt string, sch map[string]any) (map[string]any, error) {
	s.lastSystem = systemPrompt
	s.lastUser = userPrompt
	s.lastSchema = sch
	return s.data, s.err
}

func receiptSchema(t *testing.T) *schema.DocSchema {
	t.Helper()
	sch, err := schema.ForType(models.DocTypeReceipt)
	require.NoError(t, err)
	return sch
}

func TestExtract(t *testing.T) {
	provider := &stubProvider{
		data: map[string]any{"merchant_name": "METRO", "total": "50,00"},
	}
	extractor := NewExtractor(provider)

	data, err := extractor.Extract(context.Background(), "METRO\nTOTAL 50,00", receiptSchema(t))
	require.NoError(t, err)

	assert.Equal(t, "METRO", data["merchant_name"])
	assert.Contains(t, provider.lastSystem, "receipt")
	assert.Contains(t, provider.lastUser, "TOTAL 50,00")
	assert.Equal(t, "object", provider.lastSchema["type"])
}

func TestExtractProviderError(t *testing.T) {
	provider := &stubProvider{err: fmt.Errorf("rate limited")}
	extractor := NewExtractor(provider)

	_, err := extractor.Extract(context.Background(), "text", receiptSchema(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestExtractToleratesSchemaViolations(t *testing.T) {
	// Malformed model output is a warning, not an error
	provider := &stubProvider{
		data: map[string]any{"line_items": "not an array"},
	}
	extractor := NewExtractor(provider)

	data, err := extractor.Extract(context.Background(), "text", receiptSchema(t))
	require.NoError(t, err)
	assert.Equal(t, "not an array", data["line_items"])
}

func TestRecoverPromptNamesMissingFields(t *testing.T) {
	provider := &stubProvider{
		data: map[string]any{"total": "50,00"},
	}
	extractor := NewExtractor(provider)

	data, err := extractor.Recover(context.Background(), "METRO\nTOTAL 50,00", receiptSchema(t), []string{"total", "subtotal"})
	require.NoError(t, err)

	assert.Equal(t, "50,00", data["total"])
	assert.Contains(t, provider.lastSystem, "total, subtotal")
	assert.Contains(t, provider.lastSystem, "ONLY these fields")
}

func TestExcerptBoundsInput(t *testing.T) {
	long := strings.Repeat("a", maxExcerptChars+500)

	assert.Len(t, excerpt(long), maxExcerptChars)
	assert.Equal(t, "short", excerpt("short"))
}

func TestExcerptKeepsRunesWhole(t *testing.T) {
	// "é" is two bytes; placing it across the cut point must not leave a
	// dangling continuation byte
	long := strings.Repeat("a", maxExcerptChars-1) + strings.Repeat("é", 300)

	got := excerpt(long)
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, maxExcerptChars-1)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences(`{"a":1}`))
}

func TestParseJSONObject(t *testing.T) {
	data, err := parseJSONObject("```json\n{\"merchant_name\": \"METRO\", \"total\": 50.0}\n```")
	require.NoError(t, err)
	assert.Equal(t, "METRO", data["merchant_name"])
	assert.Equal(t, 50.0, data["total"])

	_, err = parseJSONObject("not json at all")
	assert.Error(t, err)
}
