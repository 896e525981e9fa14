package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parseledger/document-pipeline-service/internal/models"
	"github.com/parseledger/document-pipeline-service/internal/schema"
)

type stubParser struct {
	markdown   string
	data       map[string]any
	parseErr   error
	extractErr error
}

func (s *stubParser) Available() bool { return true }

func (s *stubParser) Markdown(ctx context.Context, file []byte, mimeType, filename string) (string, error) {
	return s.markdown, s.parseErr
}

func (s *stubParser) ExtractStructured(ctx context.Context, markdown string, sch map[string]any) (map[string]any, error) {
	if s.extractErr != nil {
		return nil, s.extractErr
	}
	return s.data, nil
}

type stubLLM struct {
	extracted    map[string]any
	recovered    map[string]any
	extractCalls int
	recoverCalls int
	recoverAsked []string
}

func (s *stubLLM) Extract(ctx context.Context, markdown string, sch *schema.DocSchema) (map[string]any, error) {
	s.extractCalls++
	return s.extracted, nil
}

func (s *stubLLM) Recover(ctx context.Context, markdown string, sch *schema.DocSchema, missing []string) (map[string]any, error) {
	s.recoverCalls++
	s.recoverAsked = missing
	return s.recovered, nil
}

func TestProcessHappyPathDocAI(t *testing.T) {
	parser := &stubParser{
		markdown: "METRO\nSous-total 43,49\nTPS 2,17\nTVQ 4,34\nTOTAL 50,00",
		data: map[string]any{
			"merchant_name": "METRO",
			"subtotal":      "43,49",
			"tps":           "2,17",
			"tvq":           "4,34",
			"total":         "50,00",
		},
	}
	llm := &stubLLM{}
	p := NewProcessor(parser, llm, nil)

	outcome, err := p.Process(context.Background(), []byte("raw"), "image/jpeg", "receipt.jpg", "")
	require.NoError(t, err)

	assert.Equal(t, models.DocTypeReceipt, outcome.DocType)
	assert.Equal(t, SourceDocAI, outcome.Source)
	assert.Equal(t, 50.0, outcome.Data["total"])
	assert.Equal(t, "CAD", outcome.Data["currency"])
	require.NotNil(t, outcome.Validation)
	assert.True(t, outcome.Validation.Valid)
	assert.InDelta(t, 1.0, outcome.Confidence, 1e-9)
	assert.False(t, outcome.RecoveryAttempted)
	assert.Zero(t, llm.extractCalls)
}

func TestProcessFallsBackToLLM(t *testing.T) {
	parser := &stubParser{
		markdown:   "FACTURE\nInvoice #42\nTotal 100.00",
		extractErr: fmt.Errorf("docai down"),
	}
	llm := &stubLLM{
		extracted: map[string]any{
			"vendor_name":    "Acme",
			"invoice_number": "42",
			"total":          100.0,
		},
	}
	p := NewProcessor(parser, llm, nil)

	outcome, err := p.Process(context.Background(), []byte("raw"), "application/pdf", "invoice.pdf", "")
	require.NoError(t, err)

	assert.Equal(t, models.DocTypeInvoice, outcome.DocType)
	assert.Equal(t, SourceLLM, outcome.Source)
	assert.Equal(t, 1, llm.extractCalls)
	assert.Nil(t, outcome.Validation)
	assert.Equal(t, "USD", outcome.Data["currency"])
}

func TestProcessDeclaredTypeSkipsClassification(t *testing.T) {
	parser := &stubParser{
		markdown: "FACTURE fiscale",
		data:     map[string]any{"merchant_name": "Metro", "total": 10.0},
	}
	p := NewProcessor(parser, nil, nil)

	outcome, err := p.Process(context.Background(), []byte("raw"), "image/jpeg", "f.jpg", models.DocTypeReceipt)
	require.NoError(t, err)

	assert.Equal(t, models.DocTypeReceipt, outcome.DocType)
}

func TestProcessRecoversMissingRequiredOnce(t *testing.T) {
	parser := &stubParser{
		markdown: "METRO\nTOTAL 50,00",
		data: map[string]any{
			"merchant_name": "METRO",
			// total missing
		},
	}
	llm := &stubLLM{
		recovered: map[string]any{
			"merchant_name": "WRONG NAME", // not missing, must not be merged
			"total":         "50,00",
		},
	}
	p := NewProcessor(parser, llm, nil)

	outcome, err := p.Process(context.Background(), []byte("raw"), "image/jpeg", "r.jpg", models.DocTypeReceipt)
	require.NoError(t, err)

	assert.True(t, outcome.RecoveryAttempted)
	assert.Equal(t, 1, llm.recoverCalls)
	assert.Equal(t, []string{"total"}, llm.recoverAsked)
	assert.Equal(t, []string{"total"}, outcome.RecoveredFields)
	assert.Equal(t, SourceLLMRecovered, outcome.Source)

	// only the missing field merged, then re-normalized
	assert.Equal(t, "METRO", outcome.Data["merchant_name"])
	assert.Equal(t, 50.0, outcome.Data["total"])
}

func TestProcessRecoveryEmptyValuesNotMerged(t *testing.T) {
	parser := &stubParser{
		markdown: "store receipt",
		data:     map[string]any{"merchant_name": "Metro"},
	}
	llm := &stubLLM{
		recovered: map[string]any{"total": nil},
	}
	p := NewProcessor(parser, llm, nil)

	outcome, err := p.Process(context.Background(), []byte("raw"), "image/jpeg", "r.jpg", models.DocTypeReceipt)
	require.NoError(t, err)

	assert.True(t, outcome.RecoveryAttempted)
	assert.Empty(t, outcome.RecoveredFields)
	assert.NotContains(t, outcome.Data, "total")
	// source unchanged when nothing merged
	assert.Equal(t, SourceDocAI, outcome.Source)
}

func TestProcessUsesFallbackText(t *testing.T) {
	llm := &stubLLM{
		extracted: map[string]any{"merchant_name": "Metro", "total": 10.0},
	}
	fallback := func(raw []byte) string { return "receipt for Metro" }
	p := NewProcessor(nil, llm, fallback)

	outcome, err := p.Process(context.Background(), []byte{0x00, 0x01}, "application/octet-stream", "blob", "")
	require.NoError(t, err)

	assert.Equal(t, SourceLLM, outcome.Source)
	assert.Equal(t, "receipt for Metro", outcome.Markdown)
}

func TestProcessNoEnginesFails(t *testing.T) {
	fallback := func(raw []byte) string { return "some text" }
	p := NewProcessor(nil, nil, fallback)

	_, err := p.Process(context.Background(), []byte("raw"), "text/plain", "t.txt", "")
	assert.Error(t, err)
}

func TestProcessNoTextFails(t *testing.T) {
	p := NewProcessor(nil, &stubLLM{}, func(raw []byte) string { return "  " })

	_, err := p.Process(context.Background(), []byte{0x00}, "application/octet-stream", "blob", "")
	assert.Error(t, err)
}
