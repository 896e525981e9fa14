package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/parseledger/document-pipeline-service/internal/classify"
	"github.com/parseledger/document-pipeline-service/internal/models"
	"github.com/parseledger/document-pipeline-service/internal/schema"
)

// recoveryThreshold is the confidence below which a recovery pass runs
const recoveryThreshold = 0.6

// Extraction sources recorded in result metadata
const (
	SourceDocAI        = "docai"
	SourceLLM          = "llm"
	SourceLLMRecovered = "llm_recovered"
)

// DocParser is the document AI service interface
type DocParser interface {
	Available() bool
	Markdown(ctx context.Context, file []byte, mimeType, filename string) (string, error)
	ExtractStructured(ctx context.Context, markdown string, schema map[string]any) (map[string]any, error)
}

// FieldExtractor is the LLM fallback and recovery interface
type FieldExtractor interface {
	Extract(ctx context.Context, markdown string, sch *schema.DocSchema) (map[string]any, error)
	Recover(ctx context.Context, markdown string, sch *schema.DocSchema, missing []string) (map[string]any, error)
}

// FallbackTexter recovers plain text from raw bytes when no parser works
type FallbackTexter func(raw []byte) string

// Processor runs the full extraction pipeline for one document
type Processor struct {
	parser   DocParser
	llm      FieldExtractor
	fallback FallbackTexter
}

// NewProcessor creates a processor. Either engine may be nil; processing
// fails only when neither can extract.
func NewProcessor(parser DocParser, llm FieldExtractor, fallback FallbackTexter) *Processor {
	return &Processor{parser: parser, llm: llm, fallback: fallback}
}

// Outcome is the result of one pipeline run
type Outcome struct {
	DocType           models.DocType
	Markdown          string
	Data              map[string]any
	Confidence        float64
	Validation        *models.TaxValidation
	Source            string
	RecoveryAttempted bool
	RecoveredFields   []string
}

// Process runs classification, extraction, normalization, validation,
// scoring, and at most one recovery pass over a document.
func (p *Processor) Process(ctx context.Context, raw []byte, mimeType, filename string, declared models.DocType) (*Outcome, error) {
	markdown := p.toMarkdown(ctx, raw, mimeType, filename)
	if strings.TrimSpace(markdown) == "" {
		return nil, fmt.Errorf("no text could be recovered from %s", filename)
	}

	docType := declared
	if docType == "" {
		docType = classify.Detect(markdown)
	}

	sch, err := schema.ForType(docType)
	if err != nil {
		return nil, err
	}

	data, source, err := p.extract(ctx, markdown, sch)
	if err != nil {
		return nil, err
	}

	normalized := Normalize(data, sch)
	validation := ValidateTotals(normalized, docType, markdown)
	confidence := Score(normalized, sch, validation)

	outcome := &Outcome{
		DocType:    docType,
		Markdown:   markdown,
		Data:       normalized,
		Confidence: confidence,
		Validation: validation,
		Source:     source,
	}

	p.maybeRecover(ctx, outcome, sch)

	return outcome, nil
}

// toMarkdown renders the document to text, falling back to naive line
// recovery when the document AI service is down or unconfigured.
func (p *Processor) toMarkdown(ctx context.Context, raw []byte, mimeType, filename string) string {
	if p.parser != nil && p.parser.Available() {
		markdown, err := p.parser.Markdown(ctx, raw, mimeType, filename)
		if err == nil {
			return markdown
		}
		fmt.Printf("[Pipeline] document AI parse failed, using fallback text: %v\n", err)
	}
	if p.fallback != nil {
		return p.fallback(raw)
	}
	return ""
}

// extract tries the document AI service first, then the LLM.
func (p *Processor) extract(ctx context.Context, markdown string, sch *schema.DocSchema) (map[string]any, string, error) {
	if p.parser != nil && p.parser.Available() {
		data, err := p.parser.ExtractStructured(ctx, markdown, sch.JSONSchema())
		if err == nil {
			return data, SourceDocAI, nil
		}
		fmt.Printf("[Pipeline] document AI extract failed, trying LLM: %v\n", err)
	}

	if p.llm != nil {
		data, err := p.llm.Extract(ctx, markdown, sch)
		if err != nil {
			return nil, "", fmt.Errorf("extraction failed: %w", err)
		}
		return data, SourceLLM, nil
	}

	return nil, "", fmt.Errorf("no extraction engine available")
}

// maybeRecover runs a single targeted recovery pass when the first pass
// scored low or left required fields empty. Only fields still missing are
// merged, then the document is normalized, validated, and scored again.
func (p *Processor) maybeRecover(ctx context.Context, outcome *Outcome, sch *schema.DocSchema) {
	if p.llm == nil {
		return
	}

	missing := sch.MissingRequired(outcome.Data)
	if outcome.Confidence >= recoveryThreshold && len(missing) == 0 {
		return
	}
	if len(missing) == 0 {
		// Low score with every required field present means the totals
		// do not reconcile; a re-ask cannot fix that.
		return
	}

	outcome.RecoveryAttempted = true

	recovered, err := p.llm.Recover(ctx, outcome.Markdown, sch, missing)
	if err != nil {
		fmt.Printf("[Pipeline] recovery pass failed: %v\n", err)
		return
	}

	var merged []string
	for _, field := range missing {
		v, ok := recovered[field]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		outcome.Data[field] = v
		merged = append(merged, field)
	}
	if len(merged) == 0 {
		return
	}

	outcome.Data = Normalize(outcome.Data, sch)
	outcome.Validation = ValidateTotals(outcome.Data, outcome.DocType, outcome.Markdown)
	outcome.Confidence = Score(outcome.Data, sch, outcome.Validation)
	outcome.Source = SourceLLMRecovered
	outcome.RecoveredFields = merged
}
