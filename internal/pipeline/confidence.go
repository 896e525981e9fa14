package pipeline

import (
	"github.com/parseledger/document-pipeline-service/internal/models"
	"github.com/parseledger/document-pipeline-service/internal/schema"
)

// Score computes the extraction confidence.
//
// Score breakdown (max 1.0):
//
//	Base              — 0.50: an extraction ran at all
//	Required fields   — 0.30 × fraction of required fields present
//	Total reconciles  — 0.20: receipt totals validated
func Score(data map[string]any, sch *schema.DocSchema, validation *models.TaxValidation) float64 {
	score := 0.5

	score += 0.3 * sch.PresentFraction(data)

	if validation != nil && validation.Valid {
		score += 0.2
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
