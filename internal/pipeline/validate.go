package pipeline

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

// tolerance within which the printed total and the expected total are
// considered equal. Covers rounding on the receipt itself.
var totalTolerance = decimal.NewFromFloat(0.02)

const (
	// RuleTaxAdded expects total = subtotal + TPS + TVQ
	RuleTaxAdded = "tax_added"
	// RuleTaxIncluded expects total = subtotal (taxes already inside)
	RuleTaxIncluded = "tax_included"
)

// inclusionPhrases mark receipts whose subtotal already contains the
// Quebec sales taxes.
var inclusionPhrases = []string{
	"tps incluse",
	"taxes incluses",
	"tvq incluse",
}

// ValidateTotals reconciles a receipt's printed total against its parts.
// Non-receipt documents have no reliable tax structure and return nil.
// A mismatch lowers confidence; it is never an error.
func ValidateTotals(data map[string]any, docType models.DocType, text string) *models.TaxValidation {
	if docType != models.DocTypeReceipt {
		return nil
	}

	rule := RuleTaxAdded
	lower := strings.ToLower(text)
	for _, phrase := range inclusionPhrases {
		if strings.Contains(lower, phrase) {
			rule = RuleTaxIncluded
			break
		}
	}

	subtotal := amountOf(data, "subtotal")
	tps := amountOf(data, "tps")
	tvq := amountOf(data, "tvq")
	total := amountOf(data, "total")

	var expected decimal.Decimal
	if rule == RuleTaxIncluded {
		expected = total
	} else {
		expected = subtotal.Add(tps).Add(tvq)
	}

	diff := total.Sub(expected).Abs()
	valid := diff.LessThan(totalTolerance)

	confidence := 0.4
	switch {
	case valid:
		confidence = 0.95
	case diff.LessThan(decimal.NewFromFloat(0.5)):
		confidence = 0.7
	}

	return &models.TaxValidation{
		Valid:      valid,
		Rule:       rule,
		Confidence: confidence,
	}
}

// amountOf reads a monetary field as a decimal, treating anything absent
// or unparseable as zero.
func amountOf(data map[string]any, field string) decimal.Decimal {
	v, ok := data[field]
	if !ok || v == nil {
		return decimal.Zero
	}
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val)
	case int:
		return decimal.NewFromInt(int64(val))
	case string:
		d, err := decimal.NewFromString(strings.ReplaceAll(val, ",", "."))
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}
