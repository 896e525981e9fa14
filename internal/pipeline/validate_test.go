package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

func TestValidateTotalsTaxAdded(t *testing.T) {
	data := map[string]any{
		"subtotal": 43.49,
		"tps":      2.17,
		"tvq":      4.34,
		"total":    50.00,
	}

	result := ValidateTotals(data, models.DocTypeReceipt, "MERCHANT\nTOTAL 50.00")
	require.NotNil(t, result)

	assert.True(t, result.Valid)
	assert.Equal(t, RuleTaxAdded, result.Rule)
	assert.Equal(t, 0.95, result.Confidence)
}

func TestValidateTotalsTaxIncluded(t *testing.T) {
	data := map[string]any{
		"subtotal": 50.00,
		"total":    50.00,
	}

	result := ValidateTotals(data, models.DocTypeReceipt, "Dépanneur\ntaxes incluses\nTOTAL 50.00")
	require.NotNil(t, result)

	assert.True(t, result.Valid)
	assert.Equal(t, RuleTaxIncluded, result.Rule)
}

func TestValidateTotalsSmallMismatch(t *testing.T) {
	data := map[string]any{
		"subtotal": 43.49,
		"tps":      2.17,
		"tvq":      4.34,
		"total":    50.30,
	}

	result := ValidateTotals(data, models.DocTypeReceipt, "receipt text")
	require.NotNil(t, result)

	assert.False(t, result.Valid)
	assert.Equal(t, 0.7, result.Confidence)
}

func TestValidateTotalsLargeMismatch(t *testing.T) {
	data := map[string]any{
		"subtotal": 43.49,
		"tps":      2.17,
		"tvq":      4.34,
		"total":    60.00,
	}

	result := ValidateTotals(data, models.DocTypeReceipt, "receipt text")
	require.NotNil(t, result)

	assert.False(t, result.Valid)
	assert.Equal(t, 0.4, result.Confidence)
}

func TestValidateTotalsMissingPartsTreatedAsZero(t *testing.T) {
	data := map[string]any{
		"total": 50.00,
	}

	result := ValidateTotals(data, models.DocTypeReceipt, "receipt text")
	require.NotNil(t, result)

	// expected = 0 + 0 + 0, printed 50.00
	assert.False(t, result.Valid)
}

func TestValidateTotalsNilForInvoices(t *testing.T) {
	data := map[string]any{"total": 100.0, "subtotal": 100.0}

	assert.Nil(t, ValidateTotals(data, models.DocTypeInvoice, "invoice text"))
}

func TestScore(t *testing.T) {
	sch := receiptSchema(t)

	// every required field present and totals reconcile
	full := map[string]any{"merchant_name": "Metro", "total": 50.0}
	valid := &models.TaxValidation{Valid: true, Rule: RuleTaxAdded, Confidence: 0.95}
	assert.InDelta(t, 1.0, Score(full, sch, valid), 1e-9)

	// half the required fields, no validation
	half := map[string]any{"merchant_name": "Metro"}
	assert.InDelta(t, 0.65, Score(half, sch, nil), 1e-9)

	// nothing extracted
	assert.InDelta(t, 0.5, Score(map[string]any{}, sch, nil), 1e-9)

	// invalid totals contribute nothing
	invalid := &models.TaxValidation{Valid: false, Rule: RuleTaxAdded, Confidence: 0.4}
	assert.InDelta(t, 0.8, Score(full, sch, invalid), 1e-9)
}
