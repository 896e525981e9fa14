package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parseledger/document-pipeline-service/internal/models"
	"github.com/parseledger/document-pipeline-service/internal/schema"
)

func receiptSchema(t *testing.T) *schema.DocSchema {
	t.Helper()
	sch, err := schema.ForType(models.DocTypeReceipt)
	require.NoError(t, err)
	return sch
}

func invoiceSchema(t *testing.T) *schema.DocSchema {
	t.Helper()
	sch, err := schema.ForType(models.DocTypeInvoice)
	require.NoError(t, err)
	return sch
}

func TestNormalizeNumbers(t *testing.T) {
	sch := receiptSchema(t)

	out := Normalize(map[string]any{
		"total":    "12,34",
		"subtotal": "1 234,56",
		"tps":      2.17,
		"tvq":      "not a number",
	}, sch)

	assert.Equal(t, 12.34, out["total"])
	assert.Equal(t, 1234.56, out["subtotal"])
	assert.Equal(t, 2.17, out["tps"])
	// unparseable values pass through untouched
	assert.Equal(t, "not a number", out["tvq"])
}

func TestNormalizeDates(t *testing.T) {
	sch := invoiceSchema(t)

	cases := map[string]string{
		"2024-01-31": "2024-01-31",
		"31/01/2024": "2024-01-31",
		"31-01-2024": "2024-01-31",
		"31.01.2024": "2024-01-31",
		"2024/01/31": "2024-01-31",
		"5/3/2024":   "2024-03-05",
		"not a date": "not a date",
		"99/99/99":   "99/99/99",
	}

	for input, want := range cases {
		out := Normalize(map[string]any{"invoice_date": input}, sch)
		assert.Equal(t, want, out["invoice_date"], "input %q", input)
	}
}

func TestNormalizeCurrencyDefaults(t *testing.T) {
	receipt := Normalize(map[string]any{"merchant_name": "Metro"}, receiptSchema(t))
	assert.Equal(t, "CAD", receipt["currency"])

	invoice := Normalize(map[string]any{"vendor_name": "Acme"}, invoiceSchema(t))
	assert.Equal(t, "USD", invoice["currency"])

	explicit := Normalize(map[string]any{"currency": "EUR"}, receiptSchema(t))
	assert.Equal(t, "EUR", explicit["currency"])
}

func TestNormalizeCardRedaction(t *testing.T) {
	sch := receiptSchema(t)

	out := Normalize(map[string]any{"card_last4": "4111 1111 1111 1234"}, sch)
	assert.Equal(t, "****1234", out["card_last4"])

	out = Normalize(map[string]any{"card_last4": "1234"}, sch)
	assert.Equal(t, "****1234", out["card_last4"])
}

func TestNormalizeIsIdempotent(t *testing.T) {
	sch := receiptSchema(t)

	input := map[string]any{
		"merchant_name": "Metro",
		"total":         "50,00",
		"datetime":      "31/01/2024",
		"card_last4":    "4111111111111234",
	}

	once := Normalize(input, sch)
	twice := Normalize(once, sch)

	assert.Equal(t, once, twice)
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	sch := receiptSchema(t)
	input := map[string]any{"total": "12,34"}

	Normalize(input, sch)

	assert.Equal(t, "12,34", input["total"])
}
