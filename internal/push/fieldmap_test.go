package push

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

func TestBuildPayloadPassthrough(t *testing.T) {
	data := map[string]any{"merchant_name": "METRO", "total": 50.0}

	out := BuildPayload(data, nil)
	assert.Equal(t, data, out)

	// nil field map must not alias the input
	out["extra"] = true
	assert.NotContains(t, data, "extra")

	// empty map behaves like no map
	assert.Equal(t, data, BuildPayload(data, &models.FieldMap{Map: map[string]string{}}))
}

func TestBuildPayloadProjectsDestinationKeys(t *testing.T) {
	data := map[string]any{
		"merchant_name": "METRO",
		"total":         50.0,
		"currency":      "CAD",
	}
	fm := &models.FieldMap{Map: map[string]string{
		"Vendor": "merchant_name",
		"Amount": "total",
	}}

	out := BuildPayload(data, fm)
	assert.Equal(t, map[string]any{
		"Vendor": "METRO",
		"Amount": 50.0,
	}, out)
}

func TestBuildPayloadUnresolvedPathIsNull(t *testing.T) {
	fm := &models.FieldMap{Map: map[string]string{
		"Vendor": "merchant_name",
		"PO":     "po_number",
	}}

	out := BuildPayload(map[string]any{"merchant_name": "METRO"}, fm)
	assert.Equal(t, "METRO", out["Vendor"])
	v, ok := out["PO"]
	assert.True(t, ok, "unresolved destination key must still be present")
	assert.Nil(t, v)
}

func TestBuildPayloadResolvesNestedPaths(t *testing.T) {
	data := map[string]any{
		"tax_ids": map[string]any{"tps": "123456789 RT0001"},
		"total":   50.0,
	}
	fm := &models.FieldMap{Map: map[string]string{
		"TPSNumber": "tax_ids.tps",
		"Missing":   "tax_ids.tvq",
		"NotAMap":   "total.cents",
	}}

	out := BuildPayload(data, fm)
	assert.Equal(t, "123456789 RT0001", out["TPSNumber"])
	assert.Nil(t, out["Missing"])
	assert.Nil(t, out["NotAMap"])
}
