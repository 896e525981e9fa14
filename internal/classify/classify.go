// Package classify decides the document type from extracted text.
package classify

import (
	"strings"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

// Detect returns the document type suggested by keywords in the text.
// Matching covers English and French vocabulary since receipts from Quebec
// are a primary input. When nothing matches, receipt is assumed: it is the
// more common upload and its schema is the more forgiving of the two.
func Detect(text string) models.DocType {
	lower := strings.ToLower(text)

	invoiceKeywords := []string{"facture", "invoice", "bill to", "facturé à"}
	for _, kw := range invoiceKeywords {
		if strings.Contains(lower, kw) {
			return models.DocTypeInvoice
		}
	}

	receiptKeywords := []string{"reçu", "recu", "receipt"}
	for _, kw := range receiptKeywords {
		if strings.Contains(lower, kw) {
			return models.DocTypeReceipt
		}
	}

	return models.DocTypeReceipt
}
