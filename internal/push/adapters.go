package push

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

// Sign computes the hex HMAC-SHA256 signature of a webhook body.
// Receivers recompute it with the shared secret to authenticate the push.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// executeWebhook POSTs the payload as JSON. When the connection has a
// secret, the request carries an X-Signature header over the exact bytes
// sent. Any non-2xx status is a hard failure.
func (e *Engine) executeWebhook(ctx context.Context, meta *models.WebhookMeta, payload map[string]any) (json.RawMessage, error) {
	if meta.URL == "" {
		return nil, fmt.Errorf("webhook connection has no url")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, meta.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if meta.Secret != "" {
		req.Header.Set("X-Signature", Sign(body, meta.Secret))
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("webhook returned %d: %s", resp.StatusCode, respBody)
	}

	result, err := json.Marshal(map[string]any{
		"status": resp.StatusCode,
		"body":   string(respBody),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal webhook response: %w", err)
	}
	return result, nil
}

// executeCSV materializes the payload as a two-line CSV: header row of
// sorted field names, then one row of values. Delimiter and decimal
// separator come from the connection meta, defaulting to "," and ".".
func (e *Engine) executeCSV(ctx context.Context, meta *models.CSVMeta, payload map[string]any) (json.RawMessage, error) {
	delimiter := meta.Delimiter
	if delimiter == "" {
		delimiter = ","
	}
	decimalSep := meta.DecimalSeparator
	if decimalSep == "" {
		decimalSep = "."
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = csvCell(payload[k], delimiter, decimalSep)
	}

	content := strings.Join(keys, delimiter) + "\n" + strings.Join(values, delimiter) + "\n"
	filename := fmt.Sprintf("record_%d.csv", time.Now().Unix())

	response := map[string]any{
		"filename": filename,
		"content":  content,
	}

	if e.files != nil {
		path, err := e.files.UploadExport(ctx, filename, []byte(content))
		if err != nil {
			return nil, fmt.Errorf("store csv export: %w", err)
		}
		response["storage_path"] = path
	}

	result, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("marshal csv response: %w", err)
	}
	return result, nil
}

// csvCell renders one value. Numbers get the configured decimal
// separator; cells containing the delimiter, quotes, or newlines are
// quoted.
func csvCell(v any, delimiter, decimalSep string) string {
	var s string
	switch val := v.(type) {
	case nil:
		s = ""
	case float64:
		s = decimal.NewFromFloat(val).String()
		if decimalSep != "." {
			s = strings.Replace(s, ".", decimalSep, 1)
		}
	case string:
		s = val
	case bool:
		s = fmt.Sprintf("%t", val)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			s = fmt.Sprintf("%v", val)
		} else {
			s = string(raw)
		}
	}

	if strings.Contains(s, delimiter) || strings.Contains(s, "\"") || strings.Contains(s, "\n") {
		s = "\"" + strings.ReplaceAll(s, "\"", "\"\"") + "\""
	}
	return s
}

// executeMockERP stands in for ERP kinds that have no live integration
// yet. It acknowledges the push with a synthetic reference so the rest of
// the flow, approval and audit included, behaves as it will in production.
func (e *Engine) executeMockERP(kind models.AdapterKind, payload map[string]any) (json.RawMessage, error) {
	ack := fmt.Sprintf("MOCK-%s-%s", strings.ToUpper(string(kind)), uuid.NewString()[:8])

	result, err := json.Marshal(map[string]any{
		"ack_id":  ack,
		"adapter": string(kind),
		"status":  "accepted",
		"message": fmt.Sprintf("record accepted by %s (mock)", kind),
		"payload": payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal mock response: %w", err)
	}
	return result, nil
}
