// Package pipeline runs the extraction pipeline: classify, extract,
// normalize, validate, score, and recover.
package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/parseledger/document-pipeline-service/internal/schema"
)

// Normalize coerces extracted values into canonical shapes: numbers to
// float64, dates to YYYY-MM-DD, a default currency when none was read, and
// card numbers redacted to their last four digits. Values that cannot be
// coerced are left untouched so nothing is lost before review.
//
// Normalize is idempotent: running it on already normalized data is a
// no-op.
func Normalize(data map[string]any, sch *schema.DocSchema) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}

	for _, field := range sch.NumberFields {
		if v, ok := out[field]; ok && v != nil {
			out[field] = coerceNumber(v)
		}
	}

	for _, field := range sch.DateFields {
		if v, ok := out[field]; ok {
			if s, isStr := v.(string); isStr && s != "" {
				out[field] = coerceDate(s)
			}
		}
	}

	if v, ok := out["currency"]; !ok || v == nil || v == "" {
		out["currency"] = sch.DefaultCurrency
	}

	if v, ok := out["card_last4"]; ok {
		if s, isStr := v.(string); isStr && s != "" {
			out["card_last4"] = redactCard(s)
		}
	}

	return out
}

// coerceNumber turns numeric strings into float64. European decimal commas
// and embedded spaces are handled. Unparseable values pass through as-is.
func coerceNumber(v any) any {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		cleaned := strings.ReplaceAll(val, " ", "")
		cleaned = strings.TrimPrefix(cleaned, "$")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return val
		}
		return f
	default:
		return v
	}
}

// coerceDate rewrites plausible date strings to YYYY-MM-DD. Both
// DD/MM/YYYY and YYYY/MM/DD orderings are recognized, with "/", "-" and
// "." as separators. Anything implausible passes through unchanged.
func coerceDate(s string) string {
	trimmed := strings.TrimSpace(s)

	// Already canonical
	if len(trimmed) == 10 && trimmed[4] == '-' && trimmed[7] == '-' {
		return trimmed
	}

	parts := strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == '/' || r == '-' || r == '.'
	})
	if len(parts) != 3 {
		return s
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return s
		}
		nums[i] = n
	}

	var year, month, day int
	switch {
	case nums[0] > 1900 && nums[1] <= 12 && nums[2] <= 31:
		year, month, day = nums[0], nums[1], nums[2]
	case nums[2] > 1900 && nums[1] <= 12 && nums[0] <= 31:
		year, month, day = nums[2], nums[1], nums[0]
	default:
		return s
	}

	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

// redactCard keeps only the last four digits of anything that looks like a
// card number. Values already redacted or four digits or shorter are left
// alone.
func redactCard(s string) string {
	if strings.HasPrefix(s, "****") {
		return s
	}
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) <= 4 {
		if d == "" {
			return s
		}
		return "****" + d
	}
	return "****" + d[len(d)-4:]
}
