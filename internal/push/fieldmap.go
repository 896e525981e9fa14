// Package push dispatches approved records to destination connections.
package push

import (
	"strings"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

// BuildPayload projects a record's normalized data into the destination
// payload. With no field map the data passes through unchanged. With one,
// the output has exactly the map's destination keys; a source path that
// resolves to nothing yields an explicit null so destinations see a stable
// shape.
func BuildPayload(data map[string]any, fm *models.FieldMap) map[string]any {
	if fm == nil || len(fm.Map) == 0 {
		out := make(map[string]any, len(data))
		for k, v := range data {
			out[k] = v
		}
		return out
	}

	out := make(map[string]any, len(fm.Map))
	for dest, src := range fm.Map {
		out[dest] = resolvePath(data, src)
	}
	return out
}

// resolvePath walks a dot-separated path through nested maps. Any step
// that is not a map, or a missing key, resolves to nil.
func resolvePath(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var current any = data
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}
