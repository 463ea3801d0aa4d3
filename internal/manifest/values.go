package manifest

import (
	"fmt"
	"strings"

	"github.com/innoq/project-selfservice-operator/pkg/apperrors"
	"gopkg.in/yaml.v3"
)

// ParseManifestValues parses a Project's spec.manifestValues string into
// a mapping (spec §3, §4.2). An empty or all-whitespace string parses
// to an empty mapping — a Project is not required to define any
// values. Any other root kind (number, null, boolean, string, array)
// is rejected with a typed InvalidProjectSpecError naming the kind
// found, per spec §9's stringly-typed-on-the-wire design note.
func ParseManifestValues(raw string) (map[string]interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}, nil
	}

	var parsed interface{}
	if err := yaml.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("manifestValues is not valid YAML: %w", err)
	}

	switch v := parsed.(type) {
	case map[string]interface{}:
		return v, nil
	case nil:
		return nil, &apperrors.InvalidProjectSpecError{ActualKind: "null"}
	case bool:
		return nil, &apperrors.InvalidProjectSpecError{ActualKind: "boolean"}
	case int, int64, float64:
		return nil, &apperrors.InvalidProjectSpecError{ActualKind: "number"}
	case string:
		return nil, &apperrors.InvalidProjectSpecError{ActualKind: "string"}
	case []interface{}:
		return nil, &apperrors.InvalidProjectSpecError{ActualKind: "array"}
	default:
		return nil, &apperrors.InvalidProjectSpecError{ActualKind: fmt.Sprintf("%T", v)}
	}
}
