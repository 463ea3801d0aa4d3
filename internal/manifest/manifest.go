package manifest

import (
	"fmt"

	"github.com/innoq/project-selfservice-operator/pkg/constants"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"
)

// Decode parses rendered manifest YAML text into an unstructured
// object and validates the minimum fields the Resource Router needs
// (spec §4.1): apiVersion, kind, metadata.name.
func Decode(name, renderedText string) (*unstructured.Unstructured, error) {
	var fields map[string]interface{}
	if err := yaml.Unmarshal([]byte(renderedText), &fields); err != nil {
		return nil, fmt.Errorf("manifest %q is not valid YAML: %w", name, err)
	}

	obj := &unstructured.Unstructured{Object: fields}
	if obj.GetAPIVersion() == "" {
		return nil, fmt.Errorf("manifest %q is missing apiVersion", name)
	}
	if obj.GetKind() == "" {
		return nil, fmt.Errorf("manifest %q is missing kind", name)
	}
	if obj.GetName() == "" {
		return nil, fmt.Errorf("manifest %q is missing metadata.name", name)
	}

	return obj, nil
}

// IsApplyOnce reports whether obj carries the apply-once annotation
// (spec §4.4 step 2).
func IsApplyOnce(obj *unstructured.Unstructured) bool {
	return obj.GetAnnotations()[constants.ApplyAnnotation] == constants.ApplyOnce
}
