// Package manifest parses a Project's manifestValues, builds the
// template values map the renderer exposes to bundle authors, renders
// manifest text through that template in strict mode, and decodes the
// rendered text into an unstructured Kubernetes object.
package manifest

import (
	"github.com/innoq/project-selfservice-operator/pkg/apperrors"
	"github.com/innoq/project-selfservice-operator/pkg/constants"
	"github.com/innoq/project-selfservice-operator/pkg/utils"
)

// BuildTemplateValues assembles the data a manifest template sees:
// every key from the Project's parsed manifestValues, plus the two
// reserved Project-derived variables (spec §4.2). If manifestValues
// defines __PROJECT_NAME__ or __PROJECT_OWNERS__, the Project-derived
// value replaces it; such keys are not rejected, here or by callers.
func BuildTemplateValues(manifestValues map[string]interface{}, projectName string, owners []string) map[string]interface{} {
	values := make(map[string]interface{}, len(manifestValues)+2)
	for k, v := range manifestValues {
		values[k] = v
	}
	values[constants.ProjectNameVar] = projectName
	values[constants.ProjectOwnersVar] = owners
	return values
}

// Render renders templateText in strict mode ("missingkey=error") —
// referencing a variable absent from values fails the render rather
// than silently producing "<no value>". name identifies the manifest
// in diagnostics only. On failure the returned error is a
// *apperrors.TemplateError carrying the standard manifestValues hint.
//
// Render(Parse(text)) == text for any template lacking {{ }} tokens
// (spec §8 round-trip property): utils.RenderTemplate already
// short-circuits on that case.
func Render(name, templateText string, values map[string]interface{}) (string, error) {
	rendered, err := utils.RenderTemplate(templateText, values)
	if err != nil {
		return "", &apperrors.TemplateError{ManifestName: name, Err: err}
	}
	return rendered, nil
}
