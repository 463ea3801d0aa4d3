package crdinstall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"sigs.k8s.io/yaml"
)

func TestPrintCRD_ParsesAsCustomResourceDefinition(t *testing.T) {
	var crd apiextensionsv1.CustomResourceDefinition
	require.NoError(t, yaml.Unmarshal([]byte(PrintCRD()), &crd))

	assert.Equal(t, "projects.selfservice.innoq.io", crd.Name)
	assert.Equal(t, apiextensionsv1.ClusterScoped, crd.Spec.Scope)
	assert.Equal(t, "Project", crd.Spec.Names.Kind)
	require.Len(t, crd.Spec.Versions, 1)
	assert.True(t, crd.Spec.Versions[0].Served)
	assert.NotNil(t, crd.Spec.Versions[0].Subresources.Status)
}

func TestPrintSampleManifest_ParsesAsValidYAML(t *testing.T) {
	var obj map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(PrintSampleManifest()), &obj))

	assert.Equal(t, "selfservice.innoq.io/v1", obj["apiVersion"])
	assert.Equal(t, "Project", obj["kind"])
}

func TestPrintAdmissionManifests_ParsesAsValidatingWebhookConfiguration(t *testing.T) {
	out, err := PrintAdmissionManifests("project-operator-webhook", "operator-system")
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, "ValidatingWebhookConfiguration", parsed["kind"])
}
