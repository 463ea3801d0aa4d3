package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"
)

func newTestRouter(t *testing.T, resources ...*metav1.APIResourceList) *Router {
	t.Helper()
	clientset := fake.NewSimpleClientset()
	clientset.Resources = resources

	dyn := dynamicfake.NewSimpleDynamicClient(runtime.NewScheme())
	return New(clientset.Discovery(), dyn)
}

func TestRoute_CoreNamespacedResource(t *testing.T) {
	r := newTestRouter(t, &metav1.APIResourceList{
		GroupVersion: "v1",
		APIResources: []metav1.APIResource{
			{Name: "configmaps", Namespaced: true, Kind: "ConfigMap"},
		},
	})

	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata": map[string]interface{}{
			"name":      "foo",
			"namespace": "my-project",
		},
	}}

	route, err := r.Resolve(obj)
	require.NoError(t, err)
	assert.True(t, route.Namespaced)
	assert.Equal(t, "/api/v1/namespaces/my-project/configmaps/foo", route.APIPath)
}

func TestRoute_GroupedClusterScopedResource(t *testing.T) {
	r := newTestRouter(t, &metav1.APIResourceList{
		GroupVersion: "rbac.authorization.k8s.io/v1",
		APIResources: []metav1.APIResource{
			{Name: "clusterroles", Namespaced: false, Kind: "ClusterRole"},
		},
	})

	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "rbac.authorization.k8s.io/v1",
		"kind":       "ClusterRole",
		"metadata": map[string]interface{}{
			"name": "viewer",
		},
	}}

	route, err := r.Resolve(obj)
	require.NoError(t, err)
	assert.False(t, route.Namespaced)
	assert.Equal(t, "/apis/rbac.authorization.k8s.io/v1/clusterroles/viewer", route.APIPath)
}

func TestResolve_NamespacedManifestMissingNamespace_Errors(t *testing.T) {
	r := newTestRouter(t, &metav1.APIResourceList{
		GroupVersion: "v1",
		APIResources: []metav1.APIResource{
			{Name: "configmaps", Namespaced: true, Kind: "ConfigMap"},
		},
	})

	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata": map[string]interface{}{
			"name": "foo",
		},
	}}

	_, err := r.Resolve(obj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "__PROJECT_NAME__")
}

func TestResolve_UnknownKind_Errors(t *testing.T) {
	r := newTestRouter(t)

	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "example.io/v1",
		"kind":       "Widget",
		"metadata": map[string]interface{}{
			"name": "foo",
		},
	}}

	_, err := r.Resolve(obj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
}
