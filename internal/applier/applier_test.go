package applier

import (
	"context"
	"testing"
	"time"

	"github.com/innoq/project-selfservice-operator/internal/router"
	"github.com/innoq/project-selfservice-operator/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"
	kubetesting "k8s.io/client-go/testing"
)

func newTestApplier(t *testing.T, gvrToListKind map[schema.GroupVersionResource]string) *Applier {
	t.Helper()
	a, _ := newTestApplierWithDyn(t, gvrToListKind)
	return a
}

func newTestApplierWithDyn(t *testing.T, gvrToListKind map[schema.GroupVersionResource]string) (*Applier, *dynamicfake.FakeDynamicClient) {
	t.Helper()

	clientset := fake.NewSimpleClientset()
	clientset.Resources = []*metav1.APIResourceList{
		{
			GroupVersion: "v1",
			APIResources: []metav1.APIResource{
				{Name: "configmaps", Namespaced: true, Kind: "ConfigMap"},
			},
		},
	}

	scheme := runtime.NewScheme()
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, gvrToListKind)

	r := router.New(clientset.Discovery(), dyn)
	return New(r, logger.NewNop(), time.Millisecond, nil), dyn
}

func configMapManifest(name, namespace string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": namespace,
		},
		"data": map[string]interface{}{
			"key": "value",
		},
	}}
}

func TestApply_CreatesNewResource(t *testing.T) {
	gvr := schema.GroupVersionResource{Version: "v1", Resource: "configmaps"}
	a := newTestApplier(t, map[schema.GroupVersionResource]string{gvr: "ConfigMapList"})

	owner := Owner{APIVersion: "selfservice.innoq.io/v1", Kind: "Project", Name: "demo", UID: "uid-1"}
	manifests := []Manifest{{Name: "cm.yaml", Obj: configMapManifest("foo", "demo")}}

	result, err := a.Apply(context.Background(), "demo", owner, manifests, map[string]bool{})
	require.NoError(t, err)
	assert.Empty(t, result.AppliedOneShotPaths)
}

func TestApply_ApplyOnceSkipsAlreadyApplied(t *testing.T) {
	gvr := schema.GroupVersionResource{Version: "v1", Resource: "configmaps"}
	a := newTestApplier(t, map[schema.GroupVersionResource]string{gvr: "ConfigMapList"})

	obj := configMapManifest("foo", "demo")
	obj.SetAnnotations(map[string]string{"project.selfservice.innoq.io/apply": "once"})

	owner := Owner{APIVersion: "selfservice.innoq.io/v1", Kind: "Project", Name: "demo", UID: "uid-1"}
	manifests := []Manifest{{Name: "cm.yaml", Obj: obj}}

	alreadyApplied := map[string]bool{
		"/api/v1/namespaces/demo/configmaps/foo": true,
	}

	result, err := a.Apply(context.Background(), "demo", owner, manifests, alreadyApplied)
	require.NoError(t, err)
	assert.Empty(t, result.AppliedOneShotPaths)
}

func TestApply_UnresolvableManifest_FailsImmediately(t *testing.T) {
	gvr := schema.GroupVersionResource{Version: "v1", Resource: "configmaps"}
	a := newTestApplier(t, map[schema.GroupVersionResource]string{gvr: "ConfigMapList"})

	owner := Owner{APIVersion: "selfservice.innoq.io/v1", Kind: "Project", Name: "demo", UID: "uid-1"}
	unroutable := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "unknown.example.io/v1",
		"kind":       "Widget",
		"metadata":   map[string]interface{}{"name": "foo"},
	}}

	_, err := a.Apply(context.Background(), "demo", owner, []Manifest{{Name: "w.yaml", Obj: unroutable}}, map[string]bool{})
	require.Error(t, err)
}

func TestApply_RetryableError_RetriesThenSucceeds(t *testing.T) {
	gvr := schema.GroupVersionResource{Version: "v1", Resource: "configmaps"}
	a, dyn := newTestApplierWithDyn(t, map[schema.GroupVersionResource]string{gvr: "ConfigMapList"})

	failuresLeft := 2
	dyn.PrependReactor("get", "configmaps", func(action kubetesting.Action) (bool, runtime.Object, error) {
		if failuresLeft > 0 {
			failuresLeft--
			return true, nil, apierrors.NewServiceUnavailable("etcd is down")
		}
		return true, nil, apierrors.NewNotFound(gvr.GroupResource(), "foo")
	})

	owner := Owner{APIVersion: "selfservice.innoq.io/v1", Kind: "Project", Name: "demo", UID: "uid-1"}
	manifests := []Manifest{{Name: "cm.yaml", Obj: configMapManifest("foo", "demo")}}

	result, err := a.Apply(context.Background(), "demo", owner, manifests, map[string]bool{})
	require.NoError(t, err)
	assert.Empty(t, result.AppliedOneShotPaths)
	assert.Equal(t, 0, failuresLeft)
}

func TestApply_NonRetryableError_FailsWithoutExhaustingAttempts(t *testing.T) {
	gvr := schema.GroupVersionResource{Version: "v1", Resource: "configmaps"}
	a, dyn := newTestApplierWithDyn(t, map[schema.GroupVersionResource]string{gvr: "ConfigMapList"})

	calls := 0
	dyn.PrependReactor("get", "configmaps", func(action kubetesting.Action) (bool, runtime.Object, error) {
		calls++
		return true, nil, apierrors.NewForbidden(gvr.GroupResource(), "foo", nil)
	})

	owner := Owner{APIVersion: "selfservice.innoq.io/v1", Kind: "Project", Name: "demo", UID: "uid-1"}
	manifests := []Manifest{{Name: "cm.yaml", Obj: configMapManifest("foo", "demo")}}

	_, err := a.Apply(context.Background(), "demo", owner, manifests, map[string]bool{})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
