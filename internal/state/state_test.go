package state

import (
	"context"
	"testing"
	"time"

	projectv1 "github.com/innoq/project-selfservice-operator/internal/apis/selfservice/v1"
	"github.com/innoq/project-selfservice-operator/internal/applier"
	"github.com/innoq/project-selfservice-operator/internal/router"
	"github.com/innoq/project-selfservice-operator/internal/selector"
	"github.com/innoq/project-selfservice-operator/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/utils/ptr"
)

func newTestShared(t *testing.T, objects ...runtime.Object) (*Shared, *fake.Clientset) {
	t.Helper()

	clientset := fake.NewSimpleClientset(objects...)
	clientset.Resources = []*metav1.APIResourceList{
		{
			GroupVersion: "v1",
			APIResources: []metav1.APIResource{
				{Name: "configmaps", Namespaced: true, Kind: "ConfigMap"},
			},
		},
	}

	scheme := runtime.NewScheme()
	gvrToListKind := map[schema.GroupVersionResource]string{
		{Version: "v1", Resource: "configmaps"}: "ConfigMapList",
	}
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, gvrToListKind)

	r := router.New(clientset.Discovery(), dyn)
	a := applier.New(r, logger.NewNop(), time.Millisecond, nil)

	return &Shared{
		Kube:       clientset,
		Dynamic:    dyn,
		Router:     r,
		Applier:    a,
		Log:        logger.NewNop(),
		RetryDelay: time.Millisecond,
		SelectorConfig: selector.Config{
			DefaultNamespace:       "operator-system",
			DefaultManifestsSecret: "default-project-manifests",
		},
	}, clientset
}

func testProject(name string) *projectv1.Project {
	return &projectv1.Project{
		TypeMeta: metav1.TypeMeta{APIVersion: "selfservice.innoq.io/v1", Kind: "Project"},
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
			UID:  types.UID("uid-" + name),
		},
		Spec: projectv1.ProjectSpec{Owners: []string{"alice"}},
	}
}

func grantedSecret(name string, data map[string]string) *corev1.Secret {
	bytes := map[string][]byte{}
	for k, v := range data {
		bytes[k] = []byte(v)
	}
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "operator-system",
			Annotations: map[string]string{
				"project.selfservice.innoq.io/operator-access": "grant",
			},
		},
		Data: bytes,
	}
}

func TestCreateNamespace_CreatesOwnedNamespace(t *testing.T) {
	shared, clientset := newTestShared(t)
	project := testProject("demo")
	pp := NewPerProject("demo", nil)

	outcome := For(CreateNamespace).Next(context.Background(), shared, pp, project, false)

	assert.Equal(t, ApplyManifests, outcome.Next)
	assert.Equal(t, projectv1.PhaseCreatingNamespace, outcome.Projection.Phase)

	ns, err := clientset.CoreV1().Namespaces().Get(context.Background(), "demo", metav1.GetOptions{})
	require.NoError(t, err)
	require.Len(t, ns.OwnerReferences, 1)
	assert.Equal(t, "demo", ns.OwnerReferences[0].Name)
}

func TestCreateNamespace_AlreadyOwned_AdvancesWithoutErr(t *testing.T) {
	project := testProject("demo")
	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name: "demo",
			OwnerReferences: []metav1.OwnerReference{
				{APIVersion: "selfservice.innoq.io/v1", Kind: "Project", Name: "demo", UID: project.UID, Controller: ptr.To(true)},
			},
		},
	}
	shared, _ := newTestShared(t, ns)
	pp := NewPerProject("demo", nil)

	outcome := For(CreateNamespace).Next(context.Background(), shared, pp, project, false)

	assert.Equal(t, ApplyManifests, outcome.Next)
	assert.Empty(t, pp.LastError)
}

func TestCreateNamespace_ConflictingOwner_EntersError(t *testing.T) {
	project := testProject("demo")
	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name: "demo",
			OwnerReferences: []metav1.OwnerReference{
				{APIVersion: "selfservice.innoq.io/v1", Kind: "Project", Name: "other", UID: types.UID("uid-other"), Controller: ptr.To(true)},
			},
		},
	}
	shared, _ := newTestShared(t, ns)
	pp := NewPerProject("demo", nil)

	outcome := For(CreateNamespace).Next(context.Background(), shared, pp, project, false)

	assert.Equal(t, Error, outcome.Next)
	assert.Equal(t, projectv1.PhaseFailedDueToError, outcome.Projection.Phase)
	assert.Contains(t, pp.LastError, "other")
}

func TestApplyManifests_RendersAndAppliesDefaultBundle(t *testing.T) {
	secret := grantedSecret("default-project-manifests", map[string]string{
		"configmap.yaml": "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: cfg\n  namespace: {{ .__PROJECT_NAME__ }}\n",
	})
	shared, _ := newTestShared(t, secret)
	project := testProject("demo")
	pp := NewPerProject("demo", nil)

	outcome := For(ApplyManifests).Next(context.Background(), shared, pp, project, false)

	assert.Equal(t, WaitForChanges, outcome.Next)
	assert.Equal(t, projectv1.PhaseApplyingManifests, outcome.Projection.Phase)
	assert.Empty(t, pp.LastError)
}

func TestApplyManifests_MissingDefaultBundle_EntersError(t *testing.T) {
	shared, _ := newTestShared(t)
	project := testProject("demo")
	pp := NewPerProject("demo", nil)

	outcome := For(ApplyManifests).Next(context.Background(), shared, pp, project, false)

	assert.Equal(t, Error, outcome.Next)
	assert.NotEmpty(t, pp.LastError)
}

func TestApplyManifests_UngrantedSecret_EntersError(t *testing.T) {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "default-project-manifests", Namespace: "operator-system"},
		Data:       map[string][]byte{"configmap.yaml": []byte("apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: cfg\n")},
	}
	shared, _ := newTestShared(t, secret)
	project := testProject("demo")
	pp := NewPerProject("demo", nil)

	outcome := For(ApplyManifests).Next(context.Background(), shared, pp, project, false)

	assert.Equal(t, Error, outcome.Next)
	assert.Contains(t, pp.LastError, "operator-access")
}

func TestApplyManifests_InvalidManifestValues_EntersError(t *testing.T) {
	secret := grantedSecret("default-project-manifests", map[string]string{
		"configmap.yaml": "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: cfg\n",
	})
	shared, _ := newTestShared(t, secret)
	project := testProject("demo")
	project.Spec.ManifestValues = "- not\n- a\n- mapping\n"
	pp := NewPerProject("demo", nil)

	outcome := For(ApplyManifests).Next(context.Background(), shared, pp, project, false)

	assert.Equal(t, Error, outcome.Next)
	assert.Contains(t, pp.LastError, "mapping")
}

func TestApplyManifests_TemplateError_EntersError(t *testing.T) {
	secret := grantedSecret("default-project-manifests", map[string]string{
		"configmap.yaml": "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: {{ .undefinedField }}\n",
	})
	shared, _ := newTestShared(t, secret)
	project := testProject("demo")
	pp := NewPerProject("demo", nil)

	outcome := For(ApplyManifests).Next(context.Background(), shared, pp, project, false)

	assert.Equal(t, Error, outcome.Next)
	assert.NotEmpty(t, pp.LastError)
}

func TestWaitForChanges_Idle_StaysPut(t *testing.T) {
	shared, _ := newTestShared(t)
	project := testProject("demo")
	pp := NewPerProject("demo", nil)

	outcome := For(WaitForChanges).Next(context.Background(), shared, pp, project, false)

	assert.Equal(t, WaitForChanges, outcome.Next)
	assert.Equal(t, projectv1.PhaseWaitingForChanges, outcome.Projection.Phase)
}

func TestWaitForChanges_SpecChanged_RestartsFromCreateNamespace(t *testing.T) {
	shared, _ := newTestShared(t)
	project := testProject("demo")
	pp := NewPerProject("demo", nil)

	outcome := For(WaitForChanges).Next(context.Background(), shared, pp, project, true)

	assert.Equal(t, CreateNamespace, outcome.Next)
}

func TestError_NoSpecChange_StaysAndRecordsRetryWindow(t *testing.T) {
	shared, _ := newTestShared(t)
	project := testProject("demo")
	pp := NewPerProject("demo", nil)
	pp.LastError = "boom"

	before := time.Now()
	outcome := For(Error).Next(context.Background(), shared, pp, project, false)

	assert.Equal(t, Error, outcome.Next)
	assert.Equal(t, "boom", outcome.Projection.Message)
	assert.True(t, !pp.ErrorEnteredAt.Before(before))
}

func TestError_SpecChanged_ClearsAndRestarts(t *testing.T) {
	shared, _ := newTestShared(t)
	project := testProject("demo")
	pp := NewPerProject("demo", nil)
	pp.LastError = "boom"

	outcome := For(Error).Next(context.Background(), shared, pp, project, true)

	assert.Equal(t, CreateNamespace, outcome.Next)
	assert.Empty(t, pp.LastError)
}

func TestReleased_StaysTerminal(t *testing.T) {
	shared, _ := newTestShared(t)
	project := testProject("demo")
	pp := NewPerProject("demo", nil)

	outcome := For(Released).Next(context.Background(), shared, pp, project, false)

	assert.Equal(t, Released, outcome.Next)
}

func TestFor_UnknownNameFallsBackToCreateNamespace(t *testing.T) {
	assert.Equal(t, CreateNamespace, For(Name("bogus")).Name())
	assert.Equal(t, CreateNamespace, For("").Name())
}
