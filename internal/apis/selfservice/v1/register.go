package v1

import (
	"github.com/innoq/project-selfservice-operator/pkg/constants"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// GroupVersion identifies this package's API group and version.
var GroupVersion = schema.GroupVersion{Group: constants.GroupName, Version: constants.Version}

// SchemeBuilder collects this package's types for registration into a
// runtime.Scheme, following the convention client-go-generated API
// packages use.
var (
	SchemeBuilder = runtime.NewSchemeBuilder(addKnownTypes)
	AddToScheme   = SchemeBuilder.AddToScheme
)

func addKnownTypes(scheme *runtime.Scheme) error {
	scheme.AddKnownTypes(GroupVersion,
		&Project{},
		&ProjectList{},
	)
	metav1.AddToGroupVersion(scheme, GroupVersion)
	return nil
}

// Resource returns a GroupResource for the given resource name within
// this API group, e.g. Resource("projects").
func Resource(resource string) schema.GroupResource {
	return GroupVersion.WithResource(resource).GroupResource()
}
