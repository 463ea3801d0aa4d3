// Package router implements the Resource Router (spec §4.1): given a
// decoded manifest, it resolves the object's GroupVersionKind to a
// discovered REST mapping and derives the cluster API path the
// Manifest Applier must use — core vs grouped, namespaced vs
// cluster-scoped — failing fast when a namespaced manifest doesn't
// name a namespace.
package router

import (
	"fmt"

	"github.com/innoq/project-selfservice-operator/pkg/constants"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/restmapper"
)

// Route is the resolved destination for one manifest: the GVR the
// dynamic client addresses it with, whether it's namespaced, and the
// human-readable API path for diagnostics (spec §4.1's four path
// shapes).
type Route struct {
	Resource   dynamic.ResourceInterface
	Namespaced bool
	APIPath    string
}

// Router resolves manifests to Routes using the cluster's discovery
// API, caching RESTMappings the way kubectl-style tools do
// (restmapper.NewDeferredDiscoveryRESTMapper over a memory-cached
// discovery client) so repeated applies of the same kind don't
// re-query discovery every time.
type Router struct {
	mapper *restmapper.DeferredDiscoveryRESTMapper
	dyn    dynamic.Interface
}

// New builds a Router from a discovery client and a dynamic client
// pointed at the same cluster.
func New(disc discovery.DiscoveryInterface, dyn dynamic.Interface) *Router {
	cached := memory.NewMemCacheClient(disc)
	mapper := restmapper.NewDeferredDiscoveryRESTMapper(cached)
	return &Router{mapper: mapper, dyn: dyn}
}

// Resolve maps obj's apiVersion/kind to a discovered resource and
// builds the Route the Applier will use. If the resource is
// namespaced and obj has no metadata.namespace, it fails with a
// message pointing the manifest author at the __PROJECT_NAME__
// template variable (spec §4.1).
func (r *Router) Resolve(obj *unstructured.Unstructured) (*Route, error) {
	gvk := obj.GroupVersionKind()

	mapping, err := r.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		r.mapper.Reset()
		mapping, err = r.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
		if err != nil {
			return nil, fmt.Errorf("api version %s not available for kind %s", gvk.GroupVersion().String(), gvk.Kind)
		}
	}

	namespaced := mapping.Scope.Name() == meta.RESTScopeNameNamespace

	if namespaced && obj.GetNamespace() == "" {
		return nil, fmt.Errorf(
			"manifest %q (%s) is namespaced but has no metadata.namespace; set it to {{ .%s }}",
			obj.GetName(), gvk.Kind, constants.ProjectNameVar,
		)
	}

	var resourceClient dynamic.ResourceInterface
	if namespaced {
		resourceClient = r.dyn.Resource(mapping.Resource).Namespace(obj.GetNamespace())
	} else {
		resourceClient = r.dyn.Resource(mapping.Resource)
	}

	return &Route{
		Resource:   resourceClient,
		Namespaced: namespaced,
		APIPath:    buildAPIPath(gvk.Group, gvk.Version, mapping.Resource.Resource, obj.GetNamespace(), obj.GetName(), namespaced),
	}, nil
}

// buildAPIPath reproduces the four deterministic shapes spec §4.1
// names, purely for diagnostics and appliedOneShotResources bookkeeping
// — the actual HTTP call goes through the dynamic client, which builds
// the equivalent path itself.
func buildAPIPath(group, version, plural, namespace, name string, namespaced bool) string {
	var base string
	if group == "" {
		base = fmt.Sprintf("/api/%s", version)
	} else {
		base = fmt.Sprintf("/apis/%s/%s", group, version)
	}

	if namespaced {
		return fmt.Sprintf("%s/namespaces/%s/%s/%s", base, namespace, plural, name)
	}
	return fmt.Sprintf("%s/%s/%s", base, plural, name)
}
