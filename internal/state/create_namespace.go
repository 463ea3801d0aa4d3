package state

import (
	"context"
	"fmt"

	projectv1 "github.com/innoq/project-selfservice-operator/internal/apis/selfservice/v1"
	"github.com/innoq/project-selfservice-operator/pkg/apperrors"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
)

type createNamespaceState struct{}

func (createNamespaceState) Name() Name { return CreateNamespace }

// Next implements spec §4.5 CreateNamespace: get-or-create a
// namespace named after the Project, owned by it; fail with
// NamespaceConflictError if one already exists under a different
// owner.
func (createNamespaceState) Next(ctx context.Context, shared *Shared, pp *PerProject, project *projectv1.Project, specChanged bool) Outcome {
	name := project.Name

	ns, err := shared.Kube.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
	if err == nil {
		if ownedBy(ns, project) {
			return Outcome{Next: ApplyManifests, Projection: Projection{
				Phase: projectv1.PhaseCreatingNamespace,
			}}
		}
		owner := owningProjectName(ns)
		return errorOutcome(pp, &apperrors.NamespaceConflictError{
			ProjectName: name,
			Owned:       owner != "",
			OwnerName:   owner,
		})
	}

	if !apierrors.IsNotFound(err) {
		return errorOutcome(pp, fmt.Errorf("getting namespace %q: %w", name, err))
	}

	newNs := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
			OwnerReferences: []metav1.OwnerReference{
				{
					APIVersion: project.APIVersion,
					Kind:       project.Kind,
					Name:       project.Name,
					UID:        project.UID,
					Controller: ptr.To(true),
				},
			},
		},
	}

	if _, err := shared.Kube.CoreV1().Namespaces().Create(ctx, newNs, metav1.CreateOptions{}); err != nil {
		if apierrors.IsAlreadyExists(err) {
			// Lost a race with another reconcile; re-check ownership
			// next iteration rather than erroring out.
			return Outcome{Next: CreateNamespace, Projection: Projection{
				Phase: projectv1.PhaseCreatingNamespace,
			}}
		}
		return errorOutcome(pp, fmt.Errorf("creating namespace %q: %w", name, err))
	}

	return Outcome{Next: ApplyManifests, Projection: Projection{
		Phase: projectv1.PhaseCreatingNamespace,
	}}
}

func ownedBy(ns *corev1.Namespace, project *projectv1.Project) bool {
	for _, owner := range ns.OwnerReferences {
		if owner.Kind == project.Kind && owner.Name == project.Name && ptr.Deref(owner.Controller, false) {
			return true
		}
	}
	return false
}

func owningProjectName(ns *corev1.Namespace) string {
	for _, owner := range ns.OwnerReferences {
		if ptr.Deref(owner.Controller, false) {
			return owner.Name
		}
	}
	return ""
}

// errorOutcome builds the Outcome for a transition into the Error
// state, recording err's text on pp.LastError, which errorState
// re-projects on later iterations.
func errorOutcome(pp *PerProject, err error) Outcome {
	pp.LastError = err.Error()
	return Outcome{
		Next: Error,
		Projection: Projection{
			Phase:   projectv1.PhaseFailedDueToError,
			Message: err.Error(),
			Summary: truncateSummary(err.Error()),
		},
		Err: err,
	}
}
