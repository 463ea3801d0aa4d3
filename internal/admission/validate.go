// Package admission implements the Project admission webhook (spec
// §4.7): on CREATE and UPDATE it denies a candidate Project whose
// namespace would conflict with another Project, or whose manifest
// set cannot be resolved and rendered against the live cluster, and
// allows everything else unchanged (this webhook never mutates).
package admission

import (
	"context"
	"encoding/json"
	"fmt"

	projectv1 "github.com/innoq/project-selfservice-operator/internal/apis/selfservice/v1"
	"github.com/innoq/project-selfservice-operator/internal/manifest"
	"github.com/innoq/project-selfservice-operator/internal/selector"
	"github.com/innoq/project-selfservice-operator/pkg/apperrors"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Validator runs the two admission checks against the live cluster.
// It never writes anything; "dry-run" in spec §4.7's sense means the
// Renderer's output is decoded and discarded, not that the Applier
// runs against a mocked client.
type Validator struct {
	Kube           kubernetes.Interface
	SelectorConfig selector.Config
}

// Validate runs spec §4.7's checks in order and returns the first
// denial reason, or "" to Allow.
func (v *Validator) Validate(ctx context.Context, project *projectv1.Project) (denyReason string, err error) {
	if reason, err := v.checkNamespaceOwnership(ctx, project); err != nil {
		return "", err
	} else if reason != "" {
		return reason, nil
	}

	if reason, err := v.checkManifestsResolve(ctx, project); err != nil {
		return "", err
	} else if reason != "" {
		return reason, nil
	}

	return "", nil
}

// checkNamespaceOwnership implements spec §4.7 check 1.
func (v *Validator) checkNamespaceOwnership(ctx context.Context, project *projectv1.Project) (string, error) {
	ns, err := v.Kube.CoreV1().Namespaces().Get(ctx, project.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	if ownedByProject(ns, project.Name) {
		return "", nil
	}

	owner := owningProjectNameOf(ns)
	if owner == "" {
		return fmt.Sprintf("can't create project: a namespace with name %q already exists", project.Name), nil
	}
	return fmt.Sprintf("can't create project: namespace %q exists but belongs to project %q, not %q", project.Name, owner, project.Name), nil
}

func ownedByProject(ns *corev1.Namespace, projectName string) bool {
	for _, owner := range ns.OwnerReferences {
		if owner.Kind == "Project" && owner.Name == projectName {
			return true
		}
	}
	return false
}

func owningProjectNameOf(ns *corev1.Namespace) string {
	for _, owner := range ns.OwnerReferences {
		if owner.Kind == "Project" {
			return owner.Name
		}
	}
	return ""
}

// checkManifestsResolve implements spec §4.7 check 2: dry-run the
// Selector and Renderer (not the Applier — no writes happen here)
// against the current cluster state.
func (v *Validator) checkManifestsResolve(ctx context.Context, project *projectv1.Project) (string, error) {
	items, err := selector.Resolve(ctx, v.Kube, v.SelectorConfig, project.Annotations)
	if err != nil {
		return denyMessageFor(err), nil
	}

	values, err := manifest.ParseManifestValues(project.Spec.ManifestValues)
	if err != nil {
		return denyMessageFor(err), nil
	}
	templateValues := manifest.BuildTemplateValues(values, project.Name, project.Spec.Owners)

	for _, item := range items {
		diagName := fmt.Sprintf("%s/%s", item.SecretName, item.DataItem)

		rendered, err := manifest.Render(diagName, item.Template, templateValues)
		if err != nil {
			return denyMessageFor(err), nil
		}
		if _, err := manifest.Decode(diagName, rendered); err != nil {
			return denyMessageFor(err), nil
		}
	}

	return "", nil
}

// denyMessageFor renders a typed apperrors kind into the same message
// admission would deny with during reconciliation, keeping the two
// paths consistent for a user comparing the webhook response against
// a Project's eventual status.message.
func denyMessageFor(err error) string {
	if e, ok := apperrors.IsSecretAccessDeniedError(err); ok {
		return e.Error()
	}
	if e, ok := apperrors.IsSecretMissingError(err); ok {
		return e.Error()
	}
	if e, ok := apperrors.IsItemMissingError(err); ok {
		return e.Error()
	}
	if e, ok := apperrors.IsTemplateError(err); ok {
		return e.Error()
	}
	if e, ok := apperrors.IsInvalidProjectSpecError(err); ok {
		return e.Error()
	}
	return err.Error()
}

// decodeProject extracts the candidate Project from an admission
// request's raw object.
func decodeProject(raw []byte) (*projectv1.Project, error) {
	project := &projectv1.Project{}
	if err := json.Unmarshal(raw, project); err != nil {
		return nil, fmt.Errorf("unmarshalling admission request object: %w", err)
	}
	return project, nil
}
