// Package v1 defines the Project custom resource: a cluster-scoped
// type a user creates to request a self-service namespace plus its
// templated child resources. The schema is hand-written rather than
// generated, matching the core's explicit non-goal of not rendering
// CRD schemas for this type (the CRD YAML installed by
// internal/crdinstall uses a permissive x-kubernetes-preserve-unknown-fields
// structural schema, not one derived from these Go structs).
package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// ProjectPhase enumerates the values status.phase may hold. These
// mirror the core state machine's states one-for-one (spec §4.5),
// plus Initializing for a Project the operator has not reconciled yet.
type ProjectPhase string

const (
	PhaseInitializing      ProjectPhase = "Initializing"
	PhaseCreatingNamespace ProjectPhase = "CreatingNamespace"
	PhaseApplyingManifests ProjectPhase = "ApplyingManifests"
	PhaseFailedDueToError  ProjectPhase = "FailedDueToError"
	PhaseWaitingForChanges ProjectPhase = "WaitingForChanges"
	PhaseReleased          ProjectPhase = "Released"
)

// ProjectSpec is the user-authored desired state of a Project.
type ProjectSpec struct {
	// Owners is an ordered, non-empty sequence of subject identifiers
	// granted access to the Project's namespace.
	Owners []string `json:"owners"`

	// ManifestValues is a YAML mapping, stored as a string because the
	// CRD's structural schema cannot describe arbitrary nested data
	// (spec §9 design note). Parsed into a map[string]interface{} by
	// internal/manifest at render time; a non-mapping root is rejected
	// with InvalidProjectSpecError.
	// +optional
	ManifestValues string `json:"manifestValues,omitempty"`
}

// ProjectStatus is written exclusively by the operator.
type ProjectStatus struct {
	// Phase is the state the most recent reconcile iteration reached.
	Phase ProjectPhase `json:"phase,omitempty"`
	// Message is the full diagnostic for the current phase, in
	// particular the complete error text while Phase is
	// FailedDueToError.
	Message string `json:"message,omitempty"`
	// Summary is Message flattened to one line and truncated to
	// constants.StatusSummaryMaxLen characters with an ellipsis, kept
	// short enough for `kubectl get projects` to render usefully.
	Summary string `json:"summary,omitempty"`
	// AppliedOneShotResources is the monotonic set of API paths the
	// Manifest Applier has created under the apply-once contract
	// (spec §3 invariants, §4.4 step 2/5).
	// +optional
	AppliedOneShotResources []string `json:"appliedOneShotResources,omitempty"`
}

// +k8s:deepcopy-gen:interfaces=k8s.io/apimachinery/pkg/runtime.Object

// Project is the cluster-scoped custom resource this operator reconciles.
type Project struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ProjectSpec   `json:"spec,omitempty"`
	Status ProjectStatus `json:"status,omitempty"`
}

// +k8s:deepcopy-gen:interfaces=k8s.io/apimachinery/pkg/runtime.Object

// ProjectList is a list of Project resources.
type ProjectList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`

	Items []Project `json:"items"`
}

// DeepCopyObject implements runtime.Object.
func (p *Project) DeepCopyObject() runtime.Object {
	return p.DeepCopy()
}

// DeepCopy returns a deep copy of the Project.
func (p *Project) DeepCopy() *Project {
	if p == nil {
		return nil
	}
	out := new(Project)
	*out = *p
	out.TypeMeta = p.TypeMeta
	p.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	out.Spec = p.Spec
	if p.Spec.Owners != nil {
		out.Spec.Owners = append([]string(nil), p.Spec.Owners...)
	}
	out.Status = p.Status
	if p.Status.AppliedOneShotResources != nil {
		out.Status.AppliedOneShotResources = append([]string(nil), p.Status.AppliedOneShotResources...)
	}
	return out
}

// DeepCopyObject implements runtime.Object.
func (l *ProjectList) DeepCopyObject() runtime.Object {
	return l.DeepCopy()
}

// DeepCopy returns a deep copy of the ProjectList.
func (l *ProjectList) DeepCopy() *ProjectList {
	if l == nil {
		return nil
	}
	out := new(ProjectList)
	*out = *l
	out.TypeMeta = l.TypeMeta
	l.ListMeta.DeepCopyInto(&out.ListMeta)
	if l.Items != nil {
		out.Items = make([]Project, len(l.Items))
		for i := range l.Items {
			l.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
	return out
}

// DeepCopyInto copies p into out.
func (p *Project) DeepCopyInto(out *Project) {
	*out = *p.DeepCopy()
}
