// Package constants centralizes the annotation keys, default values and
// Kubernetes identifiers the operator agrees on with its users. Nothing
// here is configurable; configurable knobs live in internal/config.
package constants

const (
	// AnnotationPrefix namespaces every Project-facing annotation this
	// operator recognizes.
	AnnotationPrefix = "project.selfservice.innoq.io"

	// OperatorAccessAnnotation must be present with value
	// OperatorAccessGrant on a Secret before the operator will read it
	// as a manifest bundle.
	OperatorAccessAnnotation = AnnotationPrefix + "/operator-access"
	// OperatorAccessGrant is the only value of OperatorAccessAnnotation
	// that grants access.
	OperatorAccessGrant = "grant"

	// ApplyAnnotation on a rendered manifest's own metadata.annotations
	// marks it apply-once.
	ApplyAnnotation = AnnotationPrefix + "/apply"
	// ApplyOnce is the only recognized value of ApplyAnnotation.
	ApplyOnce = "once"

	// AnnotationValueCopy and AnnotationValueSkip are the two values a
	// Project's `<prefix>/<secret>[.<item>]` annotation may take.
	AnnotationValueCopy = "copy"
	AnnotationValueSkip = "skip"

	// FieldManager is the Server-Side Apply field manager this operator
	// identifies itself as.
	FieldManager = "self-service-operator"

	// ProjectNameVar and ProjectOwnersVar are the manifest template
	// variable names spec.md reserves for Project-derived values.
	ProjectNameVar   = "__PROJECT_NAME__"
	ProjectOwnersVar = "__PROJECT_OWNERS__"

	// DefaultManifestsSecretName is the out-of-the-box name of the
	// DefaultBundle secret, overridable via operator configuration.
	DefaultManifestsSecretName = "default-project-manifests"

	// GroupName, Version, Kind and Plural identify the Project CRD.
	GroupName = "selfservice.innoq.io"
	Version   = "v1"
	Kind      = "Project"
	ListKind  = "ProjectList"
	Plural    = "projects"
	Singular  = "project"

	// ProjectFinalizer blocks the API server from hard-deleting a
	// Project until the Reconciler has driven it into Released and
	// removed the finalizer itself (spec §4.5's "on deletion observed
	// by the loop, enter Released").
	ProjectFinalizer = GroupName + "/release"

	// MaxApplyAttempts is the Manifest Applier's retry ceiling (spec §4.4).
	MaxApplyAttempts = 5

	// StatusSummaryMaxLen is the truncation budget for status.summary
	// (spec §9 design note — preserved exactly).
	StatusSummaryMaxLen = 50

	// ErrorStateRetryDelaySeconds is the Error state's re-entry delay
	// absent an observed spec change (spec §4.5).
	ErrorStateRetryDelaySeconds = 60
)
