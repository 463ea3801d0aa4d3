// Package apperrors defines the typed error kinds the operator's
// components raise, following the same per-kind-struct-plus-Is<Kind>
// convention the rest of this codebase's error handling uses: each
// kind carries whatever context its callers (the admission controller,
// the state machine's status projection) need to report without
// string-matching error messages.
package apperrors

import (
	"errors"
	"fmt"
)

// NamespaceConflictError is raised when a Project's namespace already
// exists and is not owned by that Project (spec §4.5 CreateNamespace,
// §4.7 admission check 1).
type NamespaceConflictError struct {
	ProjectName string
	// Owned is true when the namespace exists but is owned by a
	// different Project than ProjectName.
	Owned     bool
	OwnerName string
}

func (e *NamespaceConflictError) Error() string {
	if e.Owned {
		return fmt.Sprintf("can't create project: namespace %q exists but belongs to project %q, not %q", e.ProjectName, e.OwnerName, e.ProjectName)
	}
	return fmt.Sprintf("can't create project: a namespace with name %q already exists", e.ProjectName)
}

// IsNamespaceConflictError reports whether err is (or wraps) a
// NamespaceConflictError.
func IsNamespaceConflictError(err error) (*NamespaceConflictError, bool) {
	var e *NamespaceConflictError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// SecretAccessDeniedError is raised when a referenced Secret lacks the
// operator-access annotation (spec §4.3 rule 4).
type SecretAccessDeniedError struct {
	SecretName string
	Namespace  string
	Annotation string
}

func (e *SecretAccessDeniedError) Error() string {
	return fmt.Sprintf("Error accessing secret '%s': only secrets with the annotation '%s: grant' can be accessed, secret %s/%s does not have it",
		e.SecretName, e.Annotation, e.Namespace, e.SecretName)
}

// IsSecretAccessDeniedError reports whether err is (or wraps) a
// SecretAccessDeniedError.
func IsSecretAccessDeniedError(err error) (*SecretAccessDeniedError, bool) {
	var e *SecretAccessDeniedError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// SecretMissingError is raised when a copy/skip annotation references
// a Secret that does not exist.
type SecretMissingError struct {
	SecretName string
	Namespace  string
	Annotation string
	Err        error
}

func (e *SecretMissingError) Error() string {
	return fmt.Sprintf("secret %s/%s referenced by annotation %q not found", e.Namespace, e.SecretName, e.Annotation)
}

func (e *SecretMissingError) Unwrap() error { return e.Err }

// IsSecretMissingError reports whether err is (or wraps) a SecretMissingError.
func IsSecretMissingError(err error) (*SecretMissingError, bool) {
	var e *SecretMissingError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ItemMissingError is raised when a copy annotation names a specific
// data item that is absent from its Secret.
type ItemMissingError struct {
	SecretName string
	Namespace  string
	Item       string
	Annotation string
}

func (e *ItemMissingError) Error() string {
	return fmt.Sprintf("data item %q not found in secret %s/%s referenced by annotation %q", e.Item, e.Namespace, e.SecretName, e.Annotation)
}

// IsItemMissingError reports whether err is (or wraps) an ItemMissingError.
func IsItemMissingError(err error) (*ItemMissingError, bool) {
	var e *ItemMissingError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// TemplateError is raised when strict-mode rendering of a manifest
// fails (spec §4.2). Message always ends with the manifestValues hint.
type TemplateError struct {
	ManifestName string
	Err          error
}

const templateErrorHint = "(did you provide all necessary manifestValues in the project spec?)"

func (e *TemplateError) Error() string {
	return fmt.Sprintf("rendering manifest %q failed: %v %s", e.ManifestName, e.Err, templateErrorHint)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// IsTemplateError reports whether err is (or wraps) a TemplateError.
func IsTemplateError(err error) (*TemplateError, bool) {
	var e *TemplateError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// InvalidProjectSpecError is raised when manifestValues does not parse
// to a YAML mapping at its root (spec §3, §4.2).
type InvalidProjectSpecError struct {
	// ActualKind names the root kind found instead of a mapping:
	// "number", "null", "boolean", "string" or "array".
	ActualKind string
}

func (e *InvalidProjectSpecError) Error() string {
	return fmt.Sprintf("manifestValues must be a mapping at its root, got %s", e.ActualKind)
}

// IsInvalidProjectSpecError reports whether err is (or wraps) an
// InvalidProjectSpecError.
func IsInvalidProjectSpecError(err error) (*InvalidProjectSpecError, bool) {
	var e *InvalidProjectSpecError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ApplyFailureError is raised when the Manifest Applier gives up on one
// manifest: its retry budget is exhausted (spec §4.4 step 6), the API
// error is not retryable, or the manifest cannot be routed.
type ApplyFailureError struct {
	Path     string
	Attempts int
	Manifest string
	Err      error
}

func (e *ApplyFailureError) Error() string {
	return fmt.Sprintf("applying %s failed after %d attempts: %v\n--- manifest ---\n%s", e.Path, e.Attempts, e.Err, e.Manifest)
}

func (e *ApplyFailureError) Unwrap() error { return e.Err }

// IsApplyFailureError reports whether err is (or wraps) an ApplyFailureError.
func IsApplyFailureError(err error) (*ApplyFailureError, bool) {
	var e *ApplyFailureError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// WatchFailureError is raised by the Reconciler when looking a Project
// up in the shared informer's cache fails. WaitForChanges itself never
// raises it.
type WatchFailureError struct {
	ProjectName string
	Err         error
}

func (e *WatchFailureError) Error() string {
	return fmt.Sprintf("watch on project %q failed: %v", e.ProjectName, e.Err)
}

func (e *WatchFailureError) Unwrap() error { return e.Err }

// IsWatchFailureError reports whether err is (or wraps) a WatchFailureError.
func IsWatchFailureError(err error) (*WatchFailureError, bool) {
	var e *WatchFailureError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsUserError reports whether err belongs to one of the deterministic,
// user-correctable kinds spec §7 says should surface via admission
// Deny rather than be retried.
func IsUserError(err error) bool {
	if _, ok := IsNamespaceConflictError(err); ok {
		return true
	}
	if _, ok := IsSecretAccessDeniedError(err); ok {
		return true
	}
	if _, ok := IsSecretMissingError(err); ok {
		return true
	}
	if _, ok := IsItemMissingError(err); ok {
		return true
	}
	if _, ok := IsTemplateError(err); ok {
		return true
	}
	if _, ok := IsInvalidProjectSpecError(err); ok {
		return true
	}
	return false
}
