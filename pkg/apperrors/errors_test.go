package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func newStatusError(status metav1.Status) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: status}
}

func TestNamespaceConflictError_Message(t *testing.T) {
	unowned := &NamespaceConflictError{ProjectName: "default"}
	assert.Equal(t, `can't create project: a namespace with name "default" already exists`, unowned.Error())

	owned := &NamespaceConflictError{ProjectName: "p1", Owned: true, OwnerName: "other"}
	assert.Contains(t, owned.Error(), "belongs to project")
}

func TestIsNamespaceConflictError_WrapsThroughFmt(t *testing.T) {
	base := &NamespaceConflictError{ProjectName: "p1"}
	wrapped := fmt.Errorf("reconcile: %w", base)

	got, ok := IsNamespaceConflictError(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "p1", got.ProjectName)
}

func TestTemplateError_CarriesHint(t *testing.T) {
	err := &TemplateError{ManifestName: "pod.yaml", Err: errors.New("map has no entry for key \"foo\"")}
	assert.Contains(t, err.Error(), "manifestValues in the project spec")
	assert.ErrorIs(t, err, err.Err)
}

func TestIsUserError(t *testing.T) {
	assert.True(t, IsUserError(&InvalidProjectSpecError{ActualKind: "number"}))
	assert.True(t, IsUserError(&SecretMissingError{SecretName: "x"}))
	assert.False(t, IsUserError(&ApplyFailureError{Path: "/api/v1/namespaces/p1/pods/foo"}))
	assert.False(t, IsUserError(errors.New("boom")))
}

func TestIsRetryableAPIError(t *testing.T) {
	assert.False(t, IsRetryableAPIError(nil))

	assert.True(t, IsRetryableAPIError(newStatusError(metav1.Status{Reason: metav1.StatusReasonTimeout, Code: 408})))
	assert.True(t, IsRetryableAPIError(newStatusError(metav1.Status{Reason: metav1.StatusReasonServiceUnavailable, Code: 503})))
	assert.True(t, IsRetryableAPIError(newStatusError(metav1.Status{Reason: metav1.StatusReasonTooManyRequests, Code: 429})))

	assert.False(t, IsRetryableAPIError(newStatusError(metav1.Status{Reason: metav1.StatusReasonForbidden, Code: 403})))
	assert.False(t, IsRetryableAPIError(newStatusError(metav1.Status{Reason: metav1.StatusReasonUnauthorized, Code: 401})))
	assert.False(t, IsRetryableAPIError(newStatusError(metav1.Status{Reason: metav1.StatusReasonBadRequest, Code: 400})))
}

func TestIsNetworkError_Nil(t *testing.T) {
	assert.False(t, IsNetworkError(nil))
}
