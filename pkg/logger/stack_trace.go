package logger

import (
	"context"
	"errors"
	"io"

	"github.com/innoq/project-selfservice-operator/pkg/apperrors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// -----------------------------------------------------------------------------
// Stack Trace Capture
// -----------------------------------------------------------------------------

// skipStackTraceCheckers lists error classes that are expected,
// high-frequency operational outcomes (a missing secret, a conflicting
// namespace, a transient API error) rather than bugs. Logging them
// with a full stack trace would be noise during normal operation and
// expensive during error storms; unrecognized errors still get one.
var skipStackTraceCheckers = []func(error) bool{
	func(err error) bool { return errors.Is(err, context.Canceled) },
	func(err error) bool { return errors.Is(err, context.DeadlineExceeded) },
	func(err error) bool { return errors.Is(err, io.EOF) },

	apperrors.IsNetworkError,
	apperrors.IsUserError,

	apierrors.IsNotFound,
	apierrors.IsConflict,
	apierrors.IsAlreadyExists,
	apierrors.IsForbidden,
	apierrors.IsUnauthorized,
	apierrors.IsInvalid,
	apierrors.IsBadRequest,
	apierrors.IsGone,
	apierrors.IsResourceExpired,
	apierrors.IsServiceUnavailable,
	apierrors.IsTimeout,
	apierrors.IsTooManyRequests,
}

// shouldCaptureStackTrace determines if a stack trace should be
// captured for the given error. Returns false for expected operational
// errors (high frequency, known causes) to avoid performance overhead
// during error storms. Returns true for unexpected errors that
// indicate bugs or require investigation.
func shouldCaptureStackTrace(err error) bool {
	if err == nil {
		return false
	}

	for _, check := range skipStackTraceCheckers {
		if check(err) {
			return false
		}
	}

	return true
}

// WithErrorAndStack returns a context with both the error message and,
// if shouldCaptureStackTrace considers it unexpected, a captured stack
// trace attached under StackTraceKey.
func WithErrorAndStack(ctx context.Context, err error) context.Context {
	ctx = WithErrorField(ctx, err)
	if err != nil && shouldCaptureStackTrace(err) {
		ctx = WithStackTraceField(ctx, CaptureStackTrace(1))
	}
	return ctx
}
