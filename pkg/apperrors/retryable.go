package apperrors

import (
	"errors"
	"net"
	"syscall"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	utilnet "k8s.io/apimachinery/pkg/util/net"
)

// IsNetworkError reports whether err is a network-level failure
// (connection refused/reset, timeout, unreachable host, broken pipe).
// Adapted verbatim from the teacher's pkg/errors/network_error.go —
// the classification logic is domain-agnostic.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	if utilnet.IsConnectionRefused(err) ||
		utilnet.IsConnectionReset(err) ||
		utilnet.IsTimeout(err) ||
		utilnet.IsProbableEOF(err) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH, syscall.ECONNABORTED, syscall.EPIPE:
			return true
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return IsNetworkError(opErr.Err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// IsRetryableAPIError determines whether a failure from the Kubernetes
// API server (during discovery, apply, or watch) is transient and
// worth retrying, or fatal and should surface immediately. Mirrors the
// teacher's IsRetryableDiscoveryError classification (pkg/errors/k8s_error.go),
// reused unchanged here for the Applier's retry loop (spec §4.4), its
// only caller, which needs the same retryable/fatal split the
// teacher's discovery calls needed.
func IsRetryableAPIError(err error) bool {
	if err == nil {
		return false
	}

	if apierrors.IsTimeout(err) ||
		apierrors.IsServerTimeout(err) ||
		apierrors.IsServiceUnavailable(err) ||
		apierrors.IsInternalError(err) ||
		apierrors.IsTooManyRequests(err) {
		return true
	}

	if apierrors.IsForbidden(err) ||
		apierrors.IsUnauthorized(err) ||
		apierrors.IsBadRequest(err) ||
		apierrors.IsInvalid(err) ||
		apierrors.IsGone(err) ||
		apierrors.IsMethodNotSupported(err) ||
		apierrors.IsNotAcceptable(err) {
		return false
	}

	if IsNetworkError(err) {
		return true
	}

	return false
}
