// Package applier implements the Manifest Applier (spec §4.4): for
// each rendered manifest it injects the owner reference, routes the
// object via internal/router, probes for existence, issues a
// server-side-apply PATCH or a plain POST, and retries transient
// failures with linear push-to-end-of-queue back-off up to a fixed
// attempt ceiling.
package applier

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/innoq/project-selfservice-operator/internal/manifest"
	"github.com/innoq/project-selfservice-operator/internal/router"
	"github.com/innoq/project-selfservice-operator/pkg/apperrors"
	"github.com/innoq/project-selfservice-operator/pkg/constants"
	"github.com/innoq/project-selfservice-operator/pkg/logger"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/yaml"
)

// linearBackOff implements backoff.BackOff with the spec's exact
// retry schedule (attempt N waits base*N, spec §4.4 step 6) — none of
// the policies backoff/v4 ships (constant, exponential) match that
// formula, so the interface is implemented directly rather than
// configured.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.base * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

var _ backoff.BackOff = (*linearBackOff)(nil)

// Owner identifies the Project every applied manifest is stamped
// with, via a single controller ownerReference (spec §3 invariant).
type Owner struct {
	APIVersion string
	Kind       string
	Name       string
	UID        string
}

func (o Owner) toOwnerReference() metav1.OwnerReference {
	return metav1.OwnerReference{
		APIVersion: o.APIVersion,
		Kind:       o.Kind,
		Name:       o.Name,
		UID:        types.UID(o.UID),
		Controller: ptr.To(true),
	}
}

// Manifest is one rendered manifest awaiting apply, paired with its
// decoded object.
type Manifest struct {
	Name string
	Obj  *unstructured.Unstructured
}

// Result reports the outcome of applying a Project's full manifest
// set.
type Result struct {
	// AppliedOneShotPaths lists the API paths newly added to the
	// Project's appliedOneShotResources set this iteration.
	AppliedOneShotPaths []string
}

// Applier drives the apply protocol for one Project's manifest set.
type Applier struct {
	router     *router.Router
	log        logger.Logger
	retryDelay time.Duration
	onRetry    func(project string)
}

// New builds an Applier. retryDelay is the base back-off
// (manifestRetryDelay in operator configuration); attempt N sleeps
// retryDelay*N before its retry pass (spec §4.4 step 6). onRetry, if
// non-nil, is called once per retry (each re-queued failed attempt)
// for metrics.
func New(r *router.Router, log logger.Logger, retryDelay time.Duration, onRetry func(project string)) *Applier {
	return &Applier{router: r, log: log, retryDelay: retryDelay, onRetry: onRetry}
}

// queued is one manifest still awaiting a successful apply, along
// with its attempt counter.
type queued struct {
	manifest Manifest
	attempts int
}

// Apply applies manifests in order, owning them to owner, honoring
// apply-once against alreadyApplied. It returns the updated set of
// apply-once paths applied this call, or an *apperrors.ApplyFailureError
// the first time a manifest cannot be routed, fails with a
// non-retryable API error, or exhausts MaxApplyAttempts. If ctx is
// cancelled during a back-off sleep it returns ctx.Err().
func (a *Applier) Apply(ctx context.Context, projectName string, owner Owner, manifests []Manifest, alreadyApplied map[string]bool) (*Result, error) {
	manifestText := func(m Manifest) string {
		if m.Obj == nil {
			return m.Name
		}
		out, err := yaml.Marshal(m.Obj.Object)
		if err != nil {
			return m.Name
		}
		return string(out)
	}

	queue := make([]queued, 0, len(manifests))
	for _, m := range manifests {
		queue = append(queue, queued{manifest: m})
	}

	result := &Result{}
	roundBackOff := &linearBackOff{base: a.retryDelay}
	lastAttemptThreshold := 0

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		route, err := a.router.Resolve(item.manifest.Obj)
		if err != nil {
			return result, &apperrors.ApplyFailureError{
				Path:     item.manifest.Name,
				Attempts: item.attempts + 1,
				Manifest: manifestText(item.manifest),
				Err:      err,
			}
		}

		if manifest.IsApplyOnce(item.manifest.Obj) && alreadyApplied[route.APIPath] {
			continue
		}

		item.manifest.Obj.SetOwnerReferences([]metav1.OwnerReference{owner.toOwnerReference()})

		err = a.applyOnce(ctx, route, item.manifest.Obj)
		if err == nil {
			if manifest.IsApplyOnce(item.manifest.Obj) && !alreadyApplied[route.APIPath] {
				alreadyApplied[route.APIPath] = true
				result.AppliedOneShotPaths = append(result.AppliedOneShotPaths, route.APIPath)
			}
			continue
		}

		item.attempts++
		if item.attempts >= constants.MaxApplyAttempts || !apperrors.IsRetryableAPIError(err) {
			return result, &apperrors.ApplyFailureError{
				Path:     route.APIPath,
				Attempts: item.attempts,
				Manifest: manifestText(item.manifest),
				Err:      err,
			}
		}

		if a.onRetry != nil {
			a.onRetry(projectName)
		}

		if item.attempts > lastAttemptThreshold {
			lastAttemptThreshold = item.attempts
			sleep := roundBackOff.NextBackOff()
			a.log.Infof(ctx, "apply of %s failed (attempt %d/%d), backing off %s before next pass",
				route.APIPath, item.attempts, constants.MaxApplyAttempts, sleep)
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(sleep):
			}
		}

		queue = append(queue, item)
	}

	return result, nil
}

// applyOnce performs the GET-then-PATCH(SSA)-or-POST protocol for a
// single manifest (spec §4.4 step 4).
func (a *Applier) applyOnce(ctx context.Context, route *router.Route, obj *unstructured.Unstructured) error {
	_, err := route.Resource.Get(ctx, obj.GetName(), metav1.GetOptions{})
	if err == nil {
		data, marshalErr := obj.MarshalJSON()
		if marshalErr != nil {
			return marshalErr
		}
		_, err = route.Resource.Patch(ctx, obj.GetName(), types.ApplyPatchType, data, metav1.PatchOptions{
			FieldManager: constants.FieldManager,
			Force:        ptr.To(true),
		})
		return err
	}

	if !apierrors.IsNotFound(err) {
		return err
	}

	_, err = route.Resource.Create(ctx, obj, metav1.CreateOptions{FieldManager: constants.FieldManager})
	return err
}
