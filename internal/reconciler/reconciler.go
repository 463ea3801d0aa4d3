// Package reconciler drives the Project state machine (spec §4.5-§5):
// a shared informer watches every Project, enqueues its name on
// add/update/delete, and a pool of workers pop names off a rate-limited
// queue and advance each Project's state machine by exactly one step
// per dequeue. The workqueue's per-key single-flight guarantee is what
// gives the "no two next executions overlap for the same Project"
// invariant (spec §5) without any locking of our own; across distinct
// Projects, workers run fully concurrently, matching the spec's "no
// ordering promised across Projects".
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	projectv1 "github.com/innoq/project-selfservice-operator/internal/apis/selfservice/v1"
	"github.com/innoq/project-selfservice-operator/internal/state"
	"github.com/innoq/project-selfservice-operator/pkg/apperrors"
	"github.com/innoq/project-selfservice-operator/pkg/constants"
	"github.com/innoq/project-selfservice-operator/pkg/health"
	"github.com/innoq/project-selfservice-operator/pkg/logger"
	"go.opentelemetry.io/otel"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/dynamic/dynamicinformer"
	"k8s.io/client-go/tools/cache"
	"k8s.io/client-go/util/workqueue"
)

const tracerName = "project-selfservice-operator/reconciler"

var projectGVR = schema.GroupVersionResource{
	Group:    constants.GroupName,
	Version:  constants.Version,
	Resource: constants.Plural,
}

// Reconciler owns the Project informer, the work queue, and the
// per-Project bookkeeping the state machine needs across iterations.
type Reconciler struct {
	shared  *state.Shared
	dyn     dynamic.Interface
	log     logger.Logger
	metrics *health.MetricsServer

	informer cache.SharedIndexInformer
	queue    workqueue.RateLimitingInterface

	mu       sync.Mutex
	current  map[string]state.Name
	projects map[string]*state.PerProject
	changed  map[string]bool
}

// New builds a Reconciler. shared is the cluster-wide handle every
// state's Next receives; dyn is the dynamic client the Project
// informer watches through (there is no generated typed clientset for
// this hand-written API, matching spec §9's "no generated schema" note).
func New(shared *state.Shared, dyn dynamic.Interface, log logger.Logger, metrics *health.MetricsServer) *Reconciler {
	factory := dynamicinformer.NewDynamicSharedInformerFactory(dyn, 10*time.Minute)
	informer := factory.ForResource(projectGVR).Informer()

	r := &Reconciler{
		shared:   shared,
		dyn:      dyn,
		log:      log,
		metrics:  metrics,
		informer: informer,
		queue:    workqueue.NewRateLimitingQueue(workqueue.DefaultControllerRateLimiter()),
		current:  make(map[string]state.Name),
		projects: make(map[string]*state.PerProject),
		changed:  make(map[string]bool),
	}

	informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: r.enqueue,
		UpdateFunc: func(oldObj, newObj interface{}) {
			if generationChanged(oldObj, newObj) {
				r.markChanged(newObj)
			}
			r.enqueue(newObj)
		},
		DeleteFunc: r.enqueue,
	})

	return r
}

func (r *Reconciler) enqueue(obj interface{}) {
	key, err := cache.DeletionHandlingMetaNamespaceKeyFunc(obj)
	if err != nil {
		utilruntime.HandleError(err)
		return
	}
	r.queue.Add(key)
}

// generationChanged reports whether the Update event's objects
// disagree on metadata.generation, which the API server bumps only on
// a spec change — the informer's periodic resync re-delivers
// unchanged objects as Update events too, and those must not be
// mistaken for the "observed Modified event" the WaitForChanges and
// Error states react to.
func generationChanged(oldObj, newObj interface{}) bool {
	oldAcc, err1 := meta(oldObj)
	newAcc, err2 := meta(newObj)
	if err1 != nil || err2 != nil {
		return true
	}
	return oldAcc.GetGeneration() != newAcc.GetGeneration()
}

func meta(obj interface{}) (metav1.Object, error) {
	u, ok := obj.(*unstructured.Unstructured)
	if !ok {
		return nil, fmt.Errorf("unexpected informer object type %T", obj)
	}
	return u, nil
}

func (r *Reconciler) markChanged(obj interface{}) {
	key, err := cache.MetaNamespaceKeyFunc(obj)
	if err != nil {
		return
	}
	r.mu.Lock()
	r.changed[key] = true
	r.mu.Unlock()
}

func (r *Reconciler) consumeChanged(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := r.changed[name]
	delete(r.changed, name)
	return changed
}

func (r *Reconciler) stateFor(name string) (state.Name, *state.PerProject) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.current[name]
	if !ok {
		cur = state.CreateNamespace
	}
	pp, ok := r.projects[name]
	if !ok {
		pp = state.NewPerProject(name, nil)
		r.projects[name] = pp
	}
	return cur, pp
}

func (r *Reconciler) setState(name string, next state.Name) {
	r.mu.Lock()
	r.current[name] = next
	r.mu.Unlock()
}

func (r *Reconciler) forget(name string) {
	r.mu.Lock()
	delete(r.current, name)
	delete(r.projects, name)
	delete(r.changed, name)
	r.mu.Unlock()
}

// Run starts the informer, waits for its cache to sync, then runs
// workers workers until ctx is canceled. It blocks until every worker
// has exited.
func (r *Reconciler) Run(ctx context.Context, workers int) error {
	defer utilruntime.HandleCrash()

	go r.informer.Run(ctx.Done())

	r.log.Info(ctx, "waiting for project informer cache to sync")
	if !cache.WaitForCacheSync(ctx.Done(), r.informer.HasSynced) {
		return fmt.Errorf("timed out waiting for project informer cache to sync")
	}
	r.log.Info(ctx, "project informer cache sync complete")

	go func() {
		<-ctx.Done()
		r.queue.ShutDown()
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r.processNextItem(ctx) {
			}
		}()
	}
	wg.Wait()
	return nil
}

func (r *Reconciler) processNextItem(ctx context.Context) bool {
	key, quit := r.queue.Get()
	if quit {
		return false
	}
	defer r.queue.Done(key)

	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := r.sync(callCtx, key.(string)); err != nil {
		utilruntime.HandleError(fmt.Errorf("reconcile of project %q failed: %w", key, err))
		r.queue.AddRateLimited(key)
		return true
	}
	r.queue.Forget(key)
	return true
}

// sync runs exactly one state transition for the named Project, then
// decides whether to requeue immediately (the state machine has more
// work to do in this observation) or let the next queue entry come
// from a watch event or the Error state's retry timer.
func (r *Reconciler) sync(ctx context.Context, name string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Reconcile")
	defer span.End()
	ctx = logger.WithOTelTraceContext(ctx)
	ctx = logger.WithResourceType(ctx, "Project")
	ctx = logger.WithResourceName(ctx, name)

	obj, exists, err := r.informer.GetIndexer().GetByKey(name)
	if err != nil {
		return &apperrors.WatchFailureError{ProjectName: name, Err: err}
	}
	if !exists {
		r.log.Infof(ctx, "project %q deleted, releasing bookkeeping", name)
		r.forget(name)
		return nil
	}

	u := obj.(*unstructured.Unstructured)
	project, err := toProject(u)
	if err != nil {
		return fmt.Errorf("decoding project %q: %w", name, err)
	}

	ctx = logger.WithObservedGeneration(ctx, project.Generation)

	curName, pp := r.stateFor(name)

	if project.DeletionTimestamp != nil {
		return r.release(ctx, name, u, pp, project)
	}

	if !hasFinalizer(u, constants.ProjectFinalizer) {
		if err := r.addFinalizer(ctx, u); err != nil {
			return fmt.Errorf("adding finalizer to project %q: %w", name, err)
		}
	}

	specChanged := r.consumeChanged(name)

	start := time.Now()
	outcome := state.For(curName).Next(ctx, r.shared, pp, project, specChanged)
	duration := time.Since(start)

	if r.metrics != nil {
		r.metrics.RecordReconcile(string(outcome.Next), string(curName), duration)
		if _, ok := apperrors.IsApplyFailureError(outcome.Err); ok {
			r.metrics.RecordApplyFailure(name)
		}
	}

	r.setState(name, outcome.Next)

	resultCtx := logger.WithResourceResult(ctx, string(outcome.Next))
	if err := r.writeStatus(resultCtx, project, pp, outcome); err != nil {
		errCtx := logger.WithErrorAndStack(resultCtx, err)
		r.log.Errorf(errCtx, "failed to write status for project %q", name)
	}

	switch outcome.Next {
	case state.WaitForChanges, state.Released:
		// stable: wait for the next watch event (or, for Released,
		// nothing further happens).
	case state.Error:
		r.queue.AddAfter(name, state.RetryWindow)
	default:
		// CreateNamespace / ApplyManifests: more work to do in this
		// observation, keep pumping without waiting for a watch event.
		r.queue.Add(name)
	}

	return nil
}

// release drives a Project with a non-nil DeletionTimestamp into
// Released (spec §4.5), writes the resulting status, then removes the
// finalizer so the API server completes the delete. The next informer
// event for name is the genuine delete, handled by sync's !exists
// branch, which forgets the bookkeeping release already retired.
func (r *Reconciler) release(ctx context.Context, name string, u *unstructured.Unstructured, pp *state.PerProject, project *projectv1.Project) error {
	outcome := state.For(state.Released).Next(ctx, r.shared, pp, project, false)
	r.setState(name, outcome.Next)

	resultCtx := logger.WithResourceResult(ctx, string(outcome.Next))
	if err := r.writeStatus(resultCtx, project, pp, outcome); err != nil {
		errCtx := logger.WithErrorAndStack(resultCtx, err)
		r.log.Errorf(errCtx, "failed to write status for project %q", name)
	}

	if hasFinalizer(u, constants.ProjectFinalizer) {
		if err := r.removeFinalizer(ctx, name); err != nil {
			return fmt.Errorf("removing finalizer from project %q: %w", name, err)
		}
	}

	r.forget(name)
	return nil
}

func hasFinalizer(u *unstructured.Unstructured, name string) bool {
	for _, f := range u.GetFinalizers() {
		if f == name {
			return true
		}
	}
	return false
}

// addFinalizer registers constants.ProjectFinalizer on the Project so
// the API server defers the actual delete until release has run.
func (r *Reconciler) addFinalizer(ctx context.Context, u *unstructured.Unstructured) error {
	updated := u.DeepCopy()
	updated.SetFinalizers(append(updated.GetFinalizers(), constants.ProjectFinalizer))
	_, err := r.dyn.Resource(projectGVR).Update(ctx, updated, metav1.UpdateOptions{FieldManager: constants.FieldManager})
	return err
}

// removeFinalizer drops constants.ProjectFinalizer, letting a pending
// delete complete. It re-fetches rather than working off the cached
// object since writeStatus may have advanced the resourceVersion.
func (r *Reconciler) removeFinalizer(ctx context.Context, name string) error {
	current, err := r.dyn.Resource(projectGVR).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return err
	}

	kept := make([]string, 0, len(current.GetFinalizers()))
	for _, f := range current.GetFinalizers() {
		if f != constants.ProjectFinalizer {
			kept = append(kept, f)
		}
	}
	current.SetFinalizers(kept)

	_, err = r.dyn.Resource(projectGVR).Update(ctx, current, metav1.UpdateOptions{FieldManager: constants.FieldManager})
	return err
}

func toProject(u *unstructured.Unstructured) (*projectv1.Project, error) {
	project := &projectv1.Project{}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(u.Object, project); err != nil {
		return nil, err
	}
	return project, nil
}

// writeStatus patches the Project's status subresource with this
// iteration's Projection plus the apply-once bookkeeping accumulated
// on pp (spec §3).
func (r *Reconciler) writeStatus(ctx context.Context, project *projectv1.Project, pp *state.PerProject, outcome state.Outcome) error {
	applied := make([]string, 0, len(pp.AppliedOneShotResources))
	for path, ok := range pp.AppliedOneShotResources {
		if ok {
			applied = append(applied, path)
		}
	}

	status := map[string]interface{}{
		"phase":                   string(outcome.Projection.Phase),
		"message":                 outcome.Projection.Message,
		"summary":                 outcome.Projection.Summary,
		"appliedOneShotResources": applied,
	}

	current, err := r.dyn.Resource(projectGVR).Get(ctx, project.Name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return err
	}

	if err := unstructured.SetNestedField(current.Object, status["phase"], "status", "phase"); err != nil {
		return err
	}
	if err := unstructured.SetNestedField(current.Object, status["message"], "status", "message"); err != nil {
		return err
	}
	if err := unstructured.SetNestedField(current.Object, status["summary"], "status", "summary"); err != nil {
		return err
	}
	if err := unstructured.SetNestedStringSlice(current.Object, applied, "status", "appliedOneShotResources"); err != nil {
		return err
	}

	_, err = r.dyn.Resource(projectGVR).UpdateStatus(ctx, current, metav1.UpdateOptions{FieldManager: constants.FieldManager})
	return err
}
