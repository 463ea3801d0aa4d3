// Package state implements the per-Project state machine (spec §4.5):
// CreateNamespace → ApplyManifests → WaitForChanges, with an Error
// sink that retries on a timer (unless a spec change interrupts it)
// and a terminal Released state entered on deletion. Each state's
// Next method consults the shared cluster state, decides the
// following state, and projects its own status onto the Project.
package state

import (
	"context"
	"time"

	projectv1 "github.com/innoq/project-selfservice-operator/internal/apis/selfservice/v1"
	"github.com/innoq/project-selfservice-operator/internal/applier"
	"github.com/innoq/project-selfservice-operator/internal/router"
	"github.com/innoq/project-selfservice-operator/internal/selector"
	"github.com/innoq/project-selfservice-operator/pkg/logger"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
)

// Name identifies one of the machine's states one-for-one with
// spec §4.5's table.
type Name string

const (
	CreateNamespace Name = "CreateNamespace"
	ApplyManifests  Name = "ApplyManifests"
	WaitForChanges  Name = "WaitForChanges"
	Error           Name = "Error"
	Released        Name = "Released"
)

// Shared is the cluster-wide handle every state's Next receives: the
// client, default namespace/bundle, retry delay (spec §4.6's "Shared
// State" component). Built once at startup and treated as read-only
// thereafter; the embedded client types are already safe for
// concurrent use, so no additional locking is needed here (spec §5).
type Shared struct {
	Kube       kubernetes.Interface
	Dynamic    dynamic.Interface
	Router     *router.Router
	Applier    *applier.Applier
	Log        logger.Logger
	RetryDelay time.Duration

	SelectorConfig selector.Config
}

// Projection is what a state contributes to the Project's
// status subresource after Next runs (spec §4.5's per-state status
// rules).
type Projection struct {
	Phase   projectv1.ProjectPhase
	Message string
	Summary string
}

// Outcome is the result of running one state's Next: the following
// state to enter, this iteration's status projection, and (on Error)
// the raw error driving status.message.
type Outcome struct {
	Next       Name
	Projection Projection
	// Err is the error that drove a transition into Error, nil for
	// every other outcome. The Reconciler inspects its concrete type
	// to decide which metric, if any, the failure counts against.
	Err error
}

// PerProject is the in-memory bookkeeping the Reconciler keeps per
// live Project across iterations (spec §4.6): immutable name, the
// last observed error text, and the apply-once path set.
type PerProject struct {
	Name                    string
	LastError               string
	AppliedOneShotResources map[string]bool
	// ErrorEnteredAt records when the Error state's Next last ran
	// without a spec change. Nothing reads it to time retries; the
	// Reconciler schedules the RetryWindow requeue itself.
	ErrorEnteredAt time.Time
}

// NewPerProject seeds bookkeeping for a Project first observed by the
// watch loop.
func NewPerProject(name string, appliedOneShot []string) *PerProject {
	applied := make(map[string]bool, len(appliedOneShot))
	for _, p := range appliedOneShot {
		applied[p] = true
	}
	return &PerProject{Name: name, AppliedOneShotResources: applied}
}

// State is implemented by each of the five named states.
type State interface {
	Name() Name
	// Next runs this state's logic for one reconcile iteration.
	// specChanged tells WaitForChanges/Error whether a Modified event
	// fired on project since this state was entered.
	Next(ctx context.Context, shared *Shared, pp *PerProject, project *projectv1.Project, specChanged bool) Outcome
}

// For looks up the State implementation for name.
func For(name Name) State {
	switch name {
	case CreateNamespace, "":
		return createNamespaceState{}
	case ApplyManifests:
		return applyManifestsState{}
	case WaitForChanges:
		return waitForChangesState{}
	case Error:
		return errorState{}
	case Released:
		return releasedState{}
	default:
		return createNamespaceState{}
	}
}
