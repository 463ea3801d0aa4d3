package state

import (
	"context"

	projectv1 "github.com/innoq/project-selfservice-operator/internal/apis/selfservice/v1"
)

type waitForChangesState struct{}

func (waitForChangesState) Name() Name { return WaitForChanges }

// Next implements spec §4.5 WaitForChanges. The spec describes this
// state as opening its own single-object watch; here that watch is
// the Reconciler's shared Project informer, which re-invokes Next
// whenever it observes a Modified event for this Project (specChanged)
// — the state itself stays idle (returns itself) otherwise, the same
// externally-observable behavior with the watch hoisted to the shared
// informer instead of duplicated per Project.
func (waitForChangesState) Next(ctx context.Context, shared *Shared, pp *PerProject, project *projectv1.Project, specChanged bool) Outcome {
	if specChanged {
		return Outcome{Next: CreateNamespace, Projection: Projection{
			Phase: projectv1.PhaseWaitingForChanges,
		}}
	}
	return Outcome{Next: WaitForChanges, Projection: Projection{
		Phase: projectv1.PhaseWaitingForChanges,
	}}
}
