package state

import (
	"context"
	"fmt"

	projectv1 "github.com/innoq/project-selfservice-operator/internal/apis/selfservice/v1"
)

type releasedState struct{}

func (releasedState) Name() Name { return Released }

// Next implements spec §4.5 Released: terminal, entered once the
// Reconciler observes the Project's DeletionTimestamp. Cascading
// deletion via owner references removes children; Released performs
// no cleanup of its own — the Reconciler removes the finalizer right
// after this runs, letting the API server complete the delete.
func (releasedState) Next(ctx context.Context, shared *Shared, pp *PerProject, project *projectv1.Project, specChanged bool) Outcome {
	return Outcome{Next: Released, Projection: Projection{
		Phase:   projectv1.PhaseReleased,
		Message: fmt.Sprintf("project %q released", project.Name),
		Summary: fmt.Sprintf("project %q released", project.Name),
	}}
}
