package state

import (
	"context"
	"time"

	projectv1 "github.com/innoq/project-selfservice-operator/internal/apis/selfservice/v1"
	"github.com/innoq/project-selfservice-operator/pkg/constants"
)

type errorState struct{}

func (errorState) Name() Name { return Error }

// Next implements spec §4.5 Error: stays in Error, re-checked after a
// 60s window, unless a spec change was observed in the meantime, in
// which case the loop restarts from CreateNamespace. The Reconciler is
// responsible for honoring this 60s delay as an interruptible sleep
// (cancelable by specChanged) rather than Next blocking here — Next
// must not block the loop (spec §5).
func (errorState) Next(ctx context.Context, shared *Shared, pp *PerProject, project *projectv1.Project, specChanged bool) Outcome {
	if specChanged {
		pp.LastError = ""
		return Outcome{Next: CreateNamespace, Projection: Projection{
			Phase: projectv1.PhaseWaitingForChanges,
		}}
	}

	pp.ErrorEnteredAt = time.Now()
	return Outcome{Next: Error, Projection: Projection{
		Phase:   projectv1.PhaseFailedDueToError,
		Message: pp.LastError,
		Summary: truncateSummary(pp.LastError),
	}}
}

// RetryWindow is the Error state's re-entry delay absent an observed
// spec change (spec §4.5).
const RetryWindow = time.Duration(constants.ErrorStateRetryDelaySeconds) * time.Second
