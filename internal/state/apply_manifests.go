package state

import (
	"context"
	"fmt"

	projectv1 "github.com/innoq/project-selfservice-operator/internal/apis/selfservice/v1"
	"github.com/innoq/project-selfservice-operator/internal/applier"
	"github.com/innoq/project-selfservice-operator/internal/manifest"
	"github.com/innoq/project-selfservice-operator/internal/selector"
)

type applyManifestsState struct{}

func (applyManifestsState) Name() Name { return ApplyManifests }

// Next implements spec §4.5 ApplyManifests: Selector → Renderer →
// Applier over the Project's full manifest set. Any failure
// transitions to Error with the captured diagnostic; total success
// advances to WaitForChanges.
func (applyManifestsState) Next(ctx context.Context, shared *Shared, pp *PerProject, project *projectv1.Project, specChanged bool) Outcome {
	items, err := selector.Resolve(ctx, shared.Kube, shared.SelectorConfig, project.Annotations)
	if err != nil {
		return errorOutcome(pp, err)
	}

	values, err := manifest.ParseManifestValues(project.Spec.ManifestValues)
	if err != nil {
		return errorOutcome(pp, err)
	}
	templateValues := manifest.BuildTemplateValues(values, project.Name, project.Spec.Owners)

	manifests := make([]applier.Manifest, 0, len(items))
	for _, item := range items {
		diagName := fmt.Sprintf("%s/%s", item.SecretName, item.DataItem)

		rendered, err := manifest.Render(diagName, item.Template, templateValues)
		if err != nil {
			return errorOutcome(pp, err)
		}

		obj, err := manifest.Decode(diagName, rendered)
		if err != nil {
			return errorOutcome(pp, err)
		}

		manifests = append(manifests, applier.Manifest{Name: diagName, Obj: obj})
	}

	owner := applier.Owner{
		APIVersion: project.APIVersion,
		Kind:       project.Kind,
		Name:       project.Name,
		UID:        string(project.UID),
	}

	if _, err := shared.Applier.Apply(ctx, project.Name, owner, manifests, pp.AppliedOneShotResources); err != nil {
		return errorOutcome(pp, err)
	}

	return Outcome{Next: WaitForChanges, Projection: Projection{
		Phase: projectv1.PhaseApplyingManifests,
	}}
}
