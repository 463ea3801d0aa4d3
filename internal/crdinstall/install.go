// Package crdinstall embeds the Project CustomResourceDefinition and
// a sample manifest, installs the CRD into a cluster for --install-crd,
// and renders the operator's printable manifests (spec §6's
// printCRD/printSampleManifest/printAdmissionManifests modes). The CRD
// schema is hand-authored, not generated from internal/apis/selfservice/v1's
// Go structs — an explicit non-goal (spec §9) — so it stays a fixed
// YAML asset the Go types must remain compatible with, not the other
// way around.
package crdinstall

import (
	"context"
	_ "embed"
	"fmt"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apiextensionsclientset "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/yaml"
)

//go:embed crd.yaml
var crdYAML []byte

//go:embed sample-project.yaml
var sampleProjectYAML []byte

// PrintCRD returns the Project CRD's YAML text, for --print-crd.
func PrintCRD() string {
	return string(crdYAML)
}

// PrintSampleManifest returns an example Project manifest's YAML
// text, for --print-sample-manifest.
func PrintSampleManifest() string {
	return string(sampleProjectYAML)
}

// Install idempotently creates or updates the Project CRD in the
// cluster the given REST config points at, for --install-crd.
func Install(ctx context.Context, restCfg *rest.Config) error {
	client, err := apiextensionsclientset.NewForConfig(restCfg)
	if err != nil {
		return fmt.Errorf("building apiextensions client: %w", err)
	}

	var crd apiextensionsv1.CustomResourceDefinition
	if err := yaml.Unmarshal(crdYAML, &crd); err != nil {
		return fmt.Errorf("parsing embedded CRD YAML: %w", err)
	}

	crds := client.ApiextensionsV1().CustomResourceDefinitions()

	existing, err := crds.Get(ctx, crd.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err := crds.Create(ctx, &crd, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return fmt.Errorf("getting existing CRD %q: %w", crd.Name, err)
	}

	crd.ResourceVersion = existing.ResourceVersion
	_, err = crds.Update(ctx, &crd, metav1.UpdateOptions{})
	return err
}
