package reconciler

import (
	"fmt"

	"github.com/innoq/project-selfservice-operator/internal/applier"
	"github.com/innoq/project-selfservice-operator/internal/config"
	"github.com/innoq/project-selfservice-operator/internal/router"
	"github.com/innoq/project-selfservice-operator/internal/selector"
	"github.com/innoq/project-selfservice-operator/internal/state"
	"github.com/innoq/project-selfservice-operator/pkg/health"
	"github.com/innoq/project-selfservice-operator/pkg/logger"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// BuildShared wires the cluster clients, the Resource Router and the
// Manifest Applier into the read-only handle every Project's state
// machine shares (spec §4.6). It is assembled exactly once at startup;
// none of its fields are mutated afterward, so unlike the teacher's
// Options/Operator split it needs no guarding mutex of its own — the
// embedded client-go types are already safe for concurrent reads.
func BuildShared(restCfg *rest.Config, cfg *config.Config, log logger.Logger, metrics *health.MetricsServer) (*state.Shared, dynamic.Interface, error) {
	kube, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("building kubernetes clientset: %w", err)
	}

	dyn, err := dynamic.NewForConfig(restCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("building dynamic client: %w", err)
	}

	rtr := router.New(kube.Discovery(), dyn)

	onRetry := func(project string) {
		if metrics != nil {
			metrics.RecordApplyRetry(project)
		}
	}

	retryDelay := cfg.ManifestRetryDelay
	a := applier.New(rtr, log, retryDelay, onRetry)

	shared := &state.Shared{
		Kube:       kube,
		Dynamic:    dyn,
		Router:     rtr,
		Applier:    a,
		Log:        log,
		RetryDelay: retryDelay,
		SelectorConfig: selector.Config{
			DefaultNamespace:       cfg.DefaultNamespace,
			DefaultManifestsSecret: cfg.DefaultManifestsSecret,
		},
	}

	return shared, dyn, nil
}
