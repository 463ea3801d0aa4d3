package crdinstall

import (
	"fmt"

	"github.com/innoq/project-selfservice-operator/pkg/constants"
	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

const webhookPath = "/validate/projects"

// ValidatingWebhookConfig builds the ValidatingWebhookConfiguration
// that routes Project CREATE/UPDATE admission requests to the
// operator's webhook service (spec §6's "standard Kubernetes
// MutatingWebhookConfiguration interface; the webhook acts as
// validating-only" — built from the admissionregistration/v1
// validating type since nothing here mutates).
func ValidatingWebhookConfig(name, namespace string, caBundle []byte) *admissionregistrationv1.ValidatingWebhookConfiguration {
	path := webhookPath
	policy := admissionregistrationv1.Fail
	sideEffects := admissionregistrationv1.SideEffectClassNone

	return &admissionregistrationv1.ValidatingWebhookConfiguration{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "admissionregistration.k8s.io/v1",
			Kind:       "ValidatingWebhookConfiguration",
		},
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Webhooks: []admissionregistrationv1.ValidatingWebhook{
			{
				Name: fmt.Sprintf("projects.%s.%s.svc", name, namespace),
				ClientConfig: admissionregistrationv1.WebhookClientConfig{
					Service: &admissionregistrationv1.ServiceReference{
						Name:      name,
						Namespace: namespace,
						Path:      &path,
					},
					CABundle: caBundle,
				},
				Rules: []admissionregistrationv1.RuleWithOperations{
					{
						Operations: []admissionregistrationv1.OperationType{
							admissionregistrationv1.Create,
							admissionregistrationv1.Update,
						},
						Rule: admissionregistrationv1.Rule{
							APIGroups:   []string{constants.GroupName},
							APIVersions: []string{constants.Version},
							Resources:   []string{constants.Plural},
						},
					},
				},
				FailurePolicy:           &policy,
				SideEffects:             &sideEffects,
				AdmissionReviewVersions: []string{"v1"},
			},
		},
	}
}

// PrintAdmissionManifests renders the ValidatingWebhookConfiguration
// as YAML, for --print-admission-manifests. caBundle is left empty in
// the printed form, and nothing in the operator fills it in: neither
// --install-crd nor serve creates or updates the webhook configuration.
func PrintAdmissionManifests(serviceName, namespace string) (string, error) {
	vwc := ValidatingWebhookConfig(serviceName, namespace, nil)
	out, err := yaml.Marshal(vwc)
	if err != nil {
		return "", fmt.Errorf("marshalling validating webhook configuration: %w", err)
	}
	return string(out), nil
}
