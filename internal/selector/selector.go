// Package selector implements the Manifest Selector (spec §4.3): it
// turns a Project's copy/skip annotations into the ordered list of
// (secretName, dataItem) references the Renderer and Applier will
// process, and fetches the referenced Secrets, enforcing that only
// operator-access-annotated Secrets may be read.
package selector

import (
	"context"
	"sort"
	"strings"

	"github.com/innoq/project-selfservice-operator/pkg/apperrors"
	"github.com/innoq/project-selfservice-operator/pkg/constants"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Reference identifies a manifest bundle, optionally narrowed to one
// data item within it (spec's ManifestReference, §3).
type Reference struct {
	SecretName string
	// DataItem is empty when the reference denotes every item in the
	// secret.
	DataItem string
}

// matches reports whether other is the same secret, and (when o names
// an item) the same item too. It implements the skip-matching rule of
// spec §4.3 step 4: a skip with no item matches every item of that
// secret.
func (o Reference) matches(other Reference) bool {
	if o.SecretName != other.SecretName {
		return false
	}
	if o.DataItem == "" {
		return true
	}
	return o.DataItem == other.DataItem
}

// Item is one resolved (secret, data item) pair together with its raw
// template text, ready for the Renderer.
type Item struct {
	SecretName string
	DataItem   string
	Template   string
}

// ParseAnnotations splits a Project's annotation map into copy and
// skip Reference lists, per spec §4.3 rules 2-3. Only annotations
// under constants.AnnotationPrefix that are not the apply/operator-access
// annotations are considered; others are ignored. Annotation iteration
// order is not guaranteed by Go maps, so results are sorted by key to
// keep the copy/skip lists deterministic before the DefaultBundle seed
// is prepended.
func ParseAnnotations(annotations map[string]string) (copyRefs, skipRefs []Reference) {
	prefix := constants.AnnotationPrefix + "/"

	keys := make([]string, 0, len(annotations))
	for k := range annotations {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if rest == "operator-access" {
			continue
		}

		value := annotations[key]
		ref := parseReference(rest)

		switch value {
		case constants.AnnotationValueCopy:
			copyRefs = append(copyRefs, ref)
		case constants.AnnotationValueSkip:
			skipRefs = append(skipRefs, ref)
		}
	}

	return copyRefs, skipRefs
}

// parseReference splits "<secret>[.<item>]" on the first dot: secret
// names may not contain dots, item names may (spec §4.3 rule 2).
func parseReference(rest string) Reference {
	if idx := strings.Index(rest, "."); idx >= 0 {
		return Reference{SecretName: rest[:idx], DataItem: rest[idx+1:]}
	}
	return Reference{SecretName: rest}
}

// Config carries the operator's default-bundle configuration into the
// Selector (spec §3 DefaultBundle, §4.3 rule 1).
type Config struct {
	DefaultNamespace       string
	DefaultManifestsSecret string
}

// Resolve computes the final ordered list of manifest Items for a
// Project: seed the copy list with the DefaultBundle, append its
// annotation-driven copy references, drop anything matched by a skip
// reference, then fetch and expand what remains (spec §4.3 rules 1-4).
//
// Annotation-referenced secrets are looked up in cfg.DefaultNamespace,
// the same namespace as the default bundle, since Projects themselves
// are cluster-scoped and have no namespace of their own.
func Resolve(ctx context.Context, client kubernetes.Interface, cfg Config, annotations map[string]string) ([]Item, error) {
	copyRefs, skipRefs := ParseAnnotations(annotations)

	seeded := make([]Reference, 0, len(copyRefs)+1)
	seeded = append(seeded, Reference{SecretName: cfg.DefaultManifestsSecret})
	seeded = append(seeded, copyRefs...)

	var items []Item
	for _, ref := range seeded {
		if skippedBy(ref, skipRefs) {
			continue
		}

		secret, err := fetchSecret(ctx, client, cfg.DefaultNamespace, ref.SecretName)
		if err != nil {
			return nil, err
		}

		expanded, err := expand(secret, ref, skipRefs)
		if err != nil {
			return nil, err
		}
		items = append(items, expanded...)
	}

	return items, nil
}

func skippedBy(ref Reference, skipRefs []Reference) bool {
	for _, skip := range skipRefs {
		if skip.matches(ref) {
			return true
		}
	}
	return false
}

func fetchSecret(ctx context.Context, client kubernetes.Interface, namespace, name string) (*corev1.Secret, error) {
	secret, err := client.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		annotationName := constants.AnnotationPrefix + "/" + name
		return nil, &apperrors.SecretMissingError{
			SecretName: name,
			Namespace:  namespace,
			Annotation: annotationName,
			Err:        err,
		}
	}

	if secret.Annotations[constants.OperatorAccessAnnotation] != constants.OperatorAccessGrant {
		return nil, &apperrors.SecretAccessDeniedError{
			SecretName: name,
			Namespace:  namespace,
			Annotation: constants.OperatorAccessAnnotation,
		}
	}

	return secret, nil
}

// expand turns one resolved secret reference into its Items: either
// the single named data item, or every item in iteration order minus
// per-item skips (spec §4.3 rule 4's "expand" step).
func expand(secret *corev1.Secret, ref Reference, skipRefs []Reference) ([]Item, error) {
	annotationName := constants.AnnotationPrefix + "/" + ref.SecretName
	if ref.DataItem != "" {
		annotationName = constants.AnnotationPrefix + "/" + ref.SecretName + "." + ref.DataItem
	}

	if ref.DataItem != "" {
		data, ok := secret.Data[ref.DataItem]
		if !ok {
			return nil, &apperrors.ItemMissingError{
				SecretName: ref.SecretName,
				Namespace:  secret.Namespace,
				Item:       ref.DataItem,
				Annotation: annotationName,
			}
		}
		return []Item{{SecretName: ref.SecretName, DataItem: ref.DataItem, Template: string(data)}}, nil
	}

	keys := make([]string, 0, len(secret.Data))
	for k := range secret.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var items []Item
	for _, item := range keys {
		itemRef := Reference{SecretName: ref.SecretName, DataItem: item}
		if skippedBy(itemRef, skipRefs) {
			continue
		}
		items = append(items, Item{SecretName: ref.SecretName, DataItem: item, Template: string(secret.Data[item])})
	}
	return items, nil
}
