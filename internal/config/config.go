// Package config loads the operator's process-wide configuration
// (spec §6): the handful of options that control where the default
// manifest bundle lives, how aggressively apply retries back off, and
// which one-shot CLI mode (if any) to run instead of serving.
package config

import (
	"strings"
	"time"

	"github.com/innoq/project-selfservice-operator/pkg/constants"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for every environment variable that can
// override operator configuration, e.g. PROJECT_OPERATOR_VERBOSITY.
const EnvPrefix = "PROJECT_OPERATOR"

// Config holds the operator's process-wide configuration (spec §6).
type Config struct {
	// DefaultNamespace is where the default-bundle secret and the
	// admission webhook's serving secret live.
	DefaultNamespace string `mapstructure:"defaultNamespace"`
	// DefaultManifestsSecret names the default-bundle secret.
	DefaultManifestsSecret string `mapstructure:"defaultManifestsSecret"`
	// ManifestRetryDelay is the base back-off between apply retries;
	// attempt N waits ManifestRetryDelay*N (spec §4.4).
	ManifestRetryDelay time.Duration `mapstructure:"manifestRetryDelay"`
	// Verbosity is one of debug, info, warn, error.
	Verbosity string `mapstructure:"verbosity"`

	// KubeconfigPath overrides in-cluster config discovery, for
	// running the operator against an out-of-cluster API server.
	KubeconfigPath string `mapstructure:"kubeconfig"`

	// WebhookTLSCertFile / WebhookTLSKeyFile locate the serving
	// certificate the admission webhook's HTTPS listener presents.
	WebhookTLSCertFile string `mapstructure:"webhookTLSCertFile"`
	WebhookTLSKeyFile  string `mapstructure:"webhookTLSKeyFile"`
	WebhookPort        string `mapstructure:"webhookPort"`

	HealthPort  string `mapstructure:"healthPort"`
	MetricsPort string `mapstructure:"metricsPort"`

	// One-shot modes: when any of these is set, serve does not run.
	InstallCRD              bool   `mapstructure:"installCRD"`
	PrintCRD                bool   `mapstructure:"printCRD"`
	PrintSampleManifest     bool   `mapstructure:"printSampleManifest"`
	PrintAdmissionManifests bool   `mapstructure:"printAdmissionManifests"`
	TestManifestTemplate    string `mapstructure:"testManifestTemplate"`
}

// defaults mirrors the table in spec §6.
func defaults() Config {
	return Config{
		DefaultNamespace:       "project-selfservice",
		DefaultManifestsSecret: constants.DefaultManifestsSecretName,
		ManifestRetryDelay:     2 * time.Second,
		Verbosity:              "info",
		WebhookPort:            "8443",
		HealthPort:             "8080",
		MetricsPort:            "9090",
	}
}

// Load builds a Config from defaults, overridden by environment
// variables (PROJECT_OPERATOR_*) and finally by any flags the caller
// changed on flags. Priority: flags > env > defaults, matching the
// precedence the adapter's viper loader used.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))

	def := defaults()
	if err := v.MergeConfigMap(map[string]interface{}{
		"defaultNamespace":       def.DefaultNamespace,
		"defaultManifestsSecret": def.DefaultManifestsSecret,
		"manifestRetryDelay":     def.ManifestRetryDelay.String(),
		"verbosity":              def.Verbosity,
		"webhookPort":            def.WebhookPort,
		"healthPort":             def.HealthPort,
		"metricsPort":            def.MetricsPort,
	}); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("::", "_", "-", "_"))

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, err
		}
		for flagName, key := range flagAliases {
			v.RegisterAlias(key, flagName)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// viper.Unmarshal doesn't reliably coerce a duration string sourced
	// from MergeConfigMap into time.Duration; read it explicitly.
	if d := v.GetDuration("manifestRetryDelay"); d > 0 {
		cfg.ManifestRetryDelay = d
	}

	return &cfg, nil
}

// flagAliases maps each dashed CLI flag name to the camelCase config
// key it feeds, since viper's BindPFlags registers flags under their
// literal name and Unmarshal otherwise wouldn't connect "default-namespace"
// to the Config.DefaultNamespace field's "defaultNamespace" tag.
var flagAliases = map[string]string{
	"default-namespace":         "defaultNamespace",
	"default-manifests-secret":  "defaultManifestsSecret",
	"manifest-retry-delay":      "manifestRetryDelay",
	"verbosity":                 "verbosity",
	"kubeconfig":                "kubeconfig",
	"webhook-tls-cert-file":     "webhookTLSCertFile",
	"webhook-tls-key-file":      "webhookTLSKeyFile",
	"webhook-port":              "webhookPort",
	"health-port":               "healthPort",
	"metrics-port":              "metricsPort",
	"install-crd":               "installCRD",
	"print-crd":                 "printCRD",
	"print-sample-manifest":     "printSampleManifest",
	"print-admission-manifests": "printAdmissionManifests",
	"test-manifest-template":    "testManifestTemplate",
}

// RegisterFlags adds the operator's CLI flags to flags, letting cobra
// commands share a single flag set. The one-shot print/install/test
// modes are flags on "serve", not subcommands of their own.
func RegisterFlags(flags *pflag.FlagSet) {
	d := defaults()
	flags.String("default-namespace", d.DefaultNamespace, "Namespace holding the default manifest bundle and webhook TLS secret")
	flags.String("default-manifests-secret", d.DefaultManifestsSecret, "Name of the default-bundle Secret")
	flags.Duration("manifest-retry-delay", d.ManifestRetryDelay, "Base back-off between manifest apply retries")
	flags.String("verbosity", d.Verbosity, "Log level: debug, info, warn, error")
	flags.String("kubeconfig", "", "Path to a kubeconfig file (defaults to in-cluster config)")
	flags.String("webhook-tls-cert-file", "", "Path to the admission webhook's TLS certificate")
	flags.String("webhook-tls-key-file", "", "Path to the admission webhook's TLS private key")
	flags.String("webhook-port", d.WebhookPort, "Port the admission webhook listens on")
	flags.String("health-port", d.HealthPort, "Port serving /healthz and /readyz")
	flags.String("metrics-port", d.MetricsPort, "Port serving /metrics")
	flags.Bool("install-crd", false, "Create the Project CRD in the cluster and exit")
	flags.Bool("print-crd", false, "Print the Project CRD YAML and exit")
	flags.Bool("print-sample-manifest", false, "Print a sample Project manifest YAML and exit")
	flags.Bool("print-admission-manifests", false, "Print the ValidatingWebhookConfiguration YAML and exit")
	flags.String("test-manifest-template", "", "Render project.yaml:manifest.yaml locally and print the result")
}
