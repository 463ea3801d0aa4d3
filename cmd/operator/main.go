package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/innoq/project-selfservice-operator/internal/admission"
	projectv1 "github.com/innoq/project-selfservice-operator/internal/apis/selfservice/v1"
	"github.com/innoq/project-selfservice-operator/internal/config"
	"github.com/innoq/project-selfservice-operator/internal/crdinstall"
	"github.com/innoq/project-selfservice-operator/internal/manifest"
	"github.com/innoq/project-selfservice-operator/internal/reconciler"
	"github.com/innoq/project-selfservice-operator/pkg/health"
	"github.com/innoq/project-selfservice-operator/pkg/logger"
	"github.com/innoq/project-selfservice-operator/pkg/otel"
	"github.com/innoq/project-selfservice-operator/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/yaml"
)

// Command-line flags
var (
	logLevel   string
	logFormat  string
	logOutput  string
	serveFlags *pflag.FlagSet
)

// Timeout constants
const (
	// OTelShutdownTimeout is the timeout for gracefully shutting down the OpenTelemetry TracerProvider
	OTelShutdownTimeout = 5 * time.Second
	// HealthServerShutdownTimeout is the timeout for gracefully shutting down the health server
	HealthServerShutdownTimeout = 5 * time.Second
	// ReconcileWorkers is the number of goroutines draining the Project workqueue.
	ReconcileWorkers = 2
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "project-operator",
		Short: "Project self-service operator",
		Long: `project-operator reconciles Project custom resources into an
owned namespace plus a templated bundle of child manifests, and runs
the admission webhook that validates Projects before they're admitted.`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reconciler and admission webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	config.RegisterFlags(serveCmd.Flags())
	serveFlags = serveCmd.Flags()

	serveCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error). Env: LOG_LEVEL")
	serveCmd.Flags().StringVar(&logFormat, "log-format", "", "Log format (console, json). Env: LOG_FORMAT")
	serveCmd.Flags().StringVar(&logOutput, "log-output", "", "Log output (stdout, stderr). Env: LOG_OUTPUT")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Project Self-Service Operator", version.Get())
		},
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildLoggerConfig creates a logger configuration from environment
// variables and command-line flags. Flags take precedence.
func buildLoggerConfig(component string) logger.Config {
	cfg := logger.ConfigFromEnv()
	if logLevel != "" {
		cfg.Level = logLevel
	}
	if logFormat != "" {
		cfg.Format = logFormat
	}
	if logOutput != "" {
		cfg.Output = logOutput
	}
	cfg.Component = component
	cfg.Version = version.Version
	return cfg
}

// restConfig builds a REST config from cfg.KubeconfigPath, falling
// back to in-cluster discovery when it's empty.
func restConfig(cfg *config.Config) (*rest.Config, error) {
	var (
		restCfg *rest.Config
		err     error
	)
	if cfg.KubeconfigPath != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", cfg.KubeconfigPath)
	} else {
		restCfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, err
	}

	restCfg.WrapTransport = func(rt http.RoundTripper) http.RoundTripper {
		return &traceHeaderTransport{base: rt}
	}
	return restCfg, nil
}

// traceHeaderTransport injects the calling span's trace context into
// every request the reconciler and admission controller issue against
// the API server, so a trace started in Reconcile or Admit threads
// through to requests client-go makes on its behalf.
type traceHeaderTransport struct {
	base http.RoundTripper
}

func (t *traceHeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	otel.InjectTraceContextIntoHeaders(req.Context(), req.Header)
	return t.base.RoundTrip(req)
}

// runServe contains the main application logic for the serve command,
// unless one of the one-shot print/install flags short-circuits it.
func runServe() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log, err := logger.NewLogger(buildLoggerConfig("project-operator"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	log.Infof(ctx, "Starting project-operator version=%s commit=%s built=%s", version.Version, version.Commit, version.BuildDate)

	cfg, err := config.Load(serveFlags)
	if err != nil {
		errCtx := logger.WithErrorField(ctx, err)
		log.Errorf(errCtx, "Failed to load configuration")
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Recreate the logger once cfg.Verbosity is known, unless --log-level
	// explicitly overrode it on the command line.
	loggerCfg := buildLoggerConfig("project-operator")
	if logLevel == "" && cfg.Verbosity != "" {
		loggerCfg.Level = cfg.Verbosity
	}
	log, err = logger.NewLogger(loggerCfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	if ran, err := runOneShot(ctx, cfg, log); ran {
		return err
	}

	sampleRatio := otel.GetTraceSampleRatio(log, ctx)
	tp, err := otel.InitTracer("project-operator", version.Version, sampleRatio)
	if err != nil {
		errCtx := logger.WithErrorField(ctx, err)
		log.Errorf(errCtx, "Failed to initialize OpenTelemetry")
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), OTelShutdownTimeout)
		defer shutdownCancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			errCtx := logger.WithErrorField(shutdownCtx, err)
			log.Warnf(errCtx, "Failed to shutdown TracerProvider")
		}
	}()

	healthServer := health.NewServer(log, cfg.HealthPort, "project-operator")
	if err := healthServer.Start(ctx); err != nil {
		errCtx := logger.WithErrorField(ctx, err)
		log.Errorf(errCtx, "Failed to start health server")
		return fmt.Errorf("failed to start health server: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), HealthServerShutdownTimeout)
		defer shutdownCancel()
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			errCtx := logger.WithErrorField(shutdownCtx, err)
			log.Warnf(errCtx, "Failed to shutdown health server")
		}
	}()

	metricsServer := health.NewMetricsServer(log, cfg.MetricsPort, health.MetricsConfig{
		Component: "project-operator",
		Version:   version.Version,
		Commit:    version.Commit,
	})
	if err := metricsServer.Start(ctx); err != nil {
		errCtx := logger.WithErrorField(ctx, err)
		log.Errorf(errCtx, "Failed to start metrics server")
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), HealthServerShutdownTimeout)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			errCtx := logger.WithErrorField(shutdownCtx, err)
			log.Warnf(errCtx, "Failed to shutdown metrics server")
		}
	}()

	restCfg, err := restConfig(cfg)
	if err != nil {
		errCtx := logger.WithErrorField(ctx, err)
		log.Errorf(errCtx, "Failed to build Kubernetes client configuration")
		return fmt.Errorf("failed to build Kubernetes client configuration: %w", err)
	}

	shared, dyn, err := reconciler.BuildShared(restCfg, cfg, log, metricsServer)
	if err != nil {
		errCtx := logger.WithErrorField(ctx, err)
		log.Errorf(errCtx, "Failed to build reconciler dependencies")
		return fmt.Errorf("failed to build reconciler dependencies: %w", err)
	}

	rec := reconciler.New(shared, dyn, log, metricsServer)

	reconcileErrCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "Starting Project reconciler...")
		if err := rec.Run(ctx, ReconcileWorkers); err != nil {
			reconcileErrCh <- err
		}
	}()

	healthServer.SetConfigLoaded()

	validator := &admission.Validator{Kube: shared.Kube, SelectorConfig: shared.SelectorConfig}
	webhookServer := admission.NewServer(log, validator, metricsServer)

	mux := http.NewServeMux()
	mux.Handle("/validate/projects", webhookServer.Handler())

	httpsServer := &http.Server{
		Addr:              ":" + cfg.WebhookPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	webhookErrCh := make(chan error, 1)
	if cfg.WebhookTLSCertFile != "" && cfg.WebhookTLSKeyFile != "" {
		go func() {
			log.Infof(ctx, "Starting admission webhook server on port %s", cfg.WebhookPort)
			httpsServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			if err := httpsServer.ListenAndServeTLS(cfg.WebhookTLSCertFile, cfg.WebhookTLSKeyFile); err != nil && err != http.ErrServerClosed {
				webhookErrCh <- err
			}
		}()
	} else {
		log.Warn(ctx, "No webhook TLS certificate configured; admission webhook server is not started")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof(ctx, "Received signal %s, initiating graceful shutdown...", sig)
		healthServer.SetShuttingDown(true)
		cancel()

		sig = <-sigCh
		log.Infof(ctx, "Received second signal %s, forcing immediate exit", sig)
		os.Exit(1)
	}()

	log.Info(ctx, "project-operator is ready")

	select {
	case <-ctx.Done():
		log.Info(ctx, "Context cancelled, shutting down...")
	case err := <-reconcileErrCh:
		errCtx := logger.WithErrorField(ctx, err)
		log.Errorf(errCtx, "Reconciler exited with error, shutting down")
		healthServer.SetShuttingDown(true)
		cancel()
	case err := <-webhookErrCh:
		errCtx := logger.WithErrorField(ctx, err)
		log.Errorf(errCtx, "Admission webhook server exited with error, shutting down")
		healthServer.SetShuttingDown(true)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), HealthServerShutdownTimeout)
	defer shutdownCancel()
	if err := httpsServer.Shutdown(shutdownCtx); err != nil {
		errCtx := logger.WithErrorField(shutdownCtx, err)
		log.Warnf(errCtx, "Failed to shutdown admission webhook server")
	}

	log.Info(ctx, "project-operator shutdown complete")
	return nil
}

// runOneShot dispatches the print/install/test-template flags that run
// in place of serve's normal loop (spec §6's one-shot configuration
// modes). ran is true when one of them matched, whether or not it
// returned an error.
func runOneShot(ctx context.Context, cfg *config.Config, log logger.Logger) (ran bool, err error) {
	switch {
	case cfg.PrintCRD:
		fmt.Println(crdinstall.PrintCRD())
		return true, nil

	case cfg.PrintSampleManifest:
		fmt.Println(crdinstall.PrintSampleManifest())
		return true, nil

	case cfg.PrintAdmissionManifests:
		out, err := crdinstall.PrintAdmissionManifests("project-operator-webhook", cfg.DefaultNamespace)
		if err != nil {
			return true, fmt.Errorf("failed to render admission manifests: %w", err)
		}
		fmt.Println(out)
		return true, nil

	case cfg.InstallCRD:
		restCfg, err := restConfig(cfg)
		if err != nil {
			return true, fmt.Errorf("failed to build Kubernetes client configuration: %w", err)
		}
		if err := crdinstall.Install(ctx, restCfg); err != nil {
			return true, fmt.Errorf("failed to install Project CRD: %w", err)
		}
		log.Info(ctx, "Project CRD installed")
		return true, nil

	case cfg.TestManifestTemplate != "":
		out, err := testManifestTemplate(cfg.TestManifestTemplate)
		if err != nil {
			return true, err
		}
		fmt.Println(out)
		return true, nil
	}

	return false, nil
}

// testManifestTemplate renders a manifest template against a local
// Project manifest for --test-manifest-template project.yaml:manifest.yaml,
// letting a bundle author check a template renders as expected without
// a cluster.
func testManifestTemplate(spec string) (string, error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("--test-manifest-template wants projectFile:templateFile, got %q", spec)
	}
	projectPath, templatePath := parts[0], parts[1]

	projectBytes, err := os.ReadFile(projectPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", projectPath, err)
	}
	templateBytes, err := os.ReadFile(templatePath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", templatePath, err)
	}

	var project projectv1.Project
	if err := yaml.Unmarshal(projectBytes, &project); err != nil {
		return "", fmt.Errorf("parsing %s: %w", projectPath, err)
	}

	manifestValues, err := manifest.ParseManifestValues(project.Spec.ManifestValues)
	if err != nil {
		return "", fmt.Errorf("parsing spec.manifestValues: %w", err)
	}
	values := manifest.BuildTemplateValues(manifestValues, project.Name, project.Spec.Owners)

	return manifest.Render(templatePath, string(templateBytes), values)
}
