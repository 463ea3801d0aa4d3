package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "project-selfservice", cfg.DefaultNamespace)
	assert.Equal(t, "default-project-manifests", cfg.DefaultManifestsSecret)
	assert.Equal(t, 2*time.Second, cfg.ManifestRetryDelay)
	assert.Equal(t, "info", cfg.Verbosity)
	assert.False(t, cfg.InstallCRD)
}

func TestLoad_FlagsOverrideDefaults(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Set("default-namespace", "custom-ns"))
	require.NoError(t, flags.Set("manifest-retry-delay", "5s"))
	require.NoError(t, flags.Set("install-crd", "true"))

	cfg, err := Load(flags)
	require.NoError(t, err)

	assert.Equal(t, "custom-ns", cfg.DefaultNamespace)
	assert.Equal(t, 5*time.Second, cfg.ManifestRetryDelay)
	assert.True(t, cfg.InstallCRD)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("PROJECT_OPERATOR_VERBOSITY", "debug")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Verbosity)
}
