package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/aws/clockbound/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(t.TempDir(), "", nil, nil)
	require.NoError(t, err)
	require.Equal(t, uint32(1), cfg.MaxDriftPPB)
	require.Equal(t, "/var/run/clockbound/shm0", cfg.SegmentPath)
	require.False(t, cfg.DisableClockDisruptionSupport)
}

func TestLoad_GlobalConfigOverridesDefaults(t *testing.T) {
	t.Parallel()

	xdgHome := t.TempDir()
	writeConfig(t, filepath.Join(xdgHome, "clockbound", config.ConfigFileName), `{
		// operator override
		"max_drift_rate_ppb": 5,
		"segment_path": "/tmp/shm0",
	}`)

	cfg, err := config.Load(t.TempDir(), "", nil, []string{"XDG_CONFIG_HOME=" + xdgHome})
	require.NoError(t, err)
	require.Equal(t, uint32(5), cfg.MaxDriftPPB)
	require.Equal(t, "/tmp/shm0", cfg.SegmentPath)
}

func TestLoad_ExplicitConfigOverridesGlobalConfig(t *testing.T) {
	t.Parallel()

	xdgHome := t.TempDir()
	writeConfig(t, filepath.Join(xdgHome, "clockbound", config.ConfigFileName), `{"max_drift_rate_ppb": 5}`)

	dir := t.TempDir()
	explicitPath := filepath.Join(dir, "explicit.jsonc")
	writeConfig(t, explicitPath, `{"max_drift_rate_ppb": 7}`)

	cfg, err := config.Load(dir, explicitPath, nil, []string{"XDG_CONFIG_HOME=" + xdgHome})
	require.NoError(t, err)
	require.Equal(t, uint32(7), cfg.MaxDriftPPB)
}

func TestLoad_CLIFlagWinsOverConfigFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	explicitPath := filepath.Join(dir, "explicit.jsonc")
	writeConfig(t, explicitPath, `{"max_drift_rate_ppb": 5}`)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Uint32("max-drift-rate", 0, "")
	require.NoError(t, fs.Parse([]string{"--max-drift-rate=9"}))

	cfg, err := config.Load(dir, explicitPath, fs, nil)
	require.NoError(t, err)
	require.Equal(t, uint32(9), cfg.MaxDriftPPB)
}

func TestLoad_ExplicitConfigPathMustExist(t *testing.T) {
	t.Parallel()

	_, err := config.Load(t.TempDir(), "does-not-exist.json", nil, nil)
	require.Error(t, err)
}

func TestLoad_DisablingDisruptionSupportAllowsEmptyVMClockPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	explicitPath := filepath.Join(dir, "explicit.jsonc")
	writeConfig(t, explicitPath, `{
		"disable_clock_disruption_support": true,
		"vmclock_path": "",
	}`)

	cfg, err := config.Load(dir, explicitPath, nil, nil)
	require.NoError(t, err)
	require.True(t, cfg.DisableClockDisruptionSupport)
}

func writeConfig(t *testing.T, path, contents string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644)) //nolint:gosec // test fixture
}
