// Package config loads clockboundd's configuration with the same
// layered precedence the teacher CLI uses for .tk.json (config.go):
// defaults, then a global user config, then a system config, then an
// explicit --config file, then CLI flags. File contents are JWCC (JSON
// with comments) via github.com/tailscale/hujson; CLI flags are parsed
// with github.com/spf13/pflag.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"

	"github.com/aws/clockbound/internal/segment"
)

// ConfigFileName is the global user config file name, looked for under
// $XDG_CONFIG_HOME/clockbound/ (or ~/.config/clockbound/).
const ConfigFileName = "config.jsonc"

// SystemConfigPath is the system-wide config file, read if present
// between the global user config and an explicit --config path.
const SystemConfigPath = "/etc/clockbound/config.jsonc"

// Config holds every tunable of the writer daemon (spec §6 "Writer
// CLI", plus the ambient paths SPEC_FULL.md adds).
type Config struct {
	SegmentPath      string        `json:"segment_path"`
	SegmentSizeBytes uint32        `json:"segment_size_bytes"`
	VMClockPath      string        `json:"vmclock_path"`
	ChronySocketPath string        `json:"chrony_socket_path"`
	ChronyTimeout    time.Duration `json:"-"`
	ChronyTimeoutMS  int64         `json:"chrony_timeout_ms"`

	RefreshInterval   time.Duration `json:"-"`
	RefreshIntervalMS int64         `json:"refresh_interval_ms"`

	MaxDriftPPB uint32 `json:"max_drift_rate_ppb"` //nolint:tagliatelle // snake_case for config file

	DisableClockDisruptionSupport bool `json:"disable_clock_disruption_support"`

	PHCRefID     string `json:"phc_ref_id,omitempty"`
	PHCInterface string `json:"phc_interface,omitempty"`

	LogLevel string `json:"log_level"`
	LogJSON  bool   `json:"log_json"`
}

// Default returns the built-in defaults (spec §6: "--max-drift-rate ...
// default 1").
func Default() Config {
	return Config{
		SegmentPath:       "/var/run/clockbound/shm0",
		SegmentSizeBytes:  segment.DefaultSegmentSize,
		VMClockPath:       "/dev/vmclock0",
		ChronySocketPath:  "/var/run/chrony/chronyd.sock",
		ChronyTimeout:     time.Second,
		ChronyTimeoutMS:   1000,
		RefreshInterval:   time.Second,
		RefreshIntervalMS: 1000,
		MaxDriftPPB:       1,
		LogLevel:          "info",
	}
}

func globalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "clockbound", ConfigFileName)
		}
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "clockbound", ConfigFileName)
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "clockbound", ConfigFileName)
	}

	return ""
}

// Load resolves the final Config, applying precedence (lowest to
// highest): built-in defaults, global user config
// ($XDG_CONFIG_HOME/clockbound/config.jsonc, falling back to
// ~/.config/clockbound/config.jsonc), the system config
// (SystemConfigPath) if present, an explicit --config path, then any
// pflag flags the caller actually set on fs.
//
// workDir resolves a relative explicitConfigPath. fs must already have
// been parsed; Load only inspects fs.Changed to decide which flags
// override the file-derived config.
func Load(workDir, explicitConfigPath string, fs *pflag.FlagSet, env []string) (Config, error) {
	cfg := Default()

	globalPath := globalConfigPath(env)
	if globalPath != "" {
		fileCfg, loaded, err := loadFile(globalPath, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = merge(cfg, fileCfg)
		}
	}

	systemCfg, loaded, err := loadFile(SystemConfigPath, false)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = merge(cfg, systemCfg)
	}

	if explicitConfigPath != "" {
		explicitPath := explicitConfigPath
		if !filepath.IsAbs(explicitPath) {
			explicitPath = filepath.Join(workDir, explicitPath)
		}

		fileCfg, loaded, err := loadFile(explicitPath, true)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = merge(cfg, fileCfg)
		}
	}

	if fs != nil {
		applyFlags(&cfg, fs)
	}

	cfg.ChronyTimeout = time.Duration(cfg.ChronyTimeoutMS) * time.Millisecond
	cfg.RefreshInterval = time.Duration(cfg.RefreshIntervalMS) * time.Millisecond

	return cfg, validate(cfg)
}

func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled, same as teacher's loadConfigFile
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return Config{}, false, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
			}

			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s: %w", errConfigFileRead, path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: invalid JWCC: %w", errConfigInvalid, path, err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return cfg, true, nil
}

// merge overlays any non-zero field of overlay onto base.
func merge(base, overlay Config) Config {
	if overlay.SegmentPath != "" {
		base.SegmentPath = overlay.SegmentPath
	}

	if overlay.SegmentSizeBytes != 0 {
		base.SegmentSizeBytes = overlay.SegmentSizeBytes
	}

	if overlay.VMClockPath != "" {
		base.VMClockPath = overlay.VMClockPath
	}

	if overlay.ChronySocketPath != "" {
		base.ChronySocketPath = overlay.ChronySocketPath
	}

	if overlay.ChronyTimeoutMS != 0 {
		base.ChronyTimeoutMS = overlay.ChronyTimeoutMS
	}

	if overlay.RefreshIntervalMS != 0 {
		base.RefreshIntervalMS = overlay.RefreshIntervalMS
	}

	if overlay.MaxDriftPPB != 0 {
		base.MaxDriftPPB = overlay.MaxDriftPPB
	}

	base.DisableClockDisruptionSupport = base.DisableClockDisruptionSupport || overlay.DisableClockDisruptionSupport

	if overlay.PHCRefID != "" {
		base.PHCRefID = overlay.PHCRefID
	}

	if overlay.PHCInterface != "" {
		base.PHCInterface = overlay.PHCInterface
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	base.LogJSON = base.LogJSON || overlay.LogJSON

	return base
}

// applyFlags overrides cfg with every pflag the caller explicitly set,
// mirroring the teacher's "CLI overrides win" final precedence step.
func applyFlags(cfg *Config, fs *pflag.FlagSet) {
	if v, err := fs.GetString("segment-path"); err == nil && fs.Changed("segment-path") {
		cfg.SegmentPath = v
	}

	if v, err := fs.GetString("vmclock-path"); err == nil && fs.Changed("vmclock-path") {
		cfg.VMClockPath = v
	}

	if v, err := fs.GetString("chrony-socket"); err == nil && fs.Changed("chrony-socket") {
		cfg.ChronySocketPath = v
	}

	if v, err := fs.GetUint32("max-drift-rate"); err == nil && fs.Changed("max-drift-rate") {
		cfg.MaxDriftPPB = v
	}

	if v, err := fs.GetBool("disable-clock-disruption-support"); err == nil && fs.Changed("disable-clock-disruption-support") {
		cfg.DisableClockDisruptionSupport = v
	}

	if v, err := fs.GetString("phc-ref-id"); err == nil && fs.Changed("phc-ref-id") {
		cfg.PHCRefID = v
	}

	if v, err := fs.GetString("phc-interface"); err == nil && fs.Changed("phc-interface") {
		cfg.PHCInterface = v
	}

	if v, err := fs.GetString("log-level"); err == nil && fs.Changed("log-level") {
		cfg.LogLevel = v
	}

	if v, err := fs.GetBool("log-json"); err == nil && fs.Changed("log-json") {
		cfg.LogJSON = v
	}
}

func validate(cfg Config) error {
	if cfg.SegmentPath == "" {
		return errSegmentPathEmpty
	}

	if cfg.SegmentSizeBytes == 0 {
		return errSegmentSizeZero
	}

	if !cfg.DisableClockDisruptionSupport && cfg.VMClockPath == "" {
		return errVMClockPathEmpty
	}

	if len(cfg.PHCRefID) != 0 && len(cfg.PHCRefID) != 4 {
		return errPHCRefIDLength
	}

	return nil
}
