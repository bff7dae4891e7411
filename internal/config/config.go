// Package config loads the calibration file that tunes analyzers, the sandbox
// and the reputation lookups. Every field has a default, so an empty or partial
// file is valid.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AnishDe12020/unsus/internal/staticanalysis/obfuscation"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Obfuscation obfuscation.Thresholds `yaml:"obfuscation"`
	Sandbox     Sandbox                `yaml:"sandbox"`
	ThreatIntel ThreatIntel            `yaml:"threat_intel"`
	VulnLookup  VulnLookup             `yaml:"vuln_lookup"`

	// ExtraPopular extends the built-in list of packages that typosquats are
	// compared against.
	ExtraPopular []string `yaml:"extra_popular"`
}

// Sandbox configures the dynamic analysis containers.
type Sandbox struct {
	Runtime        string        `yaml:"runtime"`
	Image          string        `yaml:"image"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	ExecuteTimeout time.Duration `yaml:"execute_timeout"`
	HookTimeout    time.Duration `yaml:"hook_timeout"`
	Memory         string        `yaml:"memory"`
	CPUs           string        `yaml:"cpus"`
	PidsLimit      int           `yaml:"pids_limit"`

	CPUWarning    float64 `yaml:"cpu_warning"`
	CPUCritical   float64 `yaml:"cpu_critical"`
	MaxFSFindings int     `yaml:"max_fs_findings"`
}

// ThreatIntel configures the reputation feed cache and the host lookup API.
type ThreatIntel struct {
	FeedURL    string        `yaml:"feed_url"`
	CacheURL   string        `yaml:"cache_url"`
	TTL        time.Duration `yaml:"ttl"`
	LookupURL  string        `yaml:"lookup_url"`
	APIKey     string        `yaml:"api_key"`
	MaxLookups int           `yaml:"max_lookups"`
	RateLimit  time.Duration `yaml:"rate_limit"`
}

type VulnLookup struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the built-in calibration.
func Default() Config {
	return Config{
		Obfuscation: obfuscation.DefaultThresholds,
		Sandbox: Sandbox{
			Runtime:        "docker",
			Image:          "unsus-sandbox:latest",
			FetchTimeout:   2 * time.Minute,
			ExecuteTimeout: 90 * time.Second,
			HookTimeout:    30 * time.Second,
			Memory:         "512m",
			CPUs:           "1",
			PidsLimit:      256,
			CPUWarning:     50,
			CPUCritical:    80,
			MaxFSFindings:  5,
		},
		ThreatIntel: ThreatIntel{
			FeedURL:    "https://urlhaus.abuse.ch/downloads/text_online/",
			CacheURL:   "mem://",
			TTL:        6 * time.Hour,
			LookupURL:  "https://urlhaus-api.abuse.ch/v1/host/",
			MaxLookups: 5,
			RateLimit:  time.Second,
		},
		VulnLookup: VulnLookup{
			Timeout: 60 * time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults. Environment variables
// in the file are expanded. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML data over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that thresholds are ordered and budgets are positive.
func (c Config) Validate() error {
	o := c.Obfuscation
	if o.MinLength <= 0 {
		return fmt.Errorf("%w: obfuscation.min_length must be positive", ErrInvalidConfig)
	}
	if o.Warning <= 0 || o.Danger < o.Warning {
		return fmt.Errorf("%w: obfuscation thresholds must satisfy 0 < warning <= danger", ErrInvalidConfig)
	}

	s := c.Sandbox
	switch s.Runtime {
	case "docker", "podman":
	default:
		return fmt.Errorf("%w: sandbox.runtime %q is not docker or podman", ErrInvalidConfig, s.Runtime)
	}
	if s.Image == "" {
		return fmt.Errorf("%w: sandbox.image is empty", ErrInvalidConfig)
	}
	if s.FetchTimeout <= 0 || s.ExecuteTimeout <= 0 || s.HookTimeout <= 0 {
		return fmt.Errorf("%w: sandbox timeouts must be positive", ErrInvalidConfig)
	}
	if s.CPUWarning <= 0 || s.CPUCritical < s.CPUWarning {
		return fmt.Errorf("%w: sandbox cpu thresholds must satisfy 0 < cpu_warning <= cpu_critical", ErrInvalidConfig)
	}
	if s.MaxFSFindings < 0 {
		return fmt.Errorf("%w: sandbox.max_fs_findings is negative", ErrInvalidConfig)
	}

	if c.ThreatIntel.TTL <= 0 {
		return fmt.Errorf("%w: threat_intel.ttl must be positive", ErrInvalidConfig)
	}
	if c.ThreatIntel.MaxLookups < 0 {
		return fmt.Errorf("%w: threat_intel.max_lookups is negative", ErrInvalidConfig)
	}
	if c.VulnLookup.Timeout <= 0 {
		return fmt.Errorf("%w: vuln_lookup.timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// LogValue implements slog.LogValuer and hides the API key.
func (t ThreatIntel) LogValue() slog.Value {
	key := ""
	if t.APIKey != "" {
		key = "<redacted>"
	}
	return slog.GroupValue(
		slog.String("feed_url", t.FeedURL),
		slog.String("cache_url", t.CacheURL),
		slog.Duration("ttl", t.TTL),
		slog.String("api_key", key),
		slog.Int("max_lookups", t.MaxLookups),
	)
}
