package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"moad/internal/common/fsutil"
	"moad/pkg/types"
)

// Config holds all runtime parameters for the service: HTTP settings, the
// model catalog, the pipeline shape, and orchestration tunables. Zero values
// mean "unspecified" and are replaced by package defaults downstream.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	// Model catalog and routing.
	Models         []types.ModelProfile `json:"models" yaml:"models" toml:"models"`
	DefaultModel   string               `json:"default_model" yaml:"default_model" toml:"default_model"`
	FallbackModels []string             `json:"fallback_models" yaml:"fallback_models" toml:"fallback_models"`

	// Pipeline shape at startup.
	Pipeline types.PipelineConfig `json:"pipeline" yaml:"pipeline" toml:"pipeline"`

	// Upstream completion service.
	Upstream UpstreamConfig `json:"upstream" yaml:"upstream" toml:"upstream"`

	// Orchestration tunables.
	Limits   LimitsConfig   `json:"limits" yaml:"limits" toml:"limits"`
	Adaptive AdaptiveConfig `json:"adaptive" yaml:"adaptive" toml:"adaptive"`

	// HTTP surface.
	CORSEnabled bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	// Per-client request rate for the HTTP API (requests/second, 0 = off).
	RequestRatePerSec float64 `json:"request_rate_per_sec" yaml:"request_rate_per_sec" toml:"request_rate_per_sec"`
}

// UpstreamConfig locates the external completion service.
type UpstreamConfig struct {
	BaseURL           string `json:"base_url" yaml:"base_url" toml:"base_url"`
	APIKey            string `json:"api_key" yaml:"api_key" toml:"api_key"`
	ConnectTimeoutSec int    `json:"connect_timeout_sec" yaml:"connect_timeout_sec" toml:"connect_timeout_sec"`
}

// LimitsConfig groups quota/scheduler/retry/breaker tunables.
type LimitsConfig struct {
	WindowSec               int     `json:"window_sec" yaml:"window_sec" toml:"window_sec"`
	MaxQueueDepth           int     `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	RetryMaxAttempts        int     `json:"retry_max_attempts" yaml:"retry_max_attempts" toml:"retry_max_attempts"`
	RetryBaseMs             int     `json:"retry_base_ms" yaml:"retry_base_ms" toml:"retry_base_ms"`
	RetryMultiplier         float64 `json:"retry_multiplier" yaml:"retry_multiplier" toml:"retry_multiplier"`
	RetryJitter             float64 `json:"retry_jitter" yaml:"retry_jitter" toml:"retry_jitter"`
	BreakerFailureThreshold int     `json:"breaker_failure_threshold" yaml:"breaker_failure_threshold" toml:"breaker_failure_threshold"`
	BreakerCooldownSec      int     `json:"breaker_cooldown_sec" yaml:"breaker_cooldown_sec" toml:"breaker_cooldown_sec"`
	RateLimitMultiplier     float64 `json:"rate_limit_multiplier" yaml:"rate_limit_multiplier" toml:"rate_limit_multiplier"`
	NetworkBaseMs           int     `json:"network_base_ms" yaml:"network_base_ms" toml:"network_base_ms"`
	UpstreamBaseMs          int     `json:"upstream_base_ms" yaml:"upstream_base_ms" toml:"upstream_base_ms"`
}

// AdaptiveConfig groups the adaptive controller thresholds.
type AdaptiveConfig struct {
	Disabled          bool    `json:"disabled" yaml:"disabled" toml:"disabled"`
	MaxRecords        int     `json:"max_records" yaml:"max_records" toml:"max_records"`
	WindowSize        int     `json:"window_size" yaml:"window_size" toml:"window_size"`
	SlowMs            int     `json:"slow_ms" yaml:"slow_ms" toml:"slow_ms"`
	FastMs            int     `json:"fast_ms" yaml:"fast_ms" toml:"fast_ms"`
	LowQuality        float64 `json:"low_quality" yaml:"low_quality" toml:"low_quality"`
	VeryLowQuality    float64 `json:"very_low_quality" yaml:"very_low_quality" toml:"very_low_quality"`
	MutateProbability float64 `json:"mutate_probability" yaml:"mutate_probability" toml:"mutate_probability"`
	CoordinatorFanOut int     `json:"coordinator_fan_out" yaml:"coordinator_fan_out" toml:"coordinator_fan_out"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	expanded, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(expanded)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(expanded)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
