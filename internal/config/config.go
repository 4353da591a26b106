// Package config loads engine configuration from YAML. A missing
// file yields defaults; partial files are filled in field by field.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tabguard-ai/tabguard/internal/pii"
)

// Config holds TabGuard configuration.
type Config struct {
	Server      ServerConfig            `yaml:"server"`
	Store       StoreConfig             `yaml:"store"`
	Windows     WindowsConfig           `yaml:"windows"`
	Explain     ExplainConfig           `yaml:"explain"`
	Granularity pii.GranularitySettings `yaml:"granularity"`
	Providers   ProvidersConfig         `yaml:"providers"`
	Escalation  EscalationConfig        `yaml:"escalation"`
	Telemetry   TelemetryConfig         `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"` // HTTP listen address, e.g. ":8321"
}

type StoreConfig struct {
	// Path to the bbolt database file. Empty means in-memory only.
	Path string `yaml:"path"`
}

// WindowsConfig overrides the aggregation windows, in milliseconds.
type WindowsConfig struct {
	SignalMS        int `yaml:"signal_ms"`
	PIIMS           int `yaml:"pii_ms"`
	DedupeMS        int `yaml:"dedupe_ms"`
	WriteDebounceMS int `yaml:"write_debounce_ms"`
}

type ExplainConfig struct {
	CacheCapacity       int `yaml:"cache_capacity"`
	ParaphraseTimeoutMS int `yaml:"paraphrase_timeout_ms"`

	// Endpoint of an OpenAI-compatible chat completions server used to
	// reword explanations, e.g. a local model at
	// http://127.0.0.1:11434/v1. Empty disables paraphrasing.
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
}

type ProvidersConfig struct {
	// Seed controls whether the built-in provider directory is written
	// on first start. Defaults to true.
	Seed *bool `yaml:"seed"`
}

type EscalationConfig struct {
	Threshold        string       `yaml:"threshold"` // low | medium | high
	OriginCooldownMS int          `yaml:"origin_cooldown_ms"`
	GlobalCooldownMS int          `yaml:"global_cooldown_ms"`
	Sinks            []SinkConfig `yaml:"sinks"`
}

type SinkConfig struct {
	Type      string            `yaml:"type"` // log | file_jsonl | webhook
	Path      string            `yaml:"path"`
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
	TimeoutMS int               `yaml:"timeout_ms"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8321"
	}
	if cfg.Windows.SignalMS <= 0 {
		cfg.Windows.SignalMS = 30_000
	}
	if cfg.Windows.PIIMS <= 0 {
		cfg.Windows.PIIMS = 15_000
	}
	if cfg.Windows.DedupeMS <= 0 {
		cfg.Windows.DedupeMS = 2_000
	}
	if cfg.Windows.WriteDebounceMS <= 0 {
		cfg.Windows.WriteDebounceMS = 500
	}
	if cfg.Explain.CacheCapacity <= 0 {
		cfg.Explain.CacheCapacity = 512
	}
	if cfg.Explain.ParaphraseTimeoutMS <= 0 {
		cfg.Explain.ParaphraseTimeoutMS = 2_000
	}

	def := pii.DefaultGranularity()
	if cfg.Granularity.Email == "" {
		cfg.Granularity.Email = def.Email
	}
	if cfg.Granularity.Phone == "" {
		cfg.Granularity.Phone = def.Phone
	}
	if cfg.Granularity.Address == "" {
		cfg.Granularity.Address = def.Address
	}
	if cfg.Granularity.DOB == "" {
		cfg.Granularity.DOB = def.DOB
	}
	if cfg.Granularity.Card == "" {
		cfg.Granularity.Card = def.Card
	}

	if cfg.Providers.Seed == nil {
		seed := true
		cfg.Providers.Seed = &seed
	}
	if cfg.Escalation.Threshold == "" {
		cfg.Escalation.Threshold = "medium"
	}
	if cfg.Escalation.OriginCooldownMS <= 0 {
		cfg.Escalation.OriginCooldownMS = 300_000
	}
	if cfg.Escalation.GlobalCooldownMS <= 0 {
		cfg.Escalation.GlobalCooldownMS = 60_000
	}
	if len(cfg.Escalation.Sinks) == 0 {
		cfg.Escalation.Sinks = []SinkConfig{{Type: "log"}}
	}
}

// Duration helpers for the millisecond fields.

func (w WindowsConfig) Signal() time.Duration { return time.Duration(w.SignalMS) * time.Millisecond }
func (w WindowsConfig) PII() time.Duration    { return time.Duration(w.PIIMS) * time.Millisecond }
func (w WindowsConfig) Dedupe() time.Duration { return time.Duration(w.DedupeMS) * time.Millisecond }
func (w WindowsConfig) WriteDebounce() time.Duration {
	return time.Duration(w.WriteDebounceMS) * time.Millisecond
}

func (e ExplainConfig) ParaphraseTimeout() time.Duration {
	return time.Duration(e.ParaphraseTimeoutMS) * time.Millisecond
}

func (e EscalationConfig) OriginCooldown() time.Duration {
	return time.Duration(e.OriginCooldownMS) * time.Millisecond
}

func (e EscalationConfig) GlobalCooldown() time.Duration {
	return time.Duration(e.GlobalCooldownMS) * time.Millisecond
}

func (s SinkConfig) Timeout() time.Duration { return time.Duration(s.TimeoutMS) * time.Millisecond }
