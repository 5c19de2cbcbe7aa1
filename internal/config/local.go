package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Attempt tracker backends; memory, sqlite and postgres reuse the driver names
const BackendRedis = "redis"

// LocalConfig holds configuration for the grading daemon
type LocalConfig struct {
	Daemon        DaemonConfig   `yaml:"daemon"`
	LLM           LLMConfig      `yaml:"llm"`
	Judge         JudgeConfig    `yaml:"judge"`
	Storage       StorageConfig  `yaml:"storage"`
	Attempts      AttemptsConfig `yaml:"attempts"`
	Queue         QueueConfig    `yaml:"queue"`
	Tracing       TracingConfig  `yaml:"tracing"`
	QuestionsPath string         `yaml:"questions_path"`
}

// DaemonConfig holds daemon server settings
type DaemonConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"`
	LogLevel string `yaml:"log_level"`

	// SubmissionsPerMinute limits answer submissions per client; zero disables
	SubmissionsPerMinute int `yaml:"submissions_per_minute"`
}

// LLMConfig holds LLM provider settings
type LLMConfig struct {
	DefaultProvider string                     `yaml:"default_provider"`
	Providers       map[string]*ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds settings for a single LLM provider
type ProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	URL     string `yaml:"url,omitempty"` // Ollama host or API endpoint override
	APIKey  string `yaml:"-"`             // Loaded from secrets.yaml
}

// JudgeConfig controls the semantic judge
type JudgeConfig struct {
	Provider       string `yaml:"provider"`       // text judge; "auto" picks the default provider
	MediaProvider  string `yaml:"media_provider"` // preferred provider for audio and images
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxTokens      int    `yaml:"max_tokens"`
	Concurrency    int    `yaml:"concurrency"` // parallel sub-question evaluations

	CircuitBreaker bool `yaml:"circuit_breaker"`
	Retry          bool `yaml:"retry"`
	RatePerSecond  int  `yaml:"rate_per_second"` // zero disables rate limiting
	MaxConcurrent  int  `yaml:"max_concurrent"`  // zero disables the bulkhead
}

// Timeout returns the judge timeout as a duration
func (j JudgeConfig) Timeout() time.Duration {
	return time.Duration(j.TimeoutSeconds) * time.Second
}

// StorageConfig selects where questions and scored answers live
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"` // sqlite file; relative paths resolve under ~/.onenglish
	DSN    string `yaml:"dsn"`  // postgres connection string

	// EventRetentionDays bounds the sqlite event log; 0 keeps everything
	EventRetentionDays int `yaml:"event_retention_days"`
}

// AttemptsConfig selects the attempt counter backend
type AttemptsConfig struct {
	Backend       string `yaml:"backend"` // "" follows storage.driver
	DefaultMax    int    `yaml:"default_max"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"-"`
	RedisDB       int    `yaml:"redis_db"`
	TTLHours      int    `yaml:"ttl_hours"` // redis only; zero keeps counts forever
}

// TTL returns the redis key lifetime
func (a AttemptsConfig) TTL() time.Duration {
	return time.Duration(a.TTLHours) * time.Hour
}

// QueueConfig controls the RabbitMQ integration
type QueueConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Workers  int    `yaml:"workers"`
	Prefetch int    `yaml:"prefetch"`
}

// TracingConfig controls OTLP trace export
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// SecretsConfig holds credentials loaded from secrets.yaml
type SecretsConfig struct {
	Providers map[string]ProviderSecret `yaml:"providers"`
	Redis     struct {
		Password string `yaml:"password"`
	} `yaml:"redis"`
}

// ProviderSecret is one provider's credentials
type ProviderSecret struct {
	APIKey string `yaml:"api_key"`
}

// Dir returns the path to ~/.onenglish
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".onenglish"), nil
}

// EnsureDir creates ~/.onenglish and its subdirectories
func EnsureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}

	for _, subdir := range []string{"", "logs", "data", "questions"} {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}
	return dir, nil
}

// DefaultLocalConfig returns defaults for a single-node daemon
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Daemon: DaemonConfig{
			Port:                 7432,
			Bind:                 "127.0.0.1",
			LogLevel:             "info",
			SubmissionsPerMinute: 120,
		},
		LLM: LLMConfig{
			DefaultProvider: "auto",
			Providers: map[string]*ProviderConfig{
				"claude": {
					Enabled: true,
					Model:   "claude-sonnet-4-20250514",
				},
				"openai": {
					Enabled: false,
					Model:   "gpt-4o",
				},
				"gemini": {
					Enabled: false,
					Model:   "gemini-2.0-flash",
				},
				"ollama": {
					Enabled: false,
					URL:     "http://localhost:11434",
					Model:   "llama3.1",
				},
			},
		},
		Judge: JudgeConfig{
			Provider:       "auto",
			MediaProvider:  "gemini",
			TimeoutSeconds: 20,
			MaxTokens:      512,
			Concurrency:    4,
			CircuitBreaker: true,
			Retry:          true,
			RatePerSecond:  5,
			MaxConcurrent:  5,
		},
		Storage: StorageConfig{
			Driver:             DriverSQLite,
			Path:               "data/onenglish.db",
			EventRetentionDays: 30,
		},
		Attempts: AttemptsConfig{
			DefaultMax: 3,
		},
		Queue: QueueConfig{
			Workers:  2,
			Prefetch: 4,
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
		QuestionsPath: "questions",
	}
}

// Validate checks cross-field constraints after files and env are applied
func (c *LocalConfig) Validate() error {
	var errs []error

	if c.Daemon.Port <= 0 || c.Daemon.Port > 65535 {
		errs = append(errs, fmt.Errorf("daemon.port %d out of range", c.Daemon.Port))
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for sqlite"))
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	backend := c.AttemptsBackend()
	if !slices.Contains([]string{DriverMemory, DriverSQLite, DriverPostgres, BackendRedis}, backend) {
		errs = append(errs, fmt.Errorf("unknown attempts.backend %q", backend))
	}
	if backend == BackendRedis && c.Attempts.RedisAddr == "" {
		errs = append(errs, errors.New("attempts.redis_addr is required for redis"))
	}
	if (backend == DriverSQLite || backend == DriverPostgres) && backend != c.Storage.Driver {
		errs = append(errs, fmt.Errorf("attempts.backend %s requires storage.driver %s", backend, backend))
	}

	if c.Storage.EventRetentionDays < 0 {
		errs = append(errs, errors.New("storage.event_retention_days must not be negative"))
	}
	if c.Daemon.SubmissionsPerMinute < 0 {
		errs = append(errs, errors.New("daemon.submissions_per_minute must not be negative"))
	}
	if c.Queue.Enabled && c.Queue.URL == "" {
		errs = append(errs, errors.New("queue.url is required when the queue is enabled"))
	}
	if c.Judge.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("judge.timeout_seconds must be positive"))
	}

	return errors.Join(errs...)
}

// AttemptsBackend returns the effective attempt tracker backend
func (c *LocalConfig) AttemptsBackend() string {
	if c.Attempts.Backend != "" {
		return c.Attempts.Backend
	}
	return c.Storage.Driver
}

// Load reads ~/.onenglish/config.yaml and secrets.yaml, then applies
// environment overrides
func Load() (*LocalConfig, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(dir)
}

// LoadFrom reads config.yaml and secrets.yaml from dir. Missing files
// leave the defaults in place.
func LoadFrom(dir string) (*LocalConfig, error) {
	cfg := DefaultLocalConfig()

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadSecrets(dir, cfg); err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	ApplyEnv(cfg)
	cfg.resolvePaths(dir)
	return cfg, nil
}

// resolvePaths anchors relative file paths at the config directory
func (c *LocalConfig) resolvePaths(dir string) {
	if c.Storage.Path != "" && !filepath.IsAbs(c.Storage.Path) {
		c.Storage.Path = filepath.Join(dir, c.Storage.Path)
	}
	if c.QuestionsPath != "" && !filepath.IsAbs(c.QuestionsPath) {
		c.QuestionsPath = filepath.Join(dir, c.QuestionsPath)
	}
}

func loadSecrets(dir string, cfg *LocalConfig) error {
	data, err := os.ReadFile(filepath.Join(dir, "secrets.yaml"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read secrets: %w", err)
	}

	var secrets SecretsConfig
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("parse secrets: %w", err)
	}

	for name, secret := range secrets.Providers {
		if provider, ok := cfg.LLM.Providers[name]; ok {
			provider.APIKey = secret.APIKey
		}
	}
	cfg.Attempts.RedisPassword = secrets.Redis.Password
	return nil
}

// Save writes cfg to dir/config.yaml
func Save(dir string, cfg *LocalConfig) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SaveSecrets writes provider API keys to dir/secrets.yaml, readable only
// by the owner
func SaveSecrets(dir string, keys map[string]string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	secrets := SecretsConfig{Providers: make(map[string]ProviderSecret, len(keys))}
	for name, key := range keys {
		secrets.Providers[name] = ProviderSecret{APIKey: key}
	}

	data, err := yaml.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "secrets.yaml"), data, 0600); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}
	return nil
}
