package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variables that override config.yaml
const (
	EnvPort            = "ONENGLISH_PORT"
	EnvBind            = "ONENGLISH_BIND"
	EnvLogLevel        = "ONENGLISH_LOG_LEVEL"
	EnvSubmitRate      = "ONENGLISH_SUBMISSIONS_PER_MINUTE"
	EnvStorageDriver   = "ONENGLISH_STORAGE"
	EnvDatabaseURL     = "DATABASE_URL"
	EnvSQLitePath      = "ONENGLISH_SQLITE_PATH"
	EnvAttemptsBackend = "ONENGLISH_ATTEMPTS"
	EnvMaxAttempts     = "ONENGLISH_MAX_ATTEMPTS"
	EnvRedisAddr       = "REDIS_ADDR"
	EnvRedisPassword   = "REDIS_PASSWORD"
	EnvRabbitMQURL     = "RABBITMQ_URL"
	EnvQueueEnabled    = "ONENGLISH_QUEUE"
	EnvTracingEnabled  = "ONENGLISH_TRACING"
	EnvOTLPEndpoint    = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvJudgeProvider   = "ONENGLISH_JUDGE_PROVIDER"
	EnvJudgeTimeout    = "ONENGLISH_JUDGE_TIMEOUT"
	EnvQuestionsPath   = "ONENGLISH_QUESTIONS_PATH"
)

// providerKeyEnv maps LLM providers to the environment variable holding
// their API key
var providerKeyEnv = map[string]string{
	"claude": "ANTHROPIC_API_KEY",
	"openai": "OPENAI_API_KEY",
	"gemini": "GEMINI_API_KEY",
}

// ApplyEnv overlays environment variables onto cfg. Setting DATABASE_URL
// or REDIS_ADDR alone is enough to switch the matching backend on.
func ApplyEnv(cfg *LocalConfig) {
	cfg.Daemon.Port = getEnvInt(EnvPort, cfg.Daemon.Port)
	cfg.Daemon.Bind = getEnv(EnvBind, cfg.Daemon.Bind)
	cfg.Daemon.LogLevel = getEnv(EnvLogLevel, cfg.Daemon.LogLevel)
	cfg.Daemon.SubmissionsPerMinute = getEnvInt(EnvSubmitRate, cfg.Daemon.SubmissionsPerMinute)

	if dsn := os.Getenv(EnvDatabaseURL); dsn != "" {
		cfg.Storage.DSN = dsn
		if os.Getenv(EnvStorageDriver) == "" {
			cfg.Storage.Driver = DriverPostgres
		}
	}
	cfg.Storage.Driver = strings.ToLower(getEnv(EnvStorageDriver, cfg.Storage.Driver))
	cfg.Storage.Path = getEnv(EnvSQLitePath, cfg.Storage.Path)

	if addr := os.Getenv(EnvRedisAddr); addr != "" {
		cfg.Attempts.RedisAddr = addr
		if os.Getenv(EnvAttemptsBackend) == "" {
			cfg.Attempts.Backend = BackendRedis
		}
	}
	cfg.Attempts.RedisPassword = getEnv(EnvRedisPassword, cfg.Attempts.RedisPassword)
	cfg.Attempts.Backend = strings.ToLower(getEnv(EnvAttemptsBackend, cfg.Attempts.Backend))
	cfg.Attempts.DefaultMax = getEnvInt(EnvMaxAttempts, cfg.Attempts.DefaultMax)

	if url := os.Getenv(EnvRabbitMQURL); url != "" {
		cfg.Queue.URL = url
		cfg.Queue.Enabled = true
	}
	cfg.Queue.Enabled = getEnvBool(EnvQueueEnabled, cfg.Queue.Enabled)

	if ep := os.Getenv(EnvOTLPEndpoint); ep != "" {
		cfg.Tracing.Endpoint = ep
		cfg.Tracing.Enabled = true
	}
	cfg.Tracing.Enabled = getEnvBool(EnvTracingEnabled, cfg.Tracing.Enabled)

	cfg.Judge.Provider = getEnv(EnvJudgeProvider, cfg.Judge.Provider)
	cfg.Judge.TimeoutSeconds = getEnvInt(EnvJudgeTimeout, cfg.Judge.TimeoutSeconds)
	cfg.QuestionsPath = getEnv(EnvQuestionsPath, cfg.QuestionsPath)

	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = make(map[string]*ProviderConfig)
	}
	for name, env := range providerKeyEnv {
		key := os.Getenv(env)
		if key == "" {
			continue
		}
		p, ok := cfg.LLM.Providers[name]
		if !ok {
			p = &ProviderConfig{}
			cfg.LLM.Providers[name] = p
		}
		p.APIKey = key
		p.Enabled = true
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
