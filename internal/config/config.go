package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Redis   RedisConfig
	TTS     TTSConfig
	Cache   CacheConfig
	Queue   QueueConfig
	Webhook WebhookConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	RateLimitRPS float64
	RateBurst    int
	CORSOrigins  []string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ProviderSettings is the server-side credential set for one provider.
type ProviderSettings struct {
	APIKey      string
	APIEndpoint string
	ModelName   string
}

type TTSConfig struct {
	EnabledProviders []string
	Providers        map[string]ProviderSettings
	AttemptTimeout   time.Duration
	OpenAIBaseURL    string // default: SDK default
	GeminiBaseURL    string // default: SDK default
	TencentRegion    string // default: "ap-guangzhou"
	PiperBin         string // default: "piper"
	PiperVoicesDir   string // default: "./voices"
}

type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

type QueueConfig struct {
	Concurrency int
	JobTTL      time.Duration
}

// WebhookConfig controls job-completion callbacks. Without a secret the
// callbacks are sent unsigned.
type WebhookConfig struct {
	Secret  string
	Timeout time.Duration
}

// Load reads configuration from the environment, after loading a .env file
// from the working directory if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	rps, err := getEnvFloat("RATE_LIMIT_RPS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	burst, err := getEnvInt("RATE_LIMIT_BURST", 40)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	attemptTimeout, err := getEnvDuration("TTS_ATTEMPT_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid TTS_ATTEMPT_TIMEOUT: %w", err)
	}

	cacheEnabled, err := getEnvBool("CACHE_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_ENABLED: %w", err)
	}

	cacheTTL, err := getEnvDuration("CACHE_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}

	concurrency, err := getEnvInt("WORKER_CONCURRENCY", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_CONCURRENCY: %w", err)
	}

	jobTTL, err := getEnvDuration("JOB_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid JOB_TTL: %w", err)
	}

	webhookTimeout, err := getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         port,
			RateLimitRPS: rps,
			RateBurst:    burst,
			CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"*"}),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		TTS: TTSConfig{
			EnabledProviders: getEnvList("TTS_PROVIDERS", []string{"openai", "gemini", "edge", "tencent"}),
			Providers: map[string]ProviderSettings{
				"openai":  providerFromEnv("OPENAI", ""),
				"gemini":  providerFromEnv("GEMINI", ""),
				"edge":    providerFromEnv("EDGE", ""),
				"tencent": providerFromEnv("TENCENT", ""),
			},
			AttemptTimeout: attemptTimeout,
			OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
			GeminiBaseURL:  getEnv("GEMINI_BASE_URL", ""),
			TencentRegion:  getEnv("TENCENT_REGION", "ap-guangzhou"),
			PiperBin:       getEnv("PIPER_BIN", "piper"),
			PiperVoicesDir: getEnv("PIPER_VOICES_DIR", "./voices"),
		},
		Cache: CacheConfig{
			Enabled: cacheEnabled,
			TTL:     cacheTTL,
		},
		Queue: QueueConfig{
			Concurrency: concurrency,
			JobTTL:      jobTTL,
		},
		Webhook: WebhookConfig{
			Secret:  getEnv("WEBHOOK_SECRET", ""),
			Timeout: webhookTimeout,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate reports enabled providers that need a key but have none.
func (c *Config) Validate() error {
	var missing []string
	for _, name := range c.TTS.EnabledProviders {
		if name == "edge" || name == "piper" {
			continue
		}
		if c.TTS.Providers[name].APIKey == "" {
			missing = append(missing, strings.ToUpper(name)+"_API_KEY")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func providerFromEnv(prefix, defaultModel string) ProviderSettings {
	return ProviderSettings{
		APIKey:      strings.TrimSpace(getEnv(prefix+"_API_KEY", "")),
		APIEndpoint: getEnv(prefix+"_API_ENDPOINT", ""),
		ModelName:   getEnv(prefix+"_MODEL", defaultModel),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}
