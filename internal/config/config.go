package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

var (
	ErrMissingDatabaseDSN = errors.New("DB_DSN is required")
	ErrInvalidDriver      = errors.New("DB_DRIVER must be 'sqlite' or 'postgres'")
	ErrInvalidStore       = errors.New("SESSION_STORE must be 'memory' or 'redis'")
	ErrMissingRedis       = errors.New("REDIS_ADDR is required for the redis session store, telegram and rate limiting")
	ErrMissingMasterKey   = errors.New("at least one master key is required")
	ErrInvalidOwnerID     = errors.New("DEFAULT_OWNER_ID must be > 0")
)

type Config struct {
	HTTP     HTTPConfig
	Redis    RedisConfig
	DB       DBConfig
	Session  SessionConfig
	LLM      LLMConfig
	Chatbot  ChatbotConfig
	Rate     RateConfig
	Telegram TelegramConfig
	Crypto   CryptoConfig
	Log      LogConfig
}

type HTTPConfig struct {
	ListenAddr     string
	PublicURL      string
	AllowedOrigins []string
	HealthPath     string
	MetricsPath    string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// RedisConfig is optional; an empty Addr means no redis connection is made.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	UpdateTTL time.Duration
}

type DBConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

type SessionConfig struct {
	Store         string
	TTL           time.Duration
	SweepInterval time.Duration
}

type LLMConfig struct {
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64

	OllamaBaseURL     string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	AnthropicAPIKey   string
	AnthropicBaseURL  string
	GoogleAPIKey      string
	HuggingFaceAPIKey string
	HuggingFaceURL    string

	CustomURL          string
	CustomAPIKey       string
	CustomModels       []string
	CustomBodyTemplate string
	CustomResponsePath string
}

type ChatbotConfig struct {
	DefaultModel   string
	DefaultOwnerID int64
}

type RateConfig struct {
	PerHour int64
}

type TelegramConfig struct {
	BotToken    string
	WebhookURL  string
	SecretPath  string
	SecretToken string

	// relay jobs go through a redis stream consumed by a worker pool
	QueueStream  string
	QueueGroup   string
	ConsumerName string
	QueueBlock   time.Duration
	Concurrency  int
	MaxRetries   int
}

func (t TelegramConfig) Enabled() bool {
	return t.BotToken != ""
}

type CryptoConfig struct {
	CurrentKeyID string
	Keys         map[string][]byte
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			ListenAddr:     mustEnv("LISTEN_ADDR", ":5000"),
			PublicURL:      strings.TrimRight(mustEnv("PUBLIC_URL", "http://localhost:5000"), "/"),
			AllowedOrigins: splitList(mustEnv("ALLOWED_ORIGINS", "*")),
			HealthPath:     mustEnv("HEALTH_PATH", "/healthz"),
			MetricsPath:    mustEnv("METRICS_PATH", "/metrics"),
			ReadTimeout:    mustDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   mustDuration("HTTP_WRITE_TIMEOUT", 90*time.Second),
		},
		Redis: RedisConfig{
			Addr:      mustEnv("REDIS_ADDR", ""),
			Password:  mustEnv("REDIS_PASSWORD", ""),
			DB:        mustInt("REDIS_DB", 0),
			UpdateTTL: mustDuration("UPDATE_DEDUPE_TTL", 6*time.Hour),
		},
		DB: DBConfig{
			Driver:      strings.ToLower(mustEnv("DB_DRIVER", DriverSQLite)),
			DSN:         mustEnv("DB_DSN", "file:botsmith.db?_pragma=busy_timeout(5000)"),
			AutoMigrate: mustBool("AUTO_MIGRATE", true),
		},
		Session: SessionConfig{
			Store:         strings.ToLower(mustEnv("SESSION_STORE", SessionStoreMemory)),
			TTL:           mustDuration("SESSION_TTL", 30*time.Minute),
			SweepInterval: mustDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		},
		LLM: LLMConfig{
			Timeout:            mustDuration("LLM_TIMEOUT", 60*time.Second),
			MaxTokens:          mustInt("LLM_MAX_TOKENS", 1024),
			Temperature:        mustFloat("LLM_TEMPERATURE", 0.7),
			OllamaBaseURL:      mustEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OpenAIAPIKey:       mustEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:      mustEnv("OPENAI_BASE_URL", ""),
			AnthropicAPIKey:    mustEnv("ANTHROPIC_API_KEY", ""),
			AnthropicBaseURL:   mustEnv("ANTHROPIC_BASE_URL", ""),
			GoogleAPIKey:       mustEnv("GOOGLE_API_KEY", ""),
			HuggingFaceAPIKey:  mustEnv("HUGGING_FACE_API_KEY", mustEnv("HF_TOKEN", "")),
			HuggingFaceURL:     mustEnv("HUGGING_FACE_URL", "https://api-inference.huggingface.co/models"),
			CustomURL:          mustEnv("CUSTOM_LLM_URL", ""),
			CustomAPIKey:       mustEnv("CUSTOM_LLM_API_KEY", ""),
			CustomModels:       splitList(mustEnv("CUSTOM_LLM_MODELS", "default")),
			CustomBodyTemplate: mustEnv("CUSTOM_LLM_BODY_TEMPLATE", ""),
			CustomResponsePath: mustEnv("CUSTOM_LLM_RESPONSE_PATH", ""),
		},
		Chatbot: ChatbotConfig{
			DefaultModel:   mustEnv("DEFAULT_CHATBOT_MODEL", "ollama:llama3.2"),
			DefaultOwnerID: mustInt64("DEFAULT_OWNER_ID", 1),
		},
		Rate: RateConfig{
			PerHour: mustInt64("RATE_LIMIT_PER_HOUR", 0),
		},
		Telegram: TelegramConfig{
			BotToken:    mustEnv("TELEGRAM_BOT_TOKEN", ""),
			WebhookURL:  mustEnv("TELEGRAM_WEBHOOK_URL", ""),
			SecretPath:  strings.Trim(mustEnv("TELEGRAM_WEBHOOK_PATH", "telegram"), "/"),
			SecretToken: mustEnv("TELEGRAM_WEBHOOK_SECRET", ""),

			QueueStream:  mustEnv("TELEGRAM_QUEUE_STREAM", "botsmith:telegram:relay"),
			QueueGroup:   mustEnv("TELEGRAM_QUEUE_GROUP", "relay"),
			ConsumerName: mustEnv("TELEGRAM_CONSUMER_NAME", hostname()),
			QueueBlock:   mustDuration("TELEGRAM_QUEUE_BLOCK", 5*time.Second),
			Concurrency:  mustInt("TELEGRAM_WORKERS", 4),
			MaxRetries:   mustInt("TELEGRAM_MAX_RETRIES", 2),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
	}

	if cfg.DB.DSN == "" {
		return nil, ErrMissingDatabaseDSN
	}
	if cfg.DB.Driver != DriverSQLite && cfg.DB.Driver != DriverPostgres {
		return nil, ErrInvalidDriver
	}
	if cfg.Session.Store != SessionStoreMemory && cfg.Session.Store != SessionStoreRedis {
		return nil, ErrInvalidStore
	}
	if cfg.NeedsRedis() && cfg.Redis.Addr == "" {
		return nil, ErrMissingRedis
	}
	if cfg.Chatbot.DefaultOwnerID <= 0 {
		return nil, ErrInvalidOwnerID
	}
	if cfg.LLM.Timeout <= 0 {
		return nil, fmt.Errorf("LLM_TIMEOUT must be positive, got %s", cfg.LLM.Timeout)
	}

	cc, err := loadCryptoConfig()
	if err != nil {
		return nil, err
	}
	cfg.Crypto = cc

	return cfg, nil
}

// NeedsRedis reports whether any enabled component depends on redis.
func (c *Config) NeedsRedis() bool {
	return c.Session.Store == SessionStoreRedis || c.Telegram.Enabled() || c.Rate.PerHour > 0
}

func loadCryptoConfig() (CryptoConfig, error) {
	keysB64 := map[string]string{}

	if raw := mustEnv("MASTER_KEYS_JSON", ""); raw != "" {
		var parsed map[string]string
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return CryptoConfig{}, fmt.Errorf("parse MASTER_KEYS_JSON: %w", err)
		}
		for id, val := range parsed {
			if strings.TrimSpace(id) == "" || strings.TrimSpace(val) == "" {
				continue
			}
			keysB64[id] = val
		}
	}

	for _, e := range os.Environ() {
		k, v, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		if !strings.HasPrefix(k, "MASTER_KEY_") || !strings.HasSuffix(k, "_B64") || k == "MASTER_KEY_B64" {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(k, "MASTER_KEY_"), "_B64")
		if id == "" || v == "" {
			continue
		}
		keysB64[id] = v
	}

	current := mustEnv("MASTER_KEY_CURRENT_ID", "")
	if singleton := mustEnv("MASTER_KEY_B64", ""); singleton != "" {
		if current == "" {
			current = "default"
		}
		keysB64[current] = singleton
	}

	if len(keysB64) == 0 {
		return CryptoConfig{}, ErrMissingMasterKey
	}

	keys := make(map[string][]byte, len(keysB64))
	for id, b64 := range keysB64 {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return CryptoConfig{}, fmt.Errorf("decode master key %q: %w", id, err)
		}
		if len(raw) != 32 {
			return CryptoConfig{}, fmt.Errorf("master key %q must be 32 bytes after base64 decode", id)
		}
		keys[id] = raw
	}

	if current == "" {
		for id := range keys {
			current = id
			break
		}
	}
	if _, ok := keys[current]; !ok {
		return CryptoConfig{}, fmt.Errorf("MASTER_KEY_CURRENT_ID=%q does not exist in provided keys", current)
	}

	return CryptoConfig{
		CurrentKeyID: current,
		Keys:         keys,
	}, nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "botsmith"
	}
	return h
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustInt(key string, def int) int {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustInt64(key string, def int64) int64 {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func mustFloat(key string, def float64) float64 {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func mustBool(key string, def bool) bool {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
