// Package config provides environment configuration for the engine server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSOrigins        []string

	// NATS settings
	NATSEnabled  bool
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string
	LLMModel        string
	ProviderTimeout time.Duration

	// Engine
	AutoReplyDelay       time.Duration
	TranslationCacheSize int
	ReceiveLanguage      string
	SendLanguage         string
	TranslationEngine    string
	SendTimeWindows      []string
	SeedFile             string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("SERVER_READ_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 120*time.Second)
	v.SetDefault("CORS_ORIGINS", "*")

	v.SetDefault("NATS_ENABLED", false)
	v.SetDefault("NATS_URL", "nats://localhost:4222")

	v.SetDefault("JWT_SECRET", "development-secret-change-in-production")

	v.SetDefault("DEFAULT_LLM", "anthropic")
	v.SetDefault("PROVIDER_TIMEOUT", 60*time.Second)

	v.SetDefault("AUTO_REPLY_DELAY", 30*time.Second)
	v.SetDefault("TRANSLATION_CACHE_SIZE", 4096)
	v.SetDefault("RECEIVE_LANGUAGE", "en")
	v.SetDefault("SEND_LANGUAGE", "en")
	v.SetDefault("TRANSLATION_ENGINE", "llm")

	v.SetDefault("RATE_LIMIT_REQUESTS", 60)
	v.SetDefault("RATE_LIMIT_WINDOW", time.Minute)

	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("TRACING_ENDPOINT", "localhost:4318")
	v.SetDefault("TRACING_ENABLED", false)
}

// Load reads configuration from environment variables. When CONFIG_FILE is
// set, that file is read first and the environment overrides it.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		// Server
		ServerPort:         v.GetString("PORT"),
		ServerReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
		ServerWriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
		CORSOrigins:        splitList(v.GetString("CORS_ORIGINS")),

		// NATS
		NATSEnabled:  v.GetBool("NATS_ENABLED"),
		NATSURL:      v.GetString("NATS_URL"),
		NATSCAFile:   v.GetString("NATS_CA_FILE"),
		NATSCertFile: v.GetString("NATS_CERT_FILE"),
		NATSKeyFile:  v.GetString("NATS_KEY_FILE"),
		NATSToken:    v.GetString("NATS_TOKEN"),

		// JWT
		JWTSecret: v.GetString("JWT_SECRET"),

		// LLM
		AnthropicAPIKey: v.GetString("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    v.GetString("OPENAI_API_KEY"),
		DefaultLLM:      v.GetString("DEFAULT_LLM"),
		LLMModel:        v.GetString("LLM_MODEL"),
		ProviderTimeout: v.GetDuration("PROVIDER_TIMEOUT"),

		// Engine
		AutoReplyDelay:       v.GetDuration("AUTO_REPLY_DELAY"),
		TranslationCacheSize: v.GetInt("TRANSLATION_CACHE_SIZE"),
		ReceiveLanguage:      v.GetString("RECEIVE_LANGUAGE"),
		SendLanguage:         v.GetString("SEND_LANGUAGE"),
		TranslationEngine:    v.GetString("TRANSLATION_ENGINE"),
		SendTimeWindows:      splitWindows(v.GetString("SEND_TIME_WINDOWS")),
		SeedFile:             v.GetString("SEED_FILE"),

		// Rate limiting
		RateLimitRequests: v.GetInt("RATE_LIMIT_REQUESTS"),
		RateLimitWindow:   v.GetDuration("RATE_LIMIT_WINDOW"),

		// Logging
		LogLevel: v.GetString("LOG_LEVEL"),

		// Tracing
		TracingEndpoint: v.GetString("TRACING_ENDPOINT"),
		TracingEnabled:  v.GetBool("TRACING_ENABLED"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AutoReplyDelay <= 0 {
		return fmt.Errorf("AUTO_REPLY_DELAY must be positive, got %s", c.AutoReplyDelay)
	}
	if c.TranslationCacheSize <= 0 {
		return fmt.Errorf("TRANSLATION_CACHE_SIZE must be positive, got %d", c.TranslationCacheSize)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive, got %s", c.ProviderTimeout)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// splitWindows splits on ';' because cron expressions contain commas.
func splitWindows(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
