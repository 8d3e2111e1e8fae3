// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Port        string `yaml:"port"`
	GRPCPort    string `yaml:"grpc_port"`
	FrontendURL string `yaml:"frontend_url"`
	DBPath      string `yaml:"db_path"`

	// TrustUserHeader accepts X-User-ID as the caller's identity. Enable only
	// behind a proxy that strips or sets the header itself.
	TrustUserHeader bool `yaml:"trust_user_header"`

	LLM         LLMConfig         `yaml:"llm"`
	SmartChoice SmartChoiceConfig `yaml:"smartchoice"`
	Chat        ChatConfig        `yaml:"chat"`
	SSE         SSEConfig         `yaml:"sse"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	NATS        NATSConfig        `yaml:"nats"`
}

// LLMConfig configures the OpenAI-compatible text-generation service.
type LLMConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// SmartChoiceConfig configures the plan-lookup service.
type SmartChoiceConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// ChatConfig controls the dialogue engine.
type ChatConfig struct {
	// Provider is the telecom tag recommendations are restricted to.
	Provider string `yaml:"provider"`
	// Extractor selects the slot extractor: "regex", "llm" or "chain".
	Extractor string `yaml:"extractor"`
	// RequireNonEmptySlots treats an empty slot value as missing.
	RequireNonEmptySlots bool `yaml:"require_non_empty_slots"`
}

// SSEConfig controls push channels.
type SSEConfig struct {
	KeepaliveInterval  time.Duration `yaml:"keepalive_interval"`
	RetryDelay         time.Duration `yaml:"retry_delay"`
	ChannelTimeout     time.Duration `yaml:"channel_timeout"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	MaxRequestBodySize int64         `yaml:"max_request_body_size"`
}

// RateLimitConfig controls per-user request throttling.
type RateLimitConfig struct {
	RequestsPerWindow int           `yaml:"requests_per_window"`
	WindowDuration    time.Duration `yaml:"window"`
}

// NATSConfig enables outcome publishing when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:   "8080",
		DBPath: "./data/chatplan.db",
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-3.5-turbo",
			Timeout: 60 * time.Second,
		},
		SmartChoice: SmartChoiceConfig{
			BaseURL: "https://api.smartchoice.or.kr/api",
			Timeout: 15 * time.Second,
		},
		Chat: ChatConfig{
			Provider:  "LGU+",
			Extractor: "regex",
		},
		SSE: SSEConfig{
			KeepaliveInterval:  10 * time.Second,
			RetryDelay:         5 * time.Second,
			ChannelTimeout:     24 * time.Hour,
			SweepInterval:      5 * time.Minute,
			MaxRequestBodySize: 1 << 20,
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: 20,
			WindowDuration:    time.Minute,
		},
		NATS: NATSConfig{
			SubjectPrefix: "chatplan",
		},
	}
}

// Load reads configuration from an optional YAML file named by CHATPLAN_CONFIG,
// then applies environment variables on top.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CHATPLAN_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.GRPCPort = getEnv("GRPC_PORT", cfg.GRPCPort)
	cfg.FrontendURL = getEnv("FRONTEND_URL", cfg.FrontendURL)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.TrustUserHeader = getEnvBool("TRUST_USER_HEADER", cfg.TrustUserHeader)

	cfg.LLM.APIKey = getEnv("OPENAI_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.BaseURL = getEnv("OPENAI_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Model = getEnv("OPENAI_MODEL", cfg.LLM.Model)
	cfg.LLM.Timeout = getEnvDuration("OPENAI_TIMEOUT", cfg.LLM.Timeout)

	cfg.SmartChoice.BaseURL = getEnv("SMARTCHOICE_BASE_URL", cfg.SmartChoice.BaseURL)
	cfg.SmartChoice.APIKey = getEnv("SMARTCHOICE_API_KEY", cfg.SmartChoice.APIKey)
	cfg.SmartChoice.Timeout = getEnvDuration("SMARTCHOICE_TIMEOUT", cfg.SmartChoice.Timeout)

	cfg.Chat.Provider = getEnv("RECOMMEND_PROVIDER", cfg.Chat.Provider)
	cfg.Chat.Extractor = strings.ToLower(getEnv("SLOT_EXTRACTOR", cfg.Chat.Extractor))
	cfg.Chat.RequireNonEmptySlots = getEnvBool("SLOT_REQUIRE_NON_EMPTY", cfg.Chat.RequireNonEmptySlots)

	cfg.SSE.KeepaliveInterval = getEnvDuration("SSE_KEEPALIVE_INTERVAL", cfg.SSE.KeepaliveInterval)
	cfg.SSE.RetryDelay = getEnvDuration("SSE_RETRY_DELAY", cfg.SSE.RetryDelay)
	cfg.SSE.ChannelTimeout = getEnvDuration("SSE_CHANNEL_TIMEOUT", cfg.SSE.ChannelTimeout)
	cfg.SSE.SweepInterval = getEnvDuration("SSE_SWEEP_INTERVAL", cfg.SSE.SweepInterval)
	cfg.SSE.MaxRequestBodySize = int64(getEnvInt("SSE_MAX_BODY", int(cfg.SSE.MaxRequestBodySize)))

	cfg.RateLimit.RequestsPerWindow = getEnvInt("RATE_LIMIT_REQUESTS", cfg.RateLimit.RequestsPerWindow)
	cfg.RateLimit.WindowDuration = getEnvDuration("RATE_LIMIT_WINDOW", cfg.RateLimit.WindowDuration)

	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Chat.Provider == "" {
		return fmt.Errorf("RECOMMEND_PROVIDER cannot be empty")
	}
	switch c.Chat.Extractor {
	case "regex", "llm", "chain":
	default:
		return fmt.Errorf("SLOT_EXTRACTOR must be one of regex, llm, chain; got %q", c.Chat.Extractor)
	}
	if c.SSE.KeepaliveInterval <= 0 {
		return fmt.Errorf("SSE_KEEPALIVE_INTERVAL must be > 0")
	}
	if c.SSE.SweepInterval <= 0 {
		return fmt.Errorf("SSE_SWEEP_INTERVAL must be > 0")
	}
	if c.SSE.ChannelTimeout <= 0 {
		return fmt.Errorf("SSE_CHANNEL_TIMEOUT must be > 0")
	}
	if c.SSE.MaxRequestBodySize <= 0 {
		return fmt.Errorf("SSE_MAX_BODY must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
