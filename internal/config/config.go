// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"AG_HOST" yaml:"host"`
	Port int    `envconfig:"AG_PORT" yaml:"port"`

	// Qdrant configuration
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Provider configuration (embedding + language model capabilities)
	Provider ProviderConfig `yaml:"provider"`

	// Cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Auth configuration
	Auth AuthConfig `yaml:"auth"`

	// RateLimit configuration
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Moderation configuration
	Moderation ModerationConfig `yaml:"moderation"`

	// Retrieval configuration
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Ingest configuration
	Ingest IngestConfig `yaml:"ingest"`

	// Usage configuration
	Usage UsageConfig `yaml:"usage"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	URL              string `envconfig:"QDRANT_URL" yaml:"url"`
	APIKey           string `envconfig:"QDRANT_API_KEY" yaml:"api_key"`
	CollectionPrefix string `envconfig:"QDRANT_COLLECTION_PREFIX" yaml:"collection_prefix"`
}

// ProviderConfig holds settings for the external embedding and LLM capabilities.
type ProviderConfig struct {
	BaseURL      string `envconfig:"AG_PROVIDER_URL" yaml:"base_url"`
	APIKeyEnv    string `envconfig:"AG_PROVIDER_API_KEY_ENV" yaml:"api_key_env"`
	EmbedModel   string `envconfig:"AG_EMBED_MODEL" yaml:"embed_model"`
	EmbedDim     int    `envconfig:"AG_EMBED_DIM" yaml:"embed_dim"`
	ChatModel    string `envconfig:"AG_CHAT_MODEL" yaml:"chat_model"`
	TimeoutSecs  int    `envconfig:"AG_PROVIDER_TIMEOUT_SECS" yaml:"timeout_secs"`
	EmbedBatch   int    `envconfig:"AG_EMBED_BATCH_SIZE" yaml:"embed_batch"`
	MaxTokens    int    `envconfig:"AG_CHAT_MAX_TOKENS" yaml:"max_tokens"`
	Temperature  float64 `envconfig:"AG_CHAT_TEMPERATURE" yaml:"temperature"`
}

// CacheConfig holds settings for the two-tier response cache.
type CacheConfig struct {
	// Exact tier: "memory" or "redis".
	ExactBackend string `envconfig:"AG_CACHE_EXACT_BACKEND" yaml:"exact_backend"`
	RedisURL     string `envconfig:"AG_REDIS_URL" yaml:"redis_url"`
	ExactTTLSecs int    `envconfig:"AG_CACHE_EXACT_TTL" yaml:"exact_ttl_secs"`

	// Semantic tier.
	SemanticEnabled   bool    `envconfig:"AG_CACHE_SEMANTIC_ENABLED" yaml:"semantic_enabled"`
	SemanticThreshold float64 `envconfig:"AG_CACHE_SEMANTIC_THRESHOLD" yaml:"semantic_threshold"`
	SemanticTTLSecs   int     `envconfig:"AG_CACHE_SEMANTIC_TTL" yaml:"semantic_ttl_secs"`
	SemanticNamespace string  `envconfig:"AG_CACHE_SEMANTIC_NAMESPACE" yaml:"semantic_namespace"`
}

// TenantConfig is a statically configured tenant credential mapping.
type TenantConfig struct {
	APIKey    string `yaml:"api_key"`
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace"`
	Tier      string `yaml:"tier"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// Required rejects unauthenticated requests; when false, requests
	// without a credential fall back to the demo tenant.
	Required bool `envconfig:"AG_AUTH_REQUIRED" yaml:"required"`

	// AdminKey gates the privileged admin surface.
	AdminKey string `envconfig:"AG_ADMIN_KEY" yaml:"admin_key"`

	// DemoNamespace is the vector namespace used by the fallback tenant.
	DemoNamespace string `envconfig:"AG_DEMO_NAMESPACE" yaml:"demo_namespace"`

	// Tenants is the static credential-to-tenant table.
	Tenants []TenantConfig `yaml:"tenants"`
}

// TierConfig holds per-tier quota limits.
type TierConfig struct {
	RequestsPerMinute int   `yaml:"requests_per_minute"`
	RequestsPerDay    int   `yaml:"requests_per_day"`
	TokensPerDay      int64 `yaml:"tokens_per_day"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	// Backend is "memory" or "redis".
	Backend  string `envconfig:"AG_RATELIMIT_BACKEND" yaml:"backend"`
	RedisURL string `envconfig:"AG_RATELIMIT_REDIS_URL" yaml:"redis_url"`

	// SweepIntervalSecs controls how often expired buckets are reclaimed.
	SweepIntervalSecs int `envconfig:"AG_RATELIMIT_SWEEP_SECS" yaml:"sweep_interval_secs"`

	// IPRequestsPerSecond is the outer per-client-IP limit (0 disables it).
	IPRequestsPerSecond float64 `envconfig:"AG_IP_RATE_LIMIT" yaml:"ip_requests_per_second"`

	// Tiers maps tier name to its quota limits. The "free" tier is
	// always present; unknown tenant tiers fall back to it.
	Tiers map[string]TierConfig `yaml:"tiers"`
}

// ModerationConfig holds moderation gate settings.
type ModerationConfig struct {
	Enabled bool `envconfig:"AG_MODERATION_ENABLED" yaml:"enabled"`

	// JailbreakPatterns are case-insensitive substrings that reject a
	// query outright.
	JailbreakPatterns []string `yaml:"jailbreak_patterns"`

	// DomainKeywords is the allowed-intent vocabulary; a query must
	// contain at least one of these to pass.
	DomainKeywords []string `yaml:"domain_keywords"`
}

// RetrievalConfig holds retrieval settings.
type RetrievalConfig struct {
	DefaultTopK int     `envconfig:"AG_DEFAULT_TOP_K" yaml:"default_top_k"`
	MaxTopK     int     `envconfig:"AG_MAX_TOP_K" yaml:"max_top_k"`
	MinScore    float64 `envconfig:"AG_MIN_SCORE" yaml:"min_score"`
}

// IngestConfig holds ingestion settings.
type IngestConfig struct {
	SentencesPerChunk int `envconfig:"AG_SENTENCES_PER_CHUNK" yaml:"sentences_per_chunk"`
	OverlapSentences  int `envconfig:"AG_OVERLAP_SENTENCES" yaml:"overlap_sentences"`
	Workers           int `envconfig:"AG_INGEST_WORKERS" yaml:"workers"`
}

// UsageConfig holds usage accounting settings.
type UsageConfig struct {
	// Cost per 1K tokens, in USD. Estimates only, never authoritative.
	EmbedCostPer1K      float64 `envconfig:"AG_EMBED_COST_PER_1K" yaml:"embed_cost_per_1k"`
	PromptCostPer1K     float64 `envconfig:"AG_PROMPT_COST_PER_1K" yaml:"prompt_cost_per_1k"`
	CompletionCostPer1K float64 `envconfig:"AG_COMPLETION_COST_PER_1K" yaml:"completion_cost_per_1k"`

	// HistorySize bounds the in-memory usage ring.
	HistorySize int `envconfig:"AG_USAGE_HISTORY_SIZE" yaml:"history_size"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type          string `envconfig:"AG_BUS_TYPE" yaml:"type"`
	KafkaBrokers  string `envconfig:"AG_KAFKA_BROKERS" yaml:"kafka_brokers"`
	ConsumerGroup string `envconfig:"AG_KAFKA_CONSUMER_GROUP" yaml:"consumer_group"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"AG_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"AG_LOG_FORMAT" yaml:"format"`
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	MetricsEnabled bool   `envconfig:"AG_METRICS_ENABLED" yaml:"metrics_enabled"`
	MetricsPath    string `envconfig:"AG_METRICS_PATH" yaml:"metrics_path"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	ensureFreeTier(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8080

	cfg.Qdrant = QdrantConfig{
		URL:              "http://localhost:6333",
		CollectionPrefix: "ag_",
	}

	cfg.Provider = ProviderConfig{
		BaseURL:     "https://api.openai.com/v1",
		APIKeyEnv:   "OPENAI_API_KEY",
		EmbedModel:  "text-embedding-3-small",
		EmbedDim:    1536,
		ChatModel:   "gpt-4o-mini",
		TimeoutSecs: 30,
		EmbedBatch:  32,
		MaxTokens:   1024,
		Temperature: 0.1,
	}

	cfg.Cache = CacheConfig{
		ExactBackend:      "memory",
		RedisURL:          "redis://localhost:6379",
		ExactTTLSecs:      3600,
		SemanticEnabled:   true,
		SemanticThreshold: 0.92,
		SemanticTTLSecs:   3600,
		SemanticNamespace: "semantic_cache",
	}

	cfg.Auth = AuthConfig{
		Required:      false,
		DemoNamespace: "default",
	}

	cfg.RateLimit = RateLimitConfig{
		Backend:             "memory",
		SweepIntervalSecs:   300,
		IPRequestsPerSecond: 0,
		Tiers: map[string]TierConfig{
			"free": {
				RequestsPerMinute: 10,
				RequestsPerDay:    200,
				TokensPerDay:      100_000,
			},
			"pro": {
				RequestsPerMinute: 60,
				RequestsPerDay:    5_000,
				TokensPerDay:      2_000_000,
			},
			"enterprise": {
				RequestsPerMinute: 600,
				RequestsPerDay:    100_000,
				TokensPerDay:      50_000_000,
			},
		},
	}

	cfg.Moderation = ModerationConfig{
		Enabled: true,
		JailbreakPatterns: []string{
			"ignore previous instructions",
			"ignore all previous instructions",
			"disregard your instructions",
			"jailbreak",
			"bypass safety",
			"system prompt",
			"you are now",
			"pretend you are",
		},
		DomainKeywords: nil, // empty vocabulary disables the intent check
	}

	cfg.Retrieval = RetrievalConfig{
		DefaultTopK: 5,
		MaxTopK:     100,
		MinScore:    0,
	}

	cfg.Ingest = IngestConfig{
		SentencesPerChunk: 5,
		OverlapSentences:  1,
		Workers:           4,
	}

	cfg.Usage = UsageConfig{
		EmbedCostPer1K:      0.00002,
		PromptCostPer1K:     0.00015,
		CompletionCostPer1K: 0.0006,
		HistorySize:         10_000,
	}

	cfg.Bus = BusConfig{
		Type:          "memory",
		ConsumerGroup: "answergrid",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Observability = ObservabilityConfig{
		MetricsEnabled: true,
		MetricsPath:    "/metrics",
	}
}

// ensureFreeTier guarantees the fallback tier is always present so an
// unknown tenant tier is governed, never unlimited.
func ensureFreeTier(cfg *Config) {
	if cfg.RateLimit.Tiers == nil {
		cfg.RateLimit.Tiers = make(map[string]TierConfig)
	}
	if _, ok := cfg.RateLimit.Tiers["free"]; !ok {
		cfg.RateLimit.Tiers["free"] = TierConfig{
			RequestsPerMinute: 10,
			RequestsPerDay:    200,
			TokensPerDay:      100_000,
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	if c.Provider.EmbedDim < 1 {
		errs = append(errs, "provider embed_dim must be positive")
	}

	if c.Provider.EmbedBatch < 1 {
		errs = append(errs, "provider embed_batch must be positive")
	}

	validExact := map[string]bool{"memory": true, "redis": true}
	if !validExact[c.Cache.ExactBackend] {
		errs = append(errs, fmt.Sprintf("invalid cache exact_backend: %s (must be memory or redis)", c.Cache.ExactBackend))
	}

	if c.Cache.SemanticThreshold < 0 || c.Cache.SemanticThreshold > 1 {
		errs = append(errs, "cache semantic_threshold must be between 0 and 1")
	}

	if c.Cache.SemanticTTLSecs < 1 {
		errs = append(errs, "cache semantic_ttl_secs must be positive")
	}

	validLimit := map[string]bool{"memory": true, "redis": true}
	if !validLimit[c.RateLimit.Backend] {
		errs = append(errs, fmt.Sprintf("invalid rate_limit backend: %s (must be memory or redis)", c.RateLimit.Backend))
	}

	for name, tier := range c.RateLimit.Tiers {
		if tier.RequestsPerMinute < 1 {
			errs = append(errs, fmt.Sprintf("tier %s: requests_per_minute must be positive", name))
		}
		if tier.RequestsPerDay < 1 {
			errs = append(errs, fmt.Sprintf("tier %s: requests_per_day must be positive", name))
		}
	}

	for i, t := range c.Auth.Tenants {
		if t.APIKey == "" {
			errs = append(errs, fmt.Sprintf("tenant %d: api_key is required", i))
		}
		if t.ID == "" {
			errs = append(errs, fmt.Sprintf("tenant %d: id is required", i))
		}
	}

	if c.Retrieval.DefaultTopK < 1 {
		errs = append(errs, "retrieval default_top_k must be positive")
	}

	if c.Retrieval.MaxTopK < c.Retrieval.DefaultTopK {
		errs = append(errs, "retrieval max_top_k must be >= default_top_k")
	}

	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if c.Ingest.SentencesPerChunk < 1 {
		errs = append(errs, "ingest sentences_per_chunk must be positive")
	}

	if c.Ingest.OverlapSentences >= c.Ingest.SentencesPerChunk {
		errs = append(errs, "ingest overlap_sentences must be less than sentences_per_chunk")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
