package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Cache.SemanticThreshold != 0.92 {
		t.Errorf("SemanticThreshold = %f, want 0.92", cfg.Cache.SemanticThreshold)
	}
	if cfg.Cache.SemanticTTLSecs != 3600 {
		t.Errorf("SemanticTTLSecs = %d, want 3600", cfg.Cache.SemanticTTLSecs)
	}
	if cfg.Retrieval.DefaultTopK != 5 {
		t.Errorf("DefaultTopK = %d, want 5", cfg.Retrieval.DefaultTopK)
	}
	if _, ok := cfg.RateLimit.Tiers["free"]; !ok {
		t.Error("free tier must always be present")
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("AG_PORT", "9090")
	os.Setenv("AG_LOG_LEVEL", "debug")
	os.Setenv("AG_CACHE_SEMANTIC_THRESHOLD", "0.85")
	defer func() {
		os.Unsetenv("AG_PORT")
		os.Unsetenv("AG_LOG_LEVEL")
		os.Unsetenv("AG_CACHE_SEMANTIC_THRESHOLD")
	}()

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}
	if cfg.Cache.SemanticThreshold != 0.85 {
		t.Errorf("SemanticThreshold = %f, want 0.85", cfg.Cache.SemanticThreshold)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
host: "127.0.0.1"
port: 8888
log:
  level: warn
  format: json
qdrant:
  url: "http://custom:6333"
moderation:
  enabled: true
  domain_keywords: ["contract", "gdpr", "liability"]
auth:
  required: true
  tenants:
    - api_key: "key-1"
      id: "acme"
      name: "Acme Corp"
      namespace: "acme"
      tier: "pro"
rate_limit:
  tiers:
    pro:
      requests_per_minute: 60
      requests_per_day: 5000
      tokens_per_day: 1000000
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Host = %s, want 127.0.0.1", cfg.Host)
	}
	if cfg.Port != 8888 {
		t.Errorf("Port = %d, want 8888", cfg.Port)
	}
	if cfg.Qdrant.URL != "http://custom:6333" {
		t.Errorf("Qdrant.URL = %s, want http://custom:6333", cfg.Qdrant.URL)
	}
	if len(cfg.Moderation.DomainKeywords) != 3 {
		t.Errorf("DomainKeywords = %v, want 3 entries", cfg.Moderation.DomainKeywords)
	}
	if len(cfg.Auth.Tenants) != 1 || cfg.Auth.Tenants[0].ID != "acme" {
		t.Errorf("Tenants = %+v, want one acme tenant", cfg.Auth.Tenants)
	}

	// A yaml tier table must never drop the free fallback tier.
	if _, ok := cfg.RateLimit.Tiers["free"]; !ok {
		t.Error("free tier must survive a yaml tier override")
	}
	if cfg.RateLimit.Tiers["pro"].RequestsPerMinute != 60 {
		t.Errorf("pro tier rpm = %d, want 60", cfg.RateLimit.Tiers["pro"].RequestsPerMinute)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid exact backend",
			mutate:  func(c *Config) { c.Cache.ExactBackend = "memcached" },
			wantErr: true,
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *Config) { c.Cache.SemanticThreshold = 1.5 },
			wantErr: true,
		},
		{
			name:    "tenant missing api key",
			mutate:  func(c *Config) { c.Auth.Tenants = []TenantConfig{{ID: "x"}} },
			wantErr: true,
		},
		{
			name:    "zero tier limit",
			mutate:  func(c *Config) { c.RateLimit.Tiers["free"] = TierConfig{} },
			wantErr: true,
		},
		{
			name:    "invalid bus type",
			mutate:  func(c *Config) { c.Bus.Type = "nats" },
			wantErr: true,
		},
		{
			name:    "overlap >= chunk size",
			mutate:  func(c *Config) { c.Ingest.OverlapSentences = c.Ingest.SentencesPerChunk },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			setDefaults(cfg)
			ensureFreeTier(cfg)
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddress(t *testing.T) {
	cfg := &Config{Host: "127.0.0.1", Port: 9000}
	if got := cfg.Address(); got != "127.0.0.1:9000" {
		t.Errorf("Address() = %s, want 127.0.0.1:9000", got)
	}
}
