package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	S3        S3Config
	Log       LogConfig
	CORS      CORSConfig
	Parse     ParseConfig
	Providers []ProviderConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// S3Config holds object storage settings. An empty bucket disables storage;
// asset inlining then falls back to data URIs.
type S3Config struct {
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	PresignExpiry int64  `mapstructure:"presign_expiry"`
}

// Enabled reports whether object storage is configured.
func (s *S3Config) Enabled() bool {
	return s.Bucket != ""
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ParseConfig holds run-level settings.
type ParseConfig struct {
	// MaxPages bounds per-request backend cost: PDFs are truncated to this
	// many pages before dispatch. Zero disables truncation.
	MaxPages      int   `mapstructure:"max_pages"`
	MaxFileSizeMB int64 `mapstructure:"max_file_size_mb"`
}

// ProviderConfig describes one backend in the provider registry.
type ProviderConfig struct {
	ID       string `mapstructure:"id"`
	Kind     string `mapstructure:"kind"`
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
	Model    string `mapstructure:"model"`

	PollIntervalSecs int `mapstructure:"poll_interval_secs"`
	PollMaxAttempts  int `mapstructure:"poll_max_attempts"`
	TimeoutSecs      int `mapstructure:"timeout_secs"`

	// Pricing: page-based backends use PricePerPage, token-based backends
	// use the per-million-token rates.
	PricePerPage    float64 `mapstructure:"price_per_page"`
	PriceInPerMTok  float64 `mapstructure:"price_in_per_mtok"`
	PriceOutPerMTok float64 `mapstructure:"price_out_per_mtok"`
}

// PollInterval returns the polling interval as a duration.
func (p *ProviderConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalSecs) * time.Second
}

// Timeout returns the per-call HTTP timeout as a duration.
func (p *ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// defaultProviders is the static provider registry. It is resolved once at
// load time; API keys and endpoints may be overridden per provider through
// the environment (DOCBENCH_PROVIDER_<ID>_API_KEY etc.).
func defaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{
			ID:               "llamaparse",
			Kind:             "layout",
			Endpoint:         "https://api.cloud.llamaindex.ai/api/parsing",
			PollIntervalSecs: 2,
			PollMaxAttempts:  30,
			TimeoutSecs:      30,
			PricePerPage:     0.003,
		},
		{
			ID:               "mistral-ocr",
			Kind:             "ocr_batch",
			Endpoint:         "https://api.mistral.ai/v1",
			Model:            "mistral-ocr-latest",
			PollIntervalSecs: 2,
			PollMaxAttempts:  60,
			TimeoutSecs:      30,
			PricePerPage:     0.001,
		},
		{
			ID:           "upstage",
			Kind:         "sync_ocr",
			Endpoint:     "https://api.upstage.ai/v1/document-ai/document-parse",
			TimeoutSecs:  120,
			PricePerPage: 0.01,
		},
		{
			ID:              "gpt-4o",
			Kind:            "vision",
			Endpoint:        "https://api.openai.com/v1/chat/completions",
			Model:           "gpt-4o",
			TimeoutSecs:     120,
			PriceInPerMTok:  2.5,
			PriceOutPerMTok: 10,
		},
		{
			ID:              "gpt-4o-mini",
			Kind:            "vision",
			Endpoint:        "https://api.openai.com/v1/chat/completions",
			Model:           "gpt-4o-mini",
			TimeoutSecs:     120,
			PriceInPerMTok:  0.15,
			PriceOutPerMTok: 0.6,
		},
	}
}

// Load reads configuration from environment variables with the DOCBENCH_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DOCBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "300s")
	v.SetDefault("server.environment", "development")

	// S3 defaults (bucket intentionally empty: storage is optional)
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.presign_expiry", 3600)

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// CORS defaults
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})

	// Parse defaults
	v.SetDefault("parse.max_pages", 2)
	v.SetDefault("parse.max_file_size_mb", 50)

	// Every key above carries a default, so AllSettings sees them and env
	// overrides flow through the single Unmarshal.
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Providers = defaultProviders()
	for i := range cfg.Providers {
		overlayProvider(v, &cfg.Providers[i])
	}

	return &cfg, nil
}

// overlayProvider applies per-provider environment overrides onto a registry
// entry.
func overlayProvider(v *viper.Viper, p *ProviderConfig) {
	prefix := "provider." + p.ID + "."
	if key := v.GetString(prefix + "api_key"); key != "" {
		p.APIKey = key
	}
	if ep := v.GetString(prefix + "endpoint"); ep != "" {
		p.Endpoint = ep
	}
	if model := v.GetString(prefix + "model"); model != "" {
		p.Model = model
	}
	if secs := v.GetInt(prefix + "poll_interval_secs"); secs > 0 {
		p.PollIntervalSecs = secs
	}
	if n := v.GetInt(prefix + "poll_max_attempts"); n > 0 {
		p.PollMaxAttempts = n
	}
}
