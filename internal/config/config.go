package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/visibility-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Index     IndexConfig     `yaml:"index" mapstructure:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval" mapstructure:"retrieval"`
	Assembly  AssemblyConfig  `yaml:"assembly" mapstructure:"assembly"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Reader    ReaderConfig    `yaml:"reader" mapstructure:"reader"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// IndexConfig configures the content index connection.
type IndexConfig struct {
	Host   string `yaml:"host" mapstructure:"host"`
	Scheme string `yaml:"scheme" mapstructure:"scheme"`
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
	Class  string `yaml:"class" mapstructure:"class"`
}

// RetrievalConfig configures context retrieval behavior.
type RetrievalConfig struct {
	TopK               int    `yaml:"top_k" mapstructure:"top_k"`
	MaxInFlight        int    `yaml:"max_in_flight" mapstructure:"max_in_flight"`
	AttemptTimeoutSecs int    `yaml:"attempt_timeout_secs" mapstructure:"attempt_timeout_secs"`
	Policy             string `yaml:"policy" mapstructure:"policy"`
	MaxAttempts        int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// AssemblyConfig configures full-content enrichment of retrieved passages.
type AssemblyConfig struct {
	Enabled          bool `yaml:"enabled" mapstructure:"enabled"`
	MaxConcurrent    int  `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	FetchTimeoutSecs int  `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	MaxContentLength int  `yaml:"max_content_length" mapstructure:"max_content_length"`
}

// ProviderConfig holds one answer provider's settings.
type ProviderConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	MaxConcurrent     int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// ProvidersConfig holds all answer provider settings. OpenAI doubles as the
// embedding backend for index search, so it stays configured even when
// disabled as an answer provider.
type ProvidersConfig struct {
	OpenAI     ProviderConfig `yaml:"openai" mapstructure:"openai"`
	Gemini     ProviderConfig `yaml:"gemini" mapstructure:"gemini"`
	Claude     ProviderConfig `yaml:"claude" mapstructure:"claude"`
	Perplexity ProviderConfig `yaml:"perplexity" mapstructure:"perplexity"`
}

// ReaderConfig holds content reader settings for passage enrichment.
type ReaderConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AuditConfig configures audit run defaults.
type AuditConfig struct {
	Budget           int      `yaml:"budget" mapstructure:"budget"`
	Intents          []string `yaml:"intents" mapstructure:"intents"`
	IncludeResponses bool     `yaml:"include_responses" mapstructure:"include_responses"`
	MaxQueryWorkers  int      `yaml:"max_query_workers" mapstructure:"max_query_workers"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VISIBILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "visibility.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("index.host", "localhost:8080")
	v.SetDefault("index.scheme", "http")
	v.SetDefault("index.class", "ContentChunk")

	v.SetDefault("retrieval.top_k", 4)
	v.SetDefault("retrieval.max_in_flight", 8)
	v.SetDefault("retrieval.attempt_timeout_secs", 30)
	v.SetDefault("retrieval.policy", "per_query")
	v.SetDefault("retrieval.max_attempts", 3)

	v.SetDefault("assembly.enabled", false)
	v.SetDefault("assembly.max_concurrent", 4)
	v.SetDefault("assembly.fetch_timeout_secs", 20)
	v.SetDefault("assembly.max_content_length", 8000)

	v.SetDefault("providers.openai.enabled", true)
	v.SetDefault("providers.openai.model", "gpt-4o-mini")
	v.SetDefault("providers.gemini.enabled", true)
	v.SetDefault("providers.gemini.model", "gemini-2.0-flash")
	v.SetDefault("providers.claude.enabled", true)
	v.SetDefault("providers.claude.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("providers.perplexity.enabled", true)
	v.SetDefault("providers.perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("providers.perplexity.model", "sonar-pro")
	for _, p := range []string{"openai", "gemini", "claude", "perplexity"} {
		v.SetDefault("providers."+p+".max_concurrent", 2)
		v.SetDefault("providers."+p+".timeout_secs", 60)
	}

	v.SetDefault("reader.base_url", "https://r.jina.ai")

	v.SetDefault("audit.budget", 24)
	v.SetDefault("audit.intents", []string{})
	v.SetDefault("audit.include_responses", false)
	v.SetDefault("audit.max_query_workers", 4)
}

// Validate checks the configuration for the given mode ("audit" or
// "serve"). The error names every missing or out-of-range field.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "audit", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}

	if c.Index.Host == "" {
		problems = append(problems, "index.host is required")
	}
	if c.Providers.OpenAI.Key == "" {
		// Index search embeds queries through the OpenAI API.
		problems = append(problems, "providers.openai.key is required")
	}

	enabled := 0
	for name, p := range map[string]ProviderConfig{
		"openai":     c.Providers.OpenAI,
		"gemini":     c.Providers.Gemini,
		"claude":     c.Providers.Claude,
		"perplexity": c.Providers.Perplexity,
	} {
		if !p.Enabled {
			continue
		}
		enabled++
		if p.Key == "" {
			problems = append(problems, "providers."+name+".key is required when enabled")
		}
	}
	if enabled == 0 {
		problems = append(problems, "at least one provider must be enabled")
	}

	switch c.Retrieval.Policy {
	case "per_query", "batched":
	default:
		problems = append(problems, "retrieval.policy must be per_query or batched")
	}
	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 50 {
		problems = append(problems, "retrieval.top_k must be between 1 and 50")
	}
	if c.Retrieval.MaxInFlight < 1 || c.Retrieval.MaxInFlight > 64 {
		problems = append(problems, "retrieval.max_in_flight must be between 1 and 64")
	}

	if c.Assembly.Enabled && c.Reader.Key == "" {
		problems = append(problems, "reader.key is required when assembly is enabled")
	}

	if mode == "serve" && c.Server.Addr == "" {
		problems = append(problems, "server.addr is required")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for mode %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
