package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/servio-ai/prospector-cli/internal/filter"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Filter     FilterConfig     `yaml:"filter" mapstructure:"filter"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Outreach   OutreachConfig   `yaml:"outreach" mapstructure:"outreach"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Import     ImportConfig     `yaml:"import" mapstructure:"import"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// FilterConfig tunes the filter evaluator.
type FilterConfig struct {
	DebounceMS       int `yaml:"debounce_ms" mapstructure:"debounce_ms"`
	CacheCollections int `yaml:"cache_collections" mapstructure:"cache_collections"`
	CacheEntries     int `yaml:"cache_entries" mapstructure:"cache_entries"`
}

// AnthropicConfig holds Anthropic API settings for outreach drafting.
type AnthropicConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	Model     string  `yaml:"model" mapstructure:"model"`
	MaxTokens int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// OutreachConfig configures message templates.
type OutreachConfig struct {
	SenderName   string `yaml:"sender_name" mapstructure:"sender_name"`
	Company      string `yaml:"company" mapstructure:"company"`
	TemplatesDir string `yaml:"templates_dir" mapstructure:"templates_dir"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID  string  `yaml:"client_id" mapstructure:"client_id"`
	Username  string  `yaml:"username" mapstructure:"username"`
	KeyPath   string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL  string  `yaml:"login_url" mapstructure:"login_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// NotionConfig holds Notion API credentials and the lead database ID.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// ImportConfig configures lead imports.
type ImportConfig struct {
	Charset     string `yaml:"charset" mapstructure:"charset"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SERVIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "prospector.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("filter.debounce_ms", int(filter.DefaultDebounce/time.Millisecond))
	v.SetDefault("filter.cache_collections", filter.DefaultCacheCollections)
	v.SetDefault("filter.cache_entries", filter.DefaultCacheEntries)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 512)
	v.SetDefault("anthropic.rate_limit", 2.0)
	v.SetDefault("outreach.sender_name", "Equipe Servio")
	v.SetDefault("outreach.company", "Servio.AI")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 5.0)
	v.SetDefault("import.charset", "utf-8")
	v.SetDefault("import.concurrency", 4)

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

// Validate checks the settings a command mode depends on. Modes: serve,
// store, draft-ai, import-salesforce, import-notion.
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Filter.DebounceMS < 0 {
		errs = append(errs, "filter.debounce_ms must be >= 0")
	}
	if c.Filter.CacheCollections < 1 || c.Filter.CacheEntries < 1 {
		errs = append(errs, "filter cache sizes must be >= 1")
	}
	if c.Import.Concurrency < 1 || c.Import.Concurrency > 32 {
		errs = append(errs, "import.concurrency must be between 1 and 32")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		errs = append(errs, c.storeErrors()...)
	case "store":
		errs = append(errs, c.storeErrors()...)
	case "draft-ai":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Anthropic.MaxTokens <= 0 {
			errs = append(errs, "anthropic.max_tokens must be > 0")
		}
	case "import-salesforce":
		errs = append(errs, c.storeErrors()...)
		if c.Salesforce.ClientID == "" {
			errs = append(errs, "salesforce.client_id is required")
		}
		if c.Salesforce.Username == "" {
			errs = append(errs, "salesforce.username is required")
		}
		if c.Salesforce.KeyPath == "" {
			errs = append(errs, "salesforce.key_path is required")
		}
	case "import-notion":
		errs = append(errs, c.storeErrors()...)
		if c.Notion.Token == "" {
			errs = append(errs, "notion.token is required")
		}
		if c.Notion.LeadDB == "" {
			errs = append(errs, "notion.lead_db is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) storeErrors() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

// FilterOptions converts the filter section into evaluator options.
func (c *Config) FilterOptions() []filter.Option {
	return []filter.Option{
		filter.WithDebounce(time.Duration(c.Filter.DebounceMS) * time.Millisecond),
		filter.WithCacheSize(c.Filter.CacheCollections, c.Filter.CacheEntries),
		filter.WithLogger(zap.L().Named("filter")),
	}
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
