package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Outreach  OutreachConfig  `yaml:"outreach" mapstructure:"outreach"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// SearchConfig configures the web search providers.
type SearchConfig struct {
	Provider      string  `yaml:"provider" mapstructure:"provider"`
	Fallback      string  `yaml:"fallback" mapstructure:"fallback"`
	SerpAPIKey    string  `yaml:"serpapi_key" mapstructure:"serpapi_key"`
	BingKey       string  `yaml:"bing_key" mapstructure:"bing_key"`
	BingEndpoint  string  `yaml:"bing_endpoint" mapstructure:"bing_endpoint"`
	Market        string  `yaml:"market" mapstructure:"market"`
	Freshness     string  `yaml:"freshness" mapstructure:"freshness"`
	HL            string  `yaml:"hl" mapstructure:"hl"`
	GL            string  `yaml:"gl" mapstructure:"gl"`
	Location      string  `yaml:"location" mapstructure:"location"`
	MaxResults    int     `yaml:"max_results" mapstructure:"max_results"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst     int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// AnthropicConfig holds Anthropic API settings for intent escalation.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	FastModel   string `yaml:"fast_model" mapstructure:"fast_model"`
	SmartModel  string `yaml:"smart_model" mapstructure:"smart_model"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PipelineConfig tunes scoring gates and run behavior.
type PipelineConfig struct {
	QueriesPerRun      int     `yaml:"queries_per_run" mapstructure:"queries_per_run"`
	MinScoreReady      int     `yaml:"min_score_ready" mapstructure:"min_score_ready"`
	MinScoreReview     int     `yaml:"min_score_review" mapstructure:"min_score_review"`
	MinConfidence      float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	MaxConcurrentLeads int     `yaml:"max_concurrent_leads" mapstructure:"max_concurrent_leads"`
	DisableAfterRuns   int     `yaml:"disable_after_runs" mapstructure:"disable_after_runs"`
	DisableWinRate     float64 `yaml:"disable_win_rate" mapstructure:"disable_win_rate"`
}

// OutreachConfig configures template rendering.
type OutreachConfig struct {
	OrderPageURL string `yaml:"order_page_url" mapstructure:"order_page_url"`
	UTMSource    string `yaml:"utm_source" mapstructure:"utm_source"`
	UTMMedium    string `yaml:"utm_medium" mapstructure:"utm_medium"`
	UTMCampaign  string `yaml:"utm_campaign" mapstructure:"utm_campaign"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("LEADSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "leadscout.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("search.provider", "serpapi")
	v.SetDefault("search.bing_endpoint", "https://api.bing.microsoft.com")
	v.SetDefault("search.market", "en-US")
	v.SetDefault("search.freshness", "Week")
	v.SetDefault("search.hl", "en")
	v.SetDefault("search.gl", "us")
	v.SetDefault("search.max_results", 20)
	v.SetDefault("search.rate_per_second", 1)
	v.SetDefault("search.rate_burst", 2)
	v.SetDefault("anthropic.fast_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.smart_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.timeout_secs", 20)
	v.SetDefault("pipeline.queries_per_run", 3)
	v.SetDefault("pipeline.min_score_ready", 70)
	v.SetDefault("pipeline.min_score_review", 50)
	v.SetDefault("pipeline.min_confidence", 0.6)
	v.SetDefault("pipeline.max_concurrent_leads", 4)
	v.SetDefault("pipeline.disable_after_runs", 20)
	v.SetDefault("pipeline.disable_win_rate", 0.05)
	v.SetDefault("outreach.utm_source", "outreach")
	v.SetDefault("outreach.utm_medium", "dm")
	v.SetDefault("outreach.utm_campaign", "leadscout")

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

// Validate checks that the configuration can support the given mode
// ("run", "serve", or "outcome"). All detected problems are reported at
// once.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			problems = append(problems, "store.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "run":
		switch c.Search.Provider {
		case "serpapi":
			if c.Search.SerpAPIKey == "" {
				problems = append(problems, "search.serpapi_key is required")
			}
		case "bing":
			if c.Search.BingKey == "" {
				problems = append(problems, "search.bing_key is required")
			}
		default:
			problems = append(problems, "search.provider must be serpapi or bing")
		}
		if c.Pipeline.QueriesPerRun < 1 {
			problems = append(problems, "pipeline.queries_per_run must be >= 1")
		}
		if c.Pipeline.MaxConcurrentLeads < 1 || c.Pipeline.MaxConcurrentLeads > 32 {
			problems = append(problems, "pipeline.max_concurrent_leads must be between 1 and 32")
		}
		if c.Pipeline.MinConfidence < 0 || c.Pipeline.MinConfidence > 1 {
			problems = append(problems, "pipeline.min_confidence must be within [0,1]")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "outcome":
		// Store checks above are sufficient.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
