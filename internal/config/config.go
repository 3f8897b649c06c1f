// Package config loads and validates newsgraph configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/newsgraph/internal/content"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Pipeline  PipelineConfig            `mapstructure:"pipeline"`
	HTTP      HTTPConfig                `mapstructure:"http"`
	Normalize NormalizeConfig           `mapstructure:"normalize"`
	NLP       NLPConfig                 `mapstructure:"nlp"`
	Records   RecordsConfig             `mapstructure:"records"`
	Graph     GraphConfig               `mapstructure:"graph"`
	Archive   ArchiveConfig             `mapstructure:"archive"`
	Publisher PublisherConfig           `mapstructure:"publisher"`
	Feeds     map[string]content.Source `mapstructure:"feeds"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int    `mapstructure:"port"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	APIKey                string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// PipelineConfig governs the worker pool and summarizer.
type PipelineConfig struct {
	Workers          int           `mapstructure:"workers"`
	QueueDepth       int           `mapstructure:"queue_depth"`
	SummarySentences int           `mapstructure:"summary_sentences"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	BlockedHosts     []string      `mapstructure:"blocked_hosts"`
}

// HTTPConfig configures download retry behavior and host politeness.
type HTTPConfig struct {
	Transport      string  `mapstructure:"transport"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxRetries     int     `mapstructure:"max_retries"`
	BackoffBaseMs  int     `mapstructure:"backoff_base_ms"`
	UserAgent      string  `mapstructure:"user_agent"`
	PerHostMax     int     `mapstructure:"per_host_max"`
	PerHostRPS     float64 `mapstructure:"per_host_rps"`
}

// NormalizeConfig points at an optional lookup-table override file.
type NormalizeConfig struct {
	TablesPath string `mapstructure:"tables_path"`
}

// NLPConfig selects the keyword/topic extractor.
type NLPConfig struct {
	Provider    string `mapstructure:"provider"`
	MaxKeywords int    `mapstructure:"max_keywords"`
}

// RecordsConfig selects the record store.
type RecordsConfig struct {
	Provider        string        `mapstructure:"provider"`
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// GraphConfig selects the graph store.
type GraphConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
}

// ArchiveConfig sets where raw markup is archived.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PublisherConfig holds metadata for resolution events.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from disk/environment. With an empty path it looks for
// newsgraph.yaml in the working directory, /etc/newsgraph and $HOME/.newsgraph.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEWSGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("newsgraph")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/newsgraph/")
		v.AddConfigPath("$HOME/.newsgraph")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	for id, src := range cfg.Feeds {
		if src.ID == "" {
			src.ID = id
			cfg.Feeds[id] = src
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.queue_depth", 64)
	v.SetDefault("pipeline.summary_sentences", 3)
	v.SetDefault("pipeline.poll_interval", "30m")
	v.SetDefault("http.transport", "colly")
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_base_ms", 2000)
	v.SetDefault("http.user_agent", DefaultUserAgent)
	v.SetDefault("http.per_host_max", 2)
	v.SetDefault("http.per_host_rps", 1.0)
	v.SetDefault("nlp.provider", "prose")
	v.SetDefault("nlp.max_keywords", 10)
	v.SetDefault("records.provider", "memory")
	v.SetDefault("records.table", "resolved_content")
	v.SetDefault("records.max_conn_lifetime", "1h")
	v.SetDefault("graph.provider", "memory")
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.base_dir", "archive")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("publisher.provider", "none")
	v.SetDefault("publisher.topic", "newsgraph-resolved")
}

// DefaultUserAgent is a desktop browser identity; several publishers block bot agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Pipeline.PollInterval < 0 {
		return fmt.Errorf("pipeline.poll_interval must be >= 0")
	}
	if err := oneOf("http.transport", c.HTTP.Transport, "colly", "resty"); err != nil {
		return err
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries <= 0 {
		return fmt.Errorf("http.max_retries must be > 0")
	}
	if c.HTTP.BackoffBaseMs < 0 {
		return fmt.Errorf("http.backoff_base_ms must be >= 0")
	}
	if c.HTTP.PerHostRPS < 0 {
		return fmt.Errorf("http.per_host_rps must be >= 0")
	}
	if err := oneOf("nlp.provider", c.NLP.Provider, "prose", "noop"); err != nil {
		return err
	}
	if err := oneOf("records.provider", c.Records.Provider, "memory", "postgres"); err != nil {
		return err
	}
	if c.Records.MinConns < 0 || (c.Records.MaxConns > 0 && c.Records.MinConns > c.Records.MaxConns) {
		return fmt.Errorf("records.min_conns must be between 0 and records.max_conns")
	}
	if c.Records.MaxConnLifetime < 0 {
		return fmt.Errorf("records.max_conn_lifetime must be >= 0")
	}
	if c.Records.Provider == "postgres" && c.Records.DSN == "" {
		return fmt.Errorf("records.dsn must be set when records.provider is postgres")
	}
	if err := oneOf("graph.provider", c.Graph.Provider, "memory", "postgres"); err != nil {
		return err
	}
	if c.Graph.Provider == "postgres" && c.Graph.DSN == "" {
		return fmt.Errorf("graph.dsn must be set when graph.provider is postgres")
	}
	if err := oneOf("archive.provider", c.Archive.Provider, "none", "memory", "local", "gcs"); err != nil {
		return err
	}
	if c.Archive.Provider == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
	}
	if err := oneOf("publisher.provider", c.Publisher.Provider, "none", "memory", "pubsub"); err != nil {
		return err
	}
	if c.Publisher.Provider == "pubsub" && c.Publisher.ProjectID == "" {
		return fmt.Errorf("publisher.project_id must be set when publisher.provider is pubsub")
	}
	for id, src := range c.Feeds {
		if src.URL == "" {
			return fmt.Errorf("feeds.%s.url must be set", id)
		}
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), value)
}

// DownloadTimeout converts the per-attempt timeout into a duration.
func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RequestTimeout converts the API per-request deadline into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// BackoffBase converts the linear backoff base into a duration.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.HTTP.BackoffBaseMs) * time.Millisecond
}
