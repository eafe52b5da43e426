package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/spf13/viper"
)

// Config holds all configuration for the extension host
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Tokens    TokensConfig    `mapstructure:"tokens"`
	MCP       MCPConfig       `mapstructure:"mcp"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Research  ResearchConfig  `mapstructure:"research"`
	Storage   StorageConfig   `mapstructure:"storage"`
	History   HistoryConfig   `mapstructure:"history"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address                string        `mapstructure:"address"`
	AllowedOrigins         []string      `mapstructure:"allowed_origins"`
	AdminJWTSecret         string        `mapstructure:"admin_jwt_secret"`
	RequireExtensionOrigin bool          `mapstructure:"require_extension_origin"`
	StreamTimeout          time.Duration `mapstructure:"stream_timeout"`
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.Address) == "" {
		return fmt.Errorf("server.address required")
	}
	if s.StreamTimeout <= 0 {
		return fmt.Errorf("server.stream_timeout must be > 0")
	}
	return nil
}

// LimitsConfig caps research requests per fingerprint
type LimitsConfig struct {
	Daily  int `mapstructure:"daily"`
	Hourly int `mapstructure:"hourly"`
}

func (l LimitsConfig) Validate() error {
	if l.Daily <= 0 || l.Hourly <= 0 {
		return fmt.Errorf("limits.daily and limits.hourly must be > 0")
	}
	return nil
}

// TokensConfig controls session token issuance
type TokensConfig struct {
	Lifetime          time.Duration `mapstructure:"lifetime"`
	MaxPerFingerprint int           `mapstructure:"max_per_fingerprint"`
}

func (t TokensConfig) Validate() error {
	if t.Lifetime <= 0 {
		return fmt.Errorf("tokens.lifetime must be > 0")
	}
	if t.MaxPerFingerprint <= 0 {
		return fmt.Errorf("tokens.max_per_fingerprint must be > 0")
	}
	return nil
}

// MCPConfig points at the remote AustLII tool server
type MCPConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SearchTool  string        `mapstructure:"search_tool"`
	LinkTool    string        `mapstructure:"link_tool"`
	LinkTimeout time.Duration `mapstructure:"link_timeout"`
}

func (m MCPConfig) Validate() error {
	if strings.TrimSpace(m.Endpoint) == "" {
		return fmt.Errorf("mcp.endpoint required")
	}
	if strings.TrimSpace(m.SearchTool) == "" || strings.TrimSpace(m.LinkTool) == "" {
		return fmt.Errorf("mcp.search_tool and mcp.link_tool required")
	}
	return nil
}

// LLMConfig contains the model provider settings
type LLMConfig struct {
	Provider string        `mapstructure:"provider"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if l.Provider != "gemini" {
		return fmt.Errorf("llm.provider %q not supported", l.Provider)
	}
	return nil
}

// ResearchConfig holds request defaults
type ResearchConfig struct {
	DefaultDatabases []string `mapstructure:"default_databases"`
	MaxResults       int      `mapstructure:"max_results"`
	MaxDatabases     int      `mapstructure:"max_databases"`
	SearchBaseURL    string   `mapstructure:"search_base_url"`
}

func (r ResearchConfig) Validate() error {
	if len(r.DefaultDatabases) == 0 {
		return fmt.Errorf("research.default_databases must not be empty")
	}
	if r.MaxResults < 1 || r.MaxResults > 50 {
		return fmt.Errorf("research.max_results must be within 1..50")
	}
	if r.MaxDatabases < 1 || r.MaxDatabases > 10 {
		return fmt.Errorf("research.max_databases must be within 1..10")
	}
	return nil
}

// StorageConfig contains optional backing stores
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings. An empty host disables the
// share link cache.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LinkTTL  time.Duration `mapstructure:"link_ttl"`
}

func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns URL when set, otherwise builds one from the parts.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.DBName, ssl)
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// HistoryConfig controls the research history store and its purge job
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	RetentionDays int    `mapstructure:"retention_days"`
	PurgeSchedule string `mapstructure:"purge_schedule"`
}

// TelemetryConfig contains tracing settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && strings.TrimSpace(t.OTLPEndpoint) == "" {
		return fmt.Errorf("telemetry.otlp_endpoint required when telemetry is enabled")
	}
	return nil
}

// Validate checks every section.
// StageBudget is the longest a research request can spend in its stages:
// planning and summarizing (llm.timeout each), search (mcp.timeout) and the
// share link (mcp.link_timeout).
func (c *Config) StageBudget() time.Duration {
	return 2*c.LLM.Timeout + c.MCP.Timeout + c.MCP.LinkTimeout
}

func (c *Config) Validate() error {
	checks := []func() error{
		c.Server.Validate,
		c.Limits.Validate,
		c.Tokens.Validate,
		c.MCP.Validate,
		c.LLM.Validate,
		c.Research.Validate,
		c.Storage.Redis.Validate,
		c.Telemetry.Validate,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	if budget := c.StageBudget(); c.Server.StreamTimeout < budget {
		return fmt.Errorf("server.stream_timeout %s is shorter than the stage timeouts it must cover (%s)", c.Server.StreamTimeout, budget)
	}
	if c.History.Enabled {
		if err := c.Storage.Postgres.Validate(); err != nil {
			return err
		}
		if c.History.RetentionDays <= 0 {
			return fmt.Errorf("history.retention_days must be > 0")
		}
		if _, err := cronexpr.Parse(c.History.PurgeSchedule); err != nil {
			return fmt.Errorf("history.purge_schedule: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.require_extension_origin", false)
	v.SetDefault("server.stream_timeout", 240*time.Second)
	v.SetDefault("limits.daily", 50)
	v.SetDefault("limits.hourly", 10)
	v.SetDefault("tokens.lifetime", 24*time.Hour)
	v.SetDefault("tokens.max_per_fingerprint", 3)
	v.SetDefault("mcp.endpoint", "http://localhost:3000/mcp")
	v.SetDefault("mcp.timeout", 90*time.Second)
	v.SetDefault("mcp.search_tool", "search_austlii")
	v.SetDefault("mcp.link_tool", "build_search_url")
	v.SetDefault("mcp.link_timeout", 10*time.Second)
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("research.default_databases", []string{"au/cases", "au/legis"})
	v.SetDefault("research.max_results", 25)
	v.SetDefault("research.max_databases", 5)
	v.SetDefault("research.search_base_url", "https://www.austlii.edu.au/cgi-bin/sinosrch.cgi")
	v.SetDefault("storage.redis.host", "")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.link_ttl", 24*time.Hour)
	v.SetDefault("storage.postgres.url", "")
	v.SetDefault("storage.postgres.host", "")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.user", "")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.dbname", "")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.retention_days", 30)
	v.SetDefault("history.purge_schedule", "@daily")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "olexi-host")
	v.SetDefault("server.admin_jwt_secret", "")
}

// LoadConfig reads config from path, or from the usual search paths when
// path is empty. A missing config file is fine; defaults and OLEXI_*
// environment variables fill the rest.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("OLEXI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
