// Package config loads recon-linker settings from a YAML file, RECON_LINKER_* environment
// variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. RECON_LINKER_DATABASE_URL.
const EnvPrefix = "RECON_LINKER"

// Config is the root configuration.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Correlation CorrelationConfig `mapstructure:"correlation" yaml:"correlation"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Output      OutputConfig      `mapstructure:"output" yaml:"output"`
	Watch       WatchConfig       `mapstructure:"watch" yaml:"watch"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
}

// DatabaseConfig selects the libSQL store. An empty ProjectsDir means single-project mode.
type DatabaseConfig struct {
	URL            string `mapstructure:"url" yaml:"url"`
	AuthToken      string `mapstructure:"auth_token" yaml:"auth_token"`
	ProjectsDir    string `mapstructure:"projects_dir" yaml:"projects_dir"`
	Project        string `mapstructure:"project" yaml:"project"`
	MaxOpenConns   int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns   int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxIdleSec int    `mapstructure:"conn_max_idle_sec" yaml:"conn_max_idle_sec"`
	ConnMaxLifeSec int    `mapstructure:"conn_max_life_sec" yaml:"conn_max_life_sec"`
}

// LoggerConfig holds the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// CorrelationConfig tunes heuristic edges.
type CorrelationConfig struct {
	Workflow   string  `mapstructure:"workflow" yaml:"workflow"`
	Confidence float64 `mapstructure:"confidence" yaml:"confidence"`
	SourceTool string  `mapstructure:"source_tool" yaml:"source_tool"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// OutputConfig names the files written by the report and export commands.
type OutputConfig struct {
	Dir         string `mapstructure:"dir" yaml:"dir"`
	MaltegoFile string `mapstructure:"maltego_file" yaml:"maltego_file"`
	ReportFile  string `mapstructure:"report_file" yaml:"report_file"`
}

// WatchConfig controls the drop-directory watcher.
type WatchConfig struct {
	Dir               string `mapstructure:"dir" yaml:"dir"`
	CorrelateOnIngest bool   `mapstructure:"correlate_on_ingest" yaml:"correlate_on_ingest"`
}

// ServerConfig controls the MCP tool server.
type ServerConfig struct {
	Transport string `mapstructure:"transport" yaml:"transport"`
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "file:./correlations.db")
	v.SetDefault("database.project", "default")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.max_idle_conns", 0)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "recon-linker")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	v.SetDefault("correlation.workflow", "general")
	v.SetDefault("correlation.confidence", 0.8)
	v.SetDefault("correlation.source_tool", "correlation_engine")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("output.dir", ".")
	v.SetDefault("output.maltego_file", "maltego_import.xml")
	v.SetDefault("output.report_file", "correlation_report.txt")

	v.SetDefault("watch.dir", "./incoming")
	v.SetDefault("watch.correlate_on_ingest", true)

	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.endpoint", "/sse")
}

// NewViper returns a viper instance with defaults and environment binding applied.
// configFile, when non-empty, overrides the ./config.yaml lookup.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file (a missing default file is not an error) and returns the
// validated configuration.
func Load(configFile string) (*Config, error) {
	v := NewViper(configFile)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return NewConfigFromViper(v)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// libSQL credentials keep their conventional names
	_ = v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "LIBSQL_URL")
	_ = v.BindEnv("database.auth_token", EnvPrefix+"_DATABASE_AUTH_TOKEN", "LIBSQL_AUTH_TOKEN")
	_ = v.BindEnv("database.projects_dir", EnvPrefix+"_DATABASE_PROJECTS_DIR", "PROJECTS_DIR")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

var workflows = map[string]bool{"general": true, "suspect": true, "domain": true, "location": true}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Database.URL == "" && c.Database.ProjectsDir == "" {
		return fmt.Errorf("database.url or database.projects_dir is required")
	}
	if c.Correlation.Confidence < 0 || c.Correlation.Confidence > 1 {
		return fmt.Errorf("correlation.confidence must be between 0.0 and 1.0")
	}
	if !workflows[c.Correlation.Workflow] {
		return fmt.Errorf("correlation.workflow %q is not one of general, suspect, domain, location", c.Correlation.Workflow)
	}
	switch c.Server.Transport {
	case "stdio", "sse":
	default:
		return fmt.Errorf("server.transport must be stdio or sse, got %q", c.Server.Transport)
	}
	return nil
}
