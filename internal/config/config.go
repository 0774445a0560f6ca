package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/airgrid/internal/grid"
)

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Region   RegionConfig   `yaml:"region" mapstructure:"region"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Transit  TransitConfig  `yaml:"transit" mapstructure:"transit"`
	Forecast ForecastConfig `yaml:"forecast" mapstructure:"forecast"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RegionConfig is the region of interest. Records outside it are
// dropped at ingestion, and its name is the entity every grid dataset
// is filed under.
type RegionConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	MinX int    `yaml:"min_x" mapstructure:"min_x"`
	MinY int    `yaml:"min_y" mapstructure:"min_y"`
	MaxX int    `yaml:"max_x" mapstructure:"max_x"`
	MaxY int    `yaml:"max_y" mapstructure:"max_y"`
}

// BBox returns the region bounds.
func (r RegionConfig) BBox() grid.BBox {
	return grid.BBox{MinX: r.MinX, MinY: r.MinY, MaxX: r.MaxX, MaxY: r.MaxY}
}

// IngestConfig configures dataset ingestion.
type IngestConfig struct {
	Dirs        []string `yaml:"dirs" mapstructure:"dirs"`
	Concurrency int      `yaml:"concurrency" mapstructure:"concurrency"`
}

// TransitConfig configures the transit network. An empty LinesFile uses
// the built-in line definitions.
type TransitConfig struct {
	LinesFile string `yaml:"lines_file" mapstructure:"lines_file"`
}

// ForecastConfig configures the forecast engine.
type ForecastConfig struct {
	Pollutants []string `yaml:"pollutants" mapstructure:"pollutants"`
	Stride     int      `yaml:"stride" mapstructure:"stride"`
	Units      string   `yaml:"units" mapstructure:"units"`
	Metric     string   `yaml:"metric" mapstructure:"metric"`
}

// StoreConfig configures the database backend. An empty DatabaseURL
// disables persistence.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	JobTTLMins  int      `yaml:"job_ttl_mins" mapstructure:"job_ttl_mins"`
}

// JobTTL is how long finished forecast jobs stay queryable.
func (s ServerConfig) JobTTL() time.Duration {
	return time.Duration(s.JobTTLMins) * time.Minute
}

// FetchConfig configures source downloads.
type FetchConfig struct {
	DestDir     string   `yaml:"dest_dir" mapstructure:"dest_dir"`
	UserAgent   string   `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int      `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec  float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Sources     []string `yaml:"sources" mapstructure:"sources"`
}

// Load reads configuration from config.yaml and AIRGRID_* environment
// variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("AIRGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("region.name", "london")
	v.SetDefault("region.min_x", 503000)
	v.SetDefault("region.max_x", 562000)
	v.SetDefault("region.min_y", 155000)
	v.SetDefault("region.max_y", 201000)
	v.SetDefault("ingest.dirs", []string{"./data"})
	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("transit.lines_file", "")
	v.SetDefault("forecast.pollutants", []string{"no2", "pm10", "pm25"})
	v.SetDefault("forecast.stride", 1000)
	v.SetDefault("forecast.units", "µg m-3")
	v.SetDefault("forecast.metric", "annual mean")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "airgrid.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.job_ttl_mins", 60)
	v.SetDefault("fetch.dest_dir", "./data")
	v.SetDefault("fetch.user_agent", "airgrid/1.0")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_per_sec", 5)
	v.SetDefault("fetch.sources", []string{})

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

// Validate checks semantic constraints viper cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Region.Name) == "" {
		return eris.New("config: region.name is required")
	}
	if err := c.Region.BBox().Validate(); err != nil {
		return eris.Wrap(err, "config: region")
	}
	if c.Ingest.Concurrency < 1 {
		return eris.Errorf("config: ingest.concurrency must be at least 1, got %d", c.Ingest.Concurrency)
	}
	if c.Forecast.Stride < 1 {
		return eris.Errorf("config: forecast.stride must be at least 1, got %d", c.Forecast.Stride)
	}
	switch strings.ToLower(c.Store.Driver) {
	case "sqlite", "postgres", "postgresql":
	default:
		return eris.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return eris.Errorf("config: server.port out of range: %d", c.Server.Port)
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
