// Package config loads application configuration from file and environment
// and initializes the global logger.
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
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	IBGE     IBGEConfig     `yaml:"ibge" mapstructure:"ibge"`
	Censo    CensoConfig    `yaml:"censo" mapstructure:"censo"`
	Features FeaturesConfig `yaml:"features" mapstructure:"features"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend and the tables the loaders and
// harmonizer write to.
type StoreConfig struct {
	DatabaseURL  string `yaml:"database_url" mapstructure:"database_url"`
	SectorTable  string `yaml:"sector_table" mapstructure:"sector_table"`
	POITable     string `yaml:"poi_table" mapstructure:"poi_table"`
	StagingTable string `yaml:"staging_table" mapstructure:"staging_table"`
}

// IBGEConfig configures the IBGE aggregate-data API client.
type IBGEConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	ChunkSize      int     `yaml:"chunk_size" mapstructure:"chunk_size"`
	Concurrency    int     `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// CensoConfig configures income harmonization runs.
type CensoConfig struct {
	MetricColumn       string             `yaml:"metric_column" mapstructure:"metric_column"`
	SectorMetricColumn string             `yaml:"sector_metric_column" mapstructure:"sector_metric_column"`
	Period             string             `yaml:"period" mapstructure:"period"`
	MinimumWages       map[string]float64 `yaml:"minimum_wages" mapstructure:"minimum_wages"`
}

// FeaturesConfig configures derived-feature computation.
type FeaturesConfig struct {
	DistanceColumn string `yaml:"distance_column" mapstructure:"distance_column"`
	MetricSRID     int    `yaml:"metric_srid" mapstructure:"metric_srid"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("CENSO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.sector_table", "sp_setores")
	v.SetDefault("store.poi_table", "pois_metro_sp")
	v.SetDefault("store.staging_table", "censo_renda_staging")
	v.SetDefault("ibge.base_url", "https://servicodados.ibge.gov.br/api/v3/agregados")
	v.SetDefault("ibge.chunk_size", 50)
	v.SetDefault("ibge.concurrency", 4)
	v.SetDefault("ibge.timeout_secs", 60)
	v.SetDefault("ibge.requests_per_sec", 5)
	v.SetDefault("ibge.max_retries", 3)
	v.SetDefault("censo.metric_column", "vl_renda")
	v.SetDefault("censo.sector_metric_column", "vl_renda_setor")
	v.SetDefault("censo.period", "2022")
	v.SetDefault("features.distance_column", "distancia_metro_m")
	v.SetDefault("features.metric_srid", 31983)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the fields required by a run mode. Modes map to command
// groups: "db" for anything touching Postgres, "harmonize" for income runs,
// "serve" for the HTTP API.
func (c *Config) Validate(mode string) error {
	var problems []string

	requireDB := func() {
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	switch mode {
	case "db":
		requireDB()
	case "harmonize":
		requireDB()
		if c.Censo.MetricColumn == "" {
			problems = append(problems, "censo.metric_column is required")
		}
		if c.Store.StagingTable == "" {
			problems = append(problems, "store.staging_table is required")
		}
	case "serve":
		requireDB()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.IBGE.Concurrency < 1 || c.IBGE.Concurrency > 32 {
		problems = append(problems, "ibge.concurrency must be between 1 and 32")
	}
	if c.IBGE.ChunkSize < 1 {
		problems = append(problems, "ibge.chunk_size must be >= 1")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}
