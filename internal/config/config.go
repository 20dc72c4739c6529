package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"flowval/domain/flow"
	"flowval/domain/site"
	"flowval/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Sites    []SiteConfig   `mapstructure:"sites" yaml:"sites"`
	Data     DataConfig     `mapstructure:"data" yaml:"data"`
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Workers  int            `mapstructure:"workers" yaml:"workers"`
	LogLevel string         `mapstructure:"log_level" yaml:"log_level"`
}

// SiteConfig names one gauge site. Order in the list is column order.
type SiteConfig struct {
	Key  string `mapstructure:"key" yaml:"key"`
	Name string `mapstructure:"name" yaml:"name"`
}

// DataConfig holds dataset locations and dimensions
type DataConfig struct {
	Weeks            int    `mapstructure:"weeks" yaml:"weeks"`
	HistoricalYears  int    `mapstructure:"historical_years" yaml:"historical_years"`
	Realizations     int    `mapstructure:"realizations" yaml:"realizations"`
	HistoricalDir    string `mapstructure:"historical_dir" yaml:"historical_dir"`
	SyntheticDir     string `mapstructure:"synthetic_dir" yaml:"synthetic_dir"`
	HistoricalSuffix string `mapstructure:"historical_suffix" yaml:"historical_suffix"`
	HistoricalMatch  string `mapstructure:"historical_match" yaml:"historical_match"`
	SyntheticSuffix  string `mapstructure:"synthetic_suffix" yaml:"synthetic_suffix"`
	EnsembleSuffix   string `mapstructure:"ensemble_suffix" yaml:"ensemble_suffix"`
	Tag              string `mapstructure:"tag" yaml:"tag"`
}

// AnalysisConfig holds parameters of the variability and moments analyses
type AnalysisConfig struct {
	Site            string  `mapstructure:"site" yaml:"site"`
	Quantile        float64 `mapstructure:"quantile" yaml:"quantile"`
	Tail            string  `mapstructure:"tail" yaml:"tail"`
	Space           string  `mapstructure:"space" yaml:"space"`
	Window          string  `mapstructure:"window" yaml:"window"`
	CheckpointStart int     `mapstructure:"checkpoint_start" yaml:"checkpoint_start"`
	CheckpointStop  int     `mapstructure:"checkpoint_stop" yaml:"checkpoint_stop"`
	CheckpointStep  int     `mapstructure:"checkpoint_step" yaml:"checkpoint_step"`
	Seed            int64   `mapstructure:"seed" yaml:"seed"`
	LeveneCenter    string  `mapstructure:"levene_center" yaml:"levene_center"`
}

// OutputConfig holds output locations and optional artifacts
type OutputConfig struct {
	FigureDir string `mapstructure:"figure_dir" yaml:"figure_dir"`
	ReportDir string `mapstructure:"report_dir" yaml:"report_dir"`
	Report    bool   `mapstructure:"report" yaml:"report"`
	Summary   bool   `mapstructure:"summary" yaml:"summary"`
	Manifest  bool   `mapstructure:"manifest" yaml:"manifest"`
}

// DatabaseConfig holds database connection settings. An empty URL disables archiving.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

const (
	DefaultConfigName = "flowval"
	EnvPrefix         = "FLOWVAL"
)

// Load reads configuration from .env, an optional YAML file and FLOWVAL_*
// environment variables, in increasing order of precedence over defaults.
// An empty path searches the working directory for flowval.yaml.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, missing := err.(viper.ConfigFileNotFoundError); path != "" || !missing {
			return nil, errors.Wrap(errors.ConfigInvalid(err.Error()), "failed to read configuration file")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(errors.ConfigInvalid(err.Error()), "failed to parse configuration")
	}

	// DATABASE_URL is the conventional name and wins when the prefixed one is unset
	if cfg.Database.URL == "" {
		cfg.Database.URL = getEnvOrDefault("DATABASE_URL", "")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading files or environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.weeks", flow.WeeksPerYear)
	v.SetDefault("data.historical_years", 81)
	v.SetDefault("data.realizations", 1000)
	v.SetDefault("data.historical_dir", "historical-data")
	v.SetDefault("data.synthetic_dir", "synthetic-data-stat")
	v.SetDefault("data.historical_suffix", ".csv")
	v.SetDefault("data.historical_match", "Inflow.csv")
	v.SetDefault("data.synthetic_suffix", "_SYN01.csv")
	v.SetDefault("data.ensemble_suffix", "_SYN60.csv")
	v.SetDefault("data.tag", "stat")

	v.SetDefault("analysis.site", "trainingJordanLakeInflow")
	v.SetDefault("analysis.quantile", 1.0)
	v.SetDefault("analysis.tail", "flood")
	v.SetDefault("analysis.space", "log")
	v.SetDefault("analysis.window", "exclusive")
	v.SetDefault("analysis.checkpoint_start", 50)
	v.SetDefault("analysis.checkpoint_stop", 1000)
	v.SetDefault("analysis.checkpoint_step", 50)
	v.SetDefault("analysis.seed", 42)
	v.SetDefault("analysis.levene_center", "median")

	v.SetDefault("output.figure_dir", "figures")
	v.SetDefault("output.report_dir", "reports")
	v.SetDefault("output.report", false)
	v.SetDefault("output.summary", false)
	v.SetDefault("output.manifest", true)

	v.SetDefault("database.url", "")
	v.SetDefault("workers", 0)
	v.SetDefault("log_level", "info")
}

// Validate rejects values no analysis can run with.
func (c *Config) Validate() error {
	if c.Data.Weeks <= 0 {
		return errors.ConfigInvalid("data.weeks must be positive")
	}
	if c.Data.HistoricalYears <= 0 {
		return errors.ConfigInvalid("data.historical_years must be positive")
	}
	if c.Data.Realizations <= 0 {
		return errors.ConfigInvalid("data.realizations must be positive")
	}
	if c.Data.HistoricalDir == "" || c.Data.SyntheticDir == "" {
		return errors.ConfigInvalid("data directories are required")
	}
	if c.Data.HistoricalSuffix == "" || c.Data.SyntheticSuffix == "" || c.Data.EnsembleSuffix == "" {
		return errors.ConfigInvalid("data file suffixes are required")
	}
	if c.Data.Tag == "" {
		return errors.ConfigInvalid("data.tag is required")
	}
	if c.Analysis.Quantile <= 0 || c.Analysis.Quantile > 1 {
		return errors.ConfigInvalid("analysis.quantile must be in (0, 1]")
	}
	if _, err := flow.ParseTail(c.Analysis.Tail); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	if _, err := flow.ParseSpace(c.Analysis.Space); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	switch c.Analysis.Window {
	case "exclusive", "inclusive":
	default:
		return errors.ConfigInvalid("analysis.window must be exclusive or inclusive")
	}
	switch strings.ToLower(c.Analysis.LeveneCenter) {
	case "median", "mean":
	default:
		return errors.ConfigInvalid("analysis.levene_center must be median or mean")
	}
	if c.Analysis.CheckpointStep <= 0 || c.Analysis.CheckpointStart <= 0 ||
		c.Analysis.CheckpointStop < c.Analysis.CheckpointStart {
		return errors.ConfigInvalid("analysis checkpoints must be positive and ascending")
	}
	if c.Workers < 0 {
		return errors.ConfigInvalid("workers must not be negative")
	}
	if _, err := c.Catalog(); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	return nil
}

// Catalog returns the configured sites, or the default study catalog when none are listed.
func (c *Config) Catalog() (site.Catalog, error) {
	if len(c.Sites) == 0 {
		return site.DefaultCatalog(), nil
	}
	keys := make([]string, len(c.Sites))
	names := make([]string, len(c.Sites))
	for i, s := range c.Sites {
		keys[i] = s.Key
		names[i] = s.Name
	}
	return site.NewCatalog(keys, names)
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
