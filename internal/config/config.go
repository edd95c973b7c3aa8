package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/newthinker/comps/internal/collector/finnhub"
	"github.com/newthinker/comps/internal/core"
	"github.com/newthinker/comps/internal/logger"
	"github.com/newthinker/comps/internal/storage/archive"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      logger.Config  `mapstructure:"log"`
	Finnhub  FinnhubConfig  `mapstructure:"finnhub"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	// PeerSets names reusable symbol lists, e.g. megacap_tech: [AAPL, MSFT].
	PeerSets map[string][]string `mapstructure:"peer_sets"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Mode        string `mapstructure:"mode"`
	APIKey      string `mapstructure:"api_key"`
	JobTTLHours int    `mapstructure:"job_ttl_hours"`
	MaxJobs     int    `mapstructure:"max_jobs"`
	MaxSymbols  int    `mapstructure:"max_symbols"`
}

// FinnhubConfig configures the market data client.
type FinnhubConfig struct {
	APIKey      string                      `mapstructure:"api_key"`
	BaseURL     string                      `mapstructure:"base_url"`
	Timeout     time.Duration               `mapstructure:"timeout"`
	TTL         time.Duration               `mapstructure:"ttl"`
	Concurrency int                         `mapstructure:"concurrency"`
	RateLimit   float64                     `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	StoreRaw    bool                        `mapstructure:"store_raw"`
	ShareUnits  finnhub.ShareUnitThresholds `mapstructure:"share_units"`
}

// AnalysisConfig holds engine defaults. Requests may override the period.
type AnalysisConfig struct {
	Period              string        `mapstructure:"period"`
	PriorPeriod         string        `mapstructure:"prior_period"`
	Timeout             time.Duration `mapstructure:"timeout"`
	TaxRate             float64       `mapstructure:"tax_rate"`
	CrossCheckTolerance float64       `mapstructure:"cross_check_tolerance"`
	EVPolicy            core.EVPolicy `mapstructure:"ev_policy"`
}

// StorageConfig holds the filing document store and, optionally, a separate
// store for archived results.
type StorageConfig struct {
	Filings archive.Config `mapstructure:"filings"`
	Results ResultsConfig  `mapstructure:"results"`
}

// ResultsConfig enables result snapshots.
type ResultsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Archive defaults to the filings store when Type is empty.
	Archive archive.Config `mapstructure:"archive"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file. Keys missing from the file keep their
// Defaults() values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v, Defaults())

	// Support environment variable overrides
	v.SetEnvPrefix("COMPS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.job_ttl_hours", d.Server.JobTTLHours)
	v.SetDefault("server.max_jobs", d.Server.MaxJobs)
	v.SetDefault("server.max_symbols", d.Server.MaxSymbols)

	v.SetDefault("finnhub.api_key", d.Finnhub.APIKey)
	v.SetDefault("finnhub.base_url", d.Finnhub.BaseURL)
	v.SetDefault("finnhub.timeout", d.Finnhub.Timeout)
	v.SetDefault("finnhub.ttl", d.Finnhub.TTL)
	v.SetDefault("finnhub.concurrency", d.Finnhub.Concurrency)
	v.SetDefault("finnhub.rate_limit", d.Finnhub.RateLimit)
	v.SetDefault("finnhub.share_units.millions_below", d.Finnhub.ShareUnits.MillionsBelow)
	v.SetDefault("finnhub.share_units.absolute_above", d.Finnhub.ShareUnits.AbsoluteAbove)

	v.SetDefault("analysis.period", d.Analysis.Period)
	v.SetDefault("analysis.prior_period", d.Analysis.PriorPeriod)
	v.SetDefault("analysis.timeout", d.Analysis.Timeout)
	v.SetDefault("analysis.tax_rate", d.Analysis.TaxRate)
	v.SetDefault("analysis.cross_check_tolerance", d.Analysis.CrossCheckTolerance)
	v.SetDefault("analysis.ev_policy.cash_treatment", string(d.Analysis.EVPolicy.CashTreatment))
	v.SetDefault("analysis.ev_policy.debt_mode", string(d.Analysis.EVPolicy.DebtMode))

	v.SetDefault("storage.filings.type", d.Storage.Filings.Type)
	v.SetDefault("storage.filings.path", d.Storage.Filings.Path)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			Mode:        "release",
			JobTTLHours: 1,
			MaxJobs:     100,
			MaxSymbols:  50,
		},
		Finnhub: FinnhubConfig{
			BaseURL:     finnhub.DefaultBaseURL,
			Timeout:     finnhub.DefaultTimeout,
			TTL:         finnhub.DefaultTTL,
			Concurrency: finnhub.DefaultConcurrency,
			RateLimit:   1,
			ShareUnits:  finnhub.DefaultShareUnitThresholds(),
		},
		Analysis: AnalysisConfig{
			Period:              "ltm",
			PriorPeriod:         "ltm-1",
			Timeout:             60 * time.Second,
			TaxRate:             0.21,
			CrossCheckTolerance: 0.01,
			EVPolicy:            core.DefaultEVPolicy(),
		},
		Storage: StorageConfig{
			Filings: archive.Config{
				Type: "localfs",
				Path: "./data",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// ResultsArchive returns the storage config for result snapshots.
func (c *Config) ResultsArchive() archive.Config {
	if c.Storage.Results.Archive.Type == "" {
		return c.Storage.Filings
	}
	return c.Storage.Results.Archive
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	// Finnhub validation
	if c.Finnhub.Concurrency < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("finnhub concurrency cannot be negative, got %d", c.Finnhub.Concurrency))
	}
	if c.Finnhub.RateLimit < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("finnhub rate_limit cannot be negative, got %f", c.Finnhub.RateLimit))
	}
	su := c.Finnhub.ShareUnits
	if su.MillionsBelow <= 0 || su.AbsoluteAbove < su.MillionsBelow {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("share_units: need 0 < millions_below <= absolute_above, got %v and %v", su.MillionsBelow, su.AbsoluteAbove))
	}

	// Analysis validation
	if c.Analysis.TaxRate < 0 || c.Analysis.TaxRate >= 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("tax_rate must be in [0, 1), got %f", c.Analysis.TaxRate))
	}
	if c.Analysis.CrossCheckTolerance < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("cross_check_tolerance cannot be negative, got %f", c.Analysis.CrossCheckTolerance))
	}
	if c.Analysis.Timeout < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("analysis timeout cannot be negative, got %s", c.Analysis.Timeout))
	}
	if err := c.Analysis.EVPolicy.Validate(); err != nil {
		return err
	}

	return nil
}

// RequireFinnhubKey reports a missing market data API key.
func (c *Config) RequireFinnhubKey() error {
	if c.Finnhub.APIKey == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("finnhub api_key required (set finnhub.api_key or COMPS_FINNHUB_API_KEY)"))
	}
	return nil
}
