// Package config loads runtime configuration for the canvass binaries.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "CANVASS"

	defaultHTTPAddress          = "0.0.0.0:8080"
	defaultDatabasePath         = "canvass.db"
	defaultClientDatabasePath   = "canvass-client.db"
	defaultLogLevel             = "info"
	defaultRedisAddress         = ""
	defaultFreshnessMinutes     = 5
	defaultAutoPauseThresholdMs = 120000
	defaultSampleSeconds        = 30
	defaultSyncSeconds          = 60
	defaultDrainBatchSize       = 50
	defaultControlAddress       = "127.0.0.1:7421"
)

// ServerConfig captures runtime configuration for the canvass API service.
type ServerConfig struct {
	HTTPAddress     string
	DatabasePath    string
	RedisAddress    string
	APIToken        string
	LogLevel        string
	FreshnessWindow time.Duration
}

// ClientConfig captures runtime configuration for the rep-side client daemon.
type ClientConfig struct {
	RepID              string
	TerritoryID        string
	DatabasePath       string
	ControlAddress     string
	SyncBaseURL        string
	SyncToken          string
	SyncInterval       time.Duration
	DrainBatchSize     int
	SampleInterval     time.Duration
	AutoPauseThreshold time.Duration
	PayRatePerHour     float64
	MileageRatePerMile float64
	Training           bool
	LogLevel           string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("redis.address", defaultRedisAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("live.freshness_minutes", defaultFreshnessMinutes)

	configViper.SetDefault("client.database_path", defaultClientDatabasePath)
	configViper.SetDefault("client.control_address", defaultControlAddress)
	configViper.SetDefault("sync.interval_seconds", defaultSyncSeconds)
	configViper.SetDefault("sync.drain_batch_size", defaultDrainBatchSize)
	configViper.SetDefault("geo.sample_interval_seconds", defaultSampleSeconds)
	configViper.SetDefault("shift.auto_pause_threshold_ms", defaultAutoPauseThresholdMs)
	configViper.SetDefault("shift.pay_rate_per_hour", 0.0)
	configViper.SetDefault("shift.mileage_rate_per_mile", 0.0)
	configViper.SetDefault("shift.training", false)
}

// LoadServer parses API service configuration from viper.
func LoadServer(configViper *viper.Viper) (ServerConfig, error) {
	cfg := ServerConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		DatabasePath:    configViper.GetString("database.path"),
		RedisAddress:    configViper.GetString("redis.address"),
		APIToken:        configViper.GetString("api.token"),
		LogLevel:        configViper.GetString("log.level"),
		FreshnessWindow: time.Duration(configViper.GetInt("live.freshness_minutes")) * time.Minute,
	}

	if err := cfg.validate(); err != nil {
		return ServerConfig{}, err
	}

	return cfg, nil
}

// LoadClient parses client daemon configuration from viper.
func LoadClient(configViper *viper.Viper) (ClientConfig, error) {
	cfg := ClientConfig{
		RepID:              configViper.GetString("rep.id"),
		TerritoryID:        configViper.GetString("rep.territory_id"),
		DatabasePath:       configViper.GetString("client.database_path"),
		ControlAddress:     configViper.GetString("client.control_address"),
		SyncBaseURL:        configViper.GetString("sync.base_url"),
		SyncToken:          configViper.GetString("sync.token"),
		SyncInterval:       time.Duration(configViper.GetInt("sync.interval_seconds")) * time.Second,
		DrainBatchSize:     configViper.GetInt("sync.drain_batch_size"),
		SampleInterval:     time.Duration(configViper.GetInt("geo.sample_interval_seconds")) * time.Second,
		AutoPauseThreshold: time.Duration(configViper.GetInt("shift.auto_pause_threshold_ms")) * time.Millisecond,
		PayRatePerHour:     configViper.GetFloat64("shift.pay_rate_per_hour"),
		MileageRatePerMile: configViper.GetFloat64("shift.mileage_rate_per_mile"),
		Training:           configViper.GetBool("shift.training"),
		LogLevel:           configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return ClientConfig{}, err
	}

	return cfg, nil
}

func (c ServerConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.FreshnessWindow <= 0 {
		return fmt.Errorf("live.freshness_minutes must be positive")
	}
	return nil
}

func (c ClientConfig) validate() error {
	if strings.TrimSpace(c.RepID) == "" {
		return fmt.Errorf("rep.id is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("client.database_path is required")
	}
	if strings.TrimSpace(c.SyncBaseURL) == "" {
		return fmt.Errorf("sync.base_url is required")
	}
	if c.AutoPauseThreshold <= 0 {
		return fmt.Errorf("shift.auto_pause_threshold_ms must be positive")
	}
	return nil
}
