package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig identifies one database: its driver, its SQL dialect and the
// DSN. Live and archive sides are configured independently and may point at
// different servers.
type DatabaseConfig struct {
	Driver  string `mapstructure:"driver"`
	Dialect string `mapstructure:"dialect"`
	URL     string `mapstructure:"url"`
}

// ArchivalConfig controls the scheduled archival runs.
type ArchivalConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	PurgeInterval     time.Duration `mapstructure:"purge_interval"`
	PurgeHorizonValue int           `mapstructure:"purge_horizon_value"`
	PurgeHorizonUnit  string        `mapstructure:"purge_horizon_unit"`
}

type Config struct {
	ServerPort      string              `mapstructure:"server_port"`
	JWTSecret       string              `mapstructure:"jwt_secret"`
	LiveDatabase    DatabaseConfig      `mapstructure:"live_database"`
	ArchiveDatabase DatabaseConfig      `mapstructure:"archive_database"`
	Archival        ArchivalConfig      `mapstructure:"archival"`
	OperationCodes  map[string][]string `mapstructure:"operation_codes"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}
	if config.JWTSecret == "" {
		log.Fatal("JWT secret must be set in the config file")
	}
	if config.LiveDatabase.URL == "" {
		log.Fatal("Live database URL must be set in the config file")
	}
	if config.LiveDatabase.Driver == "" {
		config.LiveDatabase.Driver = "postgres"
	}
	if config.LiveDatabase.Dialect == "" {
		config.LiveDatabase.Dialect = config.LiveDatabase.Driver
	}
	// With no archive database configured, the archive tables live alongside
	// the live tables.
	if config.ArchiveDatabase.URL == "" {
		config.ArchiveDatabase = config.LiveDatabase
	}
	if config.ArchiveDatabase.Driver == "" {
		config.ArchiveDatabase.Driver = config.LiveDatabase.Driver
	}
	if config.ArchiveDatabase.Dialect == "" {
		config.ArchiveDatabase.Dialect = config.ArchiveDatabase.Driver
	}
	if config.Archival.Interval <= 0 {
		config.Archival.Interval = 24 * time.Hour
	}
	if config.Archival.PurgeInterval <= 0 {
		config.Archival.PurgeInterval = 7 * 24 * time.Hour
	}

	return &config
}
