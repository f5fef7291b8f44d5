package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	ServerAddress string
	Environment   string
	LogLevel      string
	Database      DatabaseConfig
	Migration     MigrationConfig
	Rebuild       RebuildConfig
	Balance       BalanceConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	Params   string
}

type MigrationConfig struct {
	Dir string
}

// RebuildConfig controls the rebuild queue and its watermark backdate
type RebuildConfig struct {
	Backdate  time.Duration
	QueueSize int
	Workers   int
}

type BalanceConfig struct {
	DueThreshold decimal.Decimal
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_ADDRESS", ":8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 3306)
	// sessions run in UTC so CURRENT_TIMESTAMP columns and incremental watermarks agree
	v.SetDefault("DB_PARAMS", "parseTime=true&loc=UTC&time_zone=%27%2B00%3A00%27&multiStatements=true")
	v.SetDefault("MIGRATION_DIR", "migrations")
	v.SetDefault("REBUILD_BACKDATE", "5m")
	v.SetDefault("REBUILD_QUEUE_SIZE", 64)
	v.SetDefault("REBUILD_WORKERS", 1)
	v.SetDefault("BALANCE_DUE_THRESHOLD", "0")
}

// LoadConfig reads .env from the working directory, if present, and the environment
func LoadConfig() (*Config, error) {
	return LoadConfigFile(".env")
}

// LoadConfigFile is LoadConfig with an explicit env file path
func LoadConfigFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	threshold, err := decimal.NewFromString(v.GetString("BALANCE_DUE_THRESHOLD"))
	if err != nil {
		return nil, fmt.Errorf("invalid BALANCE_DUE_THRESHOLD: %w", err)
	}

	config := &Config{
		ServerAddress: v.GetString("SERVER_ADDRESS"),
		Environment:   v.GetString("ENVIRONMENT"),
		LogLevel:      v.GetString("LOG_LEVEL"),
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Name:     v.GetString("DB_NAME"),
			Params:   v.GetString("DB_PARAMS"),
		},
		Migration: MigrationConfig{
			Dir: v.GetString("MIGRATION_DIR"),
		},
		Rebuild: RebuildConfig{
			Backdate:  v.GetDuration("REBUILD_BACKDATE"),
			QueueSize: v.GetInt("REBUILD_QUEUE_SIZE"),
			Workers:   v.GetInt("REBUILD_WORKERS"),
		},
		Balance: BalanceConfig{
			DueThreshold: threshold,
		},
	}

	if config.Rebuild.Workers < 1 {
		config.Rebuild.Workers = 1
	}
	if config.Rebuild.QueueSize < 1 {
		config.Rebuild.QueueSize = 1
	}

	return config, nil
}

// GetDSN returns the MySQL DSN string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Params,
	)
}

// GetMigrationDBURL returns the database URL for migrations
func (c *Config) GetMigrationDBURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%d)/%s?%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Params,
	)
}
