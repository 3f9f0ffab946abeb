package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

const (
	sslModeDisable = "disable"
	sslModeRequire = "require"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type (
	Config struct {
		Host     string `mapstructure:"HOST"`
		Port     string `mapstructure:"PORT"`
		GRPCPort string `mapstructure:"GRPC_PORT"`
		Env      string `mapstructure:"ENV"`

		DBDriver   string `mapstructure:"DB_DRIVER"`
		DBPath     string `mapstructure:"DB_PATH"`
		DBHost     string `mapstructure:"DB_HOST"`
		DBPort     string `mapstructure:"DB_PORT"`
		DBUser     string `mapstructure:"DB_USER"`
		DBPassword string `mapstructure:"DB_PASSWORD"`
		DBName     string `mapstructure:"DB_NAME"`
		DBSSLMode  string `mapstructure:"DB_SSL_MODE"`

		RedisAddr     string `mapstructure:"REDIS_ADDR"`
		RedisPassword string `mapstructure:"REDIS_PASSWORD"`
		RedisDB       int    `mapstructure:"REDIS_DB"`

		GithubClientID     string `mapstructure:"GITHUB_CLIENT_ID"`
		GithubClientSecret string `mapstructure:"GITHUB_CLIENT_SECRET"`
		GithubRedirectURL  string `mapstructure:"GITHUB_REDIRECT_URL"`

		BcryptCost     int    `mapstructure:"BCRYPT_COST"`
		ExportBasename string `mapstructure:"EXPORT_BASENAME"`

		// AuthRatePerMinute limits sign-in attempts per client IP; 0 disables it.
		AuthRatePerMinute int `mapstructure:"AUTH_RATE_PER_MINUTE"`
		AuthBurst         int `mapstructure:"AUTH_BURST"`
	}
)

var envs = []string{
	"HOST", "PORT", "GRPC_PORT", "ENV",
	"DB_DRIVER", "DB_PATH", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"GITHUB_CLIENT_ID", "GITHUB_CLIENT_SECRET", "GITHUB_REDIRECT_URL",
	"BCRYPT_COST", "EXPORT_BASENAME",
	"AUTH_RATE_PER_MINUTE", "AUTH_BURST",
}

func NewConfig() (*Config, error) {
	// a missing .env is fine, the environment wins anyway
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	v := viper.New()
	v.SetEnvPrefix("BOOKMARKER")

	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", "1323")
	v.SetDefault("GRPC_PORT", "9000")
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_PATH", "linkshelf.db")
	v.SetDefault("DB_HOST", "0.0.0.0")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "user")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "db")
	v.SetDefault("DB_SSL_MODE", sslModeDisable)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("GITHUB_CLIENT_ID", "")
	v.SetDefault("GITHUB_CLIENT_SECRET", "")
	v.SetDefault("GITHUB_REDIRECT_URL", "")
	v.SetDefault("BCRYPT_COST", 14)
	v.SetDefault("EXPORT_BASENAME", "resources")
	v.SetDefault("AUTH_RATE_PER_MINUTE", 30)
	v.SetDefault("AUTH_BURST", 10)

	for _, key := range envs {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// GithubEnabled reports whether GitHub sign-in has credentials.
func (c *Config) GithubEnabled() bool {
	return c.GithubClientID != "" && c.GithubClientSecret != ""
}

func validate(cfg *Config) error {
	switch cfg.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return errors.New(fmt.Sprintf("DB driver is invalid: %s", cfg.DBDriver))
	}

	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return errors.New(fmt.Sprintf("bcrypt cost is out of range: %d", cfg.BcryptCost))
	}

	if cfg.AuthRatePerMinute > 0 && cfg.AuthBurst < 1 {
		return errors.New(fmt.Sprintf("auth burst must be positive: %d", cfg.AuthBurst))
	}

	validSSLValues := []string{sslModeDisable, sslModeRequire}
	for _, validValue := range validSSLValues {
		if cfg.DBSSLMode == validValue {
			return nil
		}
	}
	return errors.New(fmt.Sprintf("DB SSL mode is invalid: %s", cfg.DBSSLMode))
}
