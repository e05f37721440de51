// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DBDriver                      string `mapstructure:"DB_DRIVER"`
	DBHost                        string `mapstructure:"DB_HOST"`
	DBPort                        string `mapstructure:"DB_PORT"`
	DBUser                        string `mapstructure:"DB_USER"`
	DBPassword                    string `mapstructure:"DB_PASSWORD"`
	DBName                        string `mapstructure:"DB_NAME"`
	DBSSLMode                     string `mapstructure:"DB_SSLMODE"`
	DBReadHost                    string `mapstructure:"DB_READ_HOST"`
	DBReadPort                    string `mapstructure:"DB_READ_PORT"`
	DBReadUser                    string `mapstructure:"DB_READ_USER"`
	DBReadPassword                string `mapstructure:"DB_READ_PASSWORD"`
	DBSQLitePath                  string `mapstructure:"DB_SQLITE_PATH"`
	DBSchemaMode                  string `mapstructure:"DB_SCHEMA_MODE"`
	DBAutoMigrateAllowDestructive bool   `mapstructure:"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE"`
	DBMaxOpenConns                int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns                int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes      int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	RedisURL string `mapstructure:"REDIS_URL"`

	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio float64 `mapstructure:"TRACING_SAMPLER_RATIO"`

	DevBootstrapRoot bool   `mapstructure:"DEV_BOOTSTRAP_ROOT"`
	DevRootUsername  string `mapstructure:"DEV_ROOT_USERNAME"`
	DevRootEmail     string `mapstructure:"DEV_ROOT_EMAIL"`

	UsernameMinLength            int     `mapstructure:"USERNAME_MIN_LENGTH"`
	AdminCount                   int     `mapstructure:"PULSIFI_ADMIN_COUNT"`
	MessageDisplayLength         int     `mapstructure:"MESSAGE_DISPLAY_LENGTH"`
	MinTimeBetweenRepliesMinutes float64 `mapstructure:"MIN_TIME_BETWEEN_REPLIES_ON_SAME_POST"`
	UsernameSimilarityPercentage int     `mapstructure:"USERNAME_SIMILARITY_PERCENTAGE"`
	RestrictedAdminUsernames     string  `mapstructure:"RESTRICTED_ADMIN_USERNAMES"`
	CustomReservedUsernames      string  `mapstructure:"CUSTOM_RESERVED_USERNAMES"`
}

// Rules are the business-rule settings consumed by the validation and service layers.
type Rules struct {
	UsernameMinLength            int
	AdminCount                   int
	MessageDisplayLength         int
	MinTimeBetweenReplies        time.Duration
	UsernameSimilarityPercentage int
	RestrictedAdminUsernames     []string
	CustomReservedUsernames      []string
}

// DefaultRules returns the rule set used when no configuration overrides it.
func DefaultRules() Rules {
	return Rules{
		UsernameMinLength:            4,
		AdminCount:                   1,
		MessageDisplayLength:         15,
		MinTimeBetweenReplies:        3 * time.Minute,
		UsernameSimilarityPercentage: 87,
		RestrictedAdminUsernames:     []string{"pulsifi"},
		CustomReservedUsernames:      []string{"puls", "reply"},
	}
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetDefault("DB_DRIVER", "postgres")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "pulsifi")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_READ_HOST", "")
	viper.SetDefault("DB_READ_PORT", "5432")
	viper.SetDefault("DB_READ_USER", "user")
	viper.SetDefault("DB_READ_PASSWORD", "password")
	viper.SetDefault("DB_SQLITE_PATH", "pulsifi.db")
	viper.SetDefault("DB_SCHEMA_MODE", "hybrid")
	viper.SetDefault("DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE", false)
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)

	viper.SetDefault("REDIS_URL", "localhost:6379")

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)

	viper.SetDefault("DEV_BOOTSTRAP_ROOT", false)
	viper.SetDefault("DEV_ROOT_USERNAME", "pulsifi_root")
	viper.SetDefault("DEV_ROOT_EMAIL", "root@pulsifi.dev")

	defaults := DefaultRules()
	viper.SetDefault("USERNAME_MIN_LENGTH", defaults.UsernameMinLength)
	viper.SetDefault("PULSIFI_ADMIN_COUNT", defaults.AdminCount)
	viper.SetDefault("MESSAGE_DISPLAY_LENGTH", defaults.MessageDisplayLength)
	viper.SetDefault("MIN_TIME_BETWEEN_REPLIES_ON_SAME_POST", defaults.MinTimeBetweenReplies.Minutes())
	viper.SetDefault("USERNAME_SIMILARITY_PERCENTAGE", defaults.UsernameSimilarityPercentage)
	viper.SetDefault("RESTRICTED_ADMIN_USERNAMES", strings.Join(defaults.RestrictedAdminUsernames, ","))
	viper.SetDefault("CUSTOM_RESERVED_USERNAMES", strings.Join(defaults.CustomReservedUsernames, ","))
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.DBSchemaMode = strings.ToLower(strings.TrimSpace(c.DBSchemaMode))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

// IsProduction reports whether the configured environment is a production profile.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Rules returns the business-rule settings carried by this configuration.
func (c *Config) Rules() Rules {
	return Rules{
		UsernameMinLength:            c.UsernameMinLength,
		AdminCount:                   c.AdminCount,
		MessageDisplayLength:         c.MessageDisplayLength,
		MinTimeBetweenReplies:        time.Duration(c.MinTimeBetweenRepliesMinutes * float64(time.Minute)),
		UsernameSimilarityPercentage: c.UsernameSimilarityPercentage,
		RestrictedAdminUsernames:     splitList(c.RestrictedAdminUsernames),
		CustomReservedUsernames:      splitList(c.CustomReservedUsernames),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate ensures that required configuration values are present and within range.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DBDriver == "sqlite" && c.DBSQLitePath == "" {
		return errors.New("DB_SQLITE_PATH is required when DB_DRIVER=sqlite")
	}
	if c.DBConnMaxLifetimeMinutes < 0 {
		return errors.New("DB_CONN_MAX_LIFETIME_MINUTES must not be negative")
	}
	if c.TracingSamplerRatio < 0 || c.TracingSamplerRatio > 1 {
		return errors.New("TRACING_SAMPLER_RATIO must be within [0, 1]")
	}

	if c.UsernameMinLength <= 1 {
		return errors.New("USERNAME_MIN_LENGTH must be greater than 1")
	}
	if c.AdminCount <= 0 {
		return errors.New("PULSIFI_ADMIN_COUNT must be greater than 0")
	}
	if c.MessageDisplayLength <= 0 {
		return errors.New("MESSAGE_DISPLAY_LENGTH must be greater than 0")
	}
	if c.MinTimeBetweenRepliesMinutes < 1 || c.MinTimeBetweenRepliesMinutes > 2880 {
		return errors.New("MIN_TIME_BETWEEN_REPLIES_ON_SAME_POST must be within [1, 2880] minutes")
	}
	if c.UsernameSimilarityPercentage < 20 || c.UsernameSimilarityPercentage > 100 {
		return errors.New("USERNAME_SIMILARITY_PERCENTAGE must be within [20, 100]")
	}

	if c.IsProduction() && c.DBDriver == "postgres" {
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must not be disabled in production")
		}
		if c.DevBootstrapRoot {
			log.Println("WARNING: DEV_BOOTSTRAP_ROOT is ignored outside development.")
		}
	}

	return nil
}
