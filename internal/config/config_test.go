package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:                          "development",
		DBDriver:                     "postgres",
		DBPassword:                   "secure-password",
		DBSSLMode:                    "require",
		DBConnMaxLifetimeMinutes:     5,
		TracingSamplerRatio:          1,
		UsernameMinLength:            4,
		AdminCount:                   1,
		MessageDisplayLength:         15,
		MinTimeBetweenRepliesMinutes: 3,
		UsernameSimilarityPercentage: 87,
	}
}

func TestConfig_ValidateSSLMode(t *testing.T) {
	tests := []struct {
		name        string
		env         string
		sslMode     string
		expectError bool
	}{
		{"Production with empty SSL mode", "production", "", true},
		{"Production with disable SSL mode", "production", "disable", true},
		{"Production with require SSL mode", "production", "require", false},
		{"Prod with disable SSL mode", "prod", "disable", true},
		{"Prod with verify-full SSL mode", "prod", "verify-full", false},
		{"Development with disable SSL mode", "development", "disable", false},
		{"Test with empty SSL mode", "test", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			c.Env = tt.env
			c.DBSSLMode = tt.sslMode

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateRuleRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"username min length of one", func(c *Config) { c.UsernameMinLength = 1 }, false},
		{"zero admin count", func(c *Config) { c.AdminCount = 0 }, false},
		{"zero display length", func(c *Config) { c.MessageDisplayLength = 0 }, false},
		{"reply interval below one minute", func(c *Config) { c.MinTimeBetweenRepliesMinutes = 0.5 }, false},
		{"reply interval of two days", func(c *Config) { c.MinTimeBetweenRepliesMinutes = 2880 }, true},
		{"reply interval above two days", func(c *Config) { c.MinTimeBetweenRepliesMinutes = 2881 }, false},
		{"similarity below 20", func(c *Config) { c.UsernameSimilarityPercentage = 19 }, false},
		{"similarity of 100", func(c *Config) { c.UsernameSimilarityPercentage = 100 }, true},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, false},
		{"sqlite without path", func(c *Config) { c.DBDriver = "sqlite" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestConfig_Rules(t *testing.T) {
	c := validConfig()
	c.MinTimeBetweenRepliesMinutes = 1.5
	c.RestrictedAdminUsernames = " Pulsifi , staffer,,"
	c.CustomReservedUsernames = "puls"

	rules := c.Rules()
	assert.Equal(t, 90*time.Second, rules.MinTimeBetweenReplies)
	assert.Equal(t, []string{"pulsifi", "staffer"}, rules.RestrictedAdminUsernames)
	assert.Equal(t, []string{"puls"}, rules.CustomReservedUsernames)
	assert.Equal(t, 87, rules.UsernameSimilarityPercentage)
}

func TestLoadConfig_Defaults(t *testing.T) {
	defer os.Unsetenv("APP_ENV")
	defer os.Unsetenv("DB_SSLMODE")
	defer viper.Reset()

	os.Setenv("APP_ENV", "development")
	os.Setenv("DB_SSLMODE", "  DISABLE  ")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, DefaultRules(), c.Rules())
}
