package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingCredentials is returned when the identity-provider username or
// password is not configured. Load fails before any network activity.
var ErrMissingCredentials = errors.New("auth.username and auth.password must be configured")

type Config struct {
	Site struct {
		BaseURL string        `mapstructure:"base_url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"site"`

	Auth struct {
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
	} `mapstructure:"auth"`

	Search struct {
		ResourceType string `mapstructure:"resource_type"`
		Date         string `mapstructure:"date"`
		StartTime    string `mapstructure:"start_time"`
		EndTime      string `mapstructure:"end_time"`
	} `mapstructure:"search"`

	Booking struct {
		Attendees int    `mapstructure:"attendees"`
		Purpose   string `mapstructure:"purpose"`
	} `mapstructure:"booking"`

	Cache struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"cache"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

func Load() (*Config, error) {
	viper.SetDefault("site.base_url", "https://rbs.singaporetech.edu.sg")
	viper.SetDefault("site.timeout", "30s")
	// Registered empty so AutomaticEnv can bind ROOMBOOK_AUTH_USERNAME and
	// ROOMBOOK_AUTH_PASSWORD; there is no sensible default for either.
	viper.SetDefault("auth.username", "")
	viper.SetDefault("auth.password", "")
	viper.SetDefault("search.resource_type", "Discussion Room")
	viper.SetDefault("search.date", "")
	viper.SetDefault("search.start_time", "07:00")
	viper.SetDefault("search.end_time", "22:00")
	viper.SetDefault("booking.attendees", 1)
	viper.SetDefault("booking.purpose", "Study")
	viper.SetDefault("cache.path", "roombook.db")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")

	viper.SetEnvPrefix("ROOMBOOK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/roombook/")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.Auth.Username == "" || config.Auth.Password == "" {
		return nil, ErrMissingCredentials
	}

	return &config, nil
}
