package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Polymarket Polymarket `mapstructure:"polymarket"`
	Bot        Bot        `mapstructure:"bot"`
	Logger     Logger     `mapstructure:"logger"`
	Server     Server     `mapstructure:"server"`
	Database   Database   `mapstructure:"database"`
}

// Polymarket holds the configuration for the Polymarket API gateway.
type Polymarket struct {
	ApiKey         string  `mapstructure:"apiKey"`
	ApiSecret      string  `mapstructure:"apiSecret"`
	BaseURL        string  `mapstructure:"base_url"`
	RateLimitDelay float64 `mapstructure:"rate_limit_delay"` // minimum seconds between requests
	InitialBackoff float64 `mapstructure:"initial_backoff"`  // seconds, doubled on each throttle
	MaxRetries     int     `mapstructure:"max_retries"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Bot holds the configuration shared by all copy bots.
type Bot struct {
	PollInterval        int     `mapstructure:"poll_interval"` // seconds between poll cycles
	ActivityLimit       int     `mapstructure:"activity_limit"`
	SeenCap             int     `mapstructure:"seen_cap"`
	InitialPaperBalance float64 `mapstructure:"initial_paper_balance"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("polymarket.base_url", "https://api.polymarket.com")
	viper.SetDefault("polymarket.rate_limit_delay", 0.2) // 200ms minimum delay
	viper.SetDefault("polymarket.initial_backoff", 1.0)
	viper.SetDefault("polymarket.max_retries", 5)
	viper.SetDefault("bot.poll_interval", 5)
	viper.SetDefault("bot.activity_limit", 10)
	viper.SetDefault("bot.seen_cap", 1000)
	viper.SetDefault("bot.initial_paper_balance", 10000.0)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
