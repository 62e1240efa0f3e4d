package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database Postgres `yaml:"database"`
	RabbitMQ RabbitMQ `yaml:"rabbitmq"`
	Server   Server   `yaml:"server"`
	Realtime Realtime `yaml:"realtime"`
}

type Postgres struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RabbitMQ struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
	Exchange string `yaml:"exchange"`
}

type Server struct {
	Port int `yaml:"port"`
}

// Realtime configures the session-side watcher: where the command API lives,
// which restaurant channel to bind, and the reconnect policy.
type Realtime struct {
	APIBaseURL          string `yaml:"api_base_url"`
	RestaurantID        int64  `yaml:"restaurant_id"`
	Tier                string `yaml:"tier"`
	Token               string `yaml:"token"`
	RetryDelaySeconds   int    `yaml:"retry_delay_seconds"`
	MaxAttempts         int    `yaml:"max_attempts"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
}

func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Secrets may be supplied through the environment instead of the file.
	cfg.Database.Password = getEnv("MENUQR_DB_PASSWORD", cfg.Database.Password)
	cfg.RabbitMQ.Password = getEnv("MENUQR_RMQ_PASSWORD", cfg.RabbitMQ.Password)
	cfg.Realtime.Token = getEnv("MENUQR_SESSION_TOKEN", cfg.Realtime.Token)

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "orders_events"
	}
	if c.Realtime.RetryDelaySeconds == 0 {
		c.Realtime.RetryDelaySeconds = 3
	}
	if c.Realtime.MaxAttempts == 0 {
		c.Realtime.MaxAttempts = 5
	}
	if c.Realtime.PollIntervalSeconds == 0 {
		c.Realtime.PollIntervalSeconds = 15
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
