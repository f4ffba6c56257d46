package config

import (
	"charity-auction/utils"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers
const (
	StoreMemory   = "memory"
	StoreMySQL    = "mysql"
	StorePostgres = "postgres"
)

type Config struct {
	Server struct {
		Port     string
		LogLevel string
	}
	Store struct {
		Driver      string
		DatabaseURL string
		SeedDemo    bool
	}
	Sweep struct {
		Interval time.Duration
		Workers  int
	}
	Bidding struct {
		MaxCascadeRounds int
	}
	Webhook struct {
		URL     string
		Timeout time.Duration
	}
	WebSocket struct {
		MessagesPerSecond float64
		Burst             int
	}
}

// Load reads configuration from the environment, optionally seeded from the
// given .env files.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		utils.Debug("no .env file found", map[string]any{"files": envFiles})
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	cfg.Server.Port = v.GetString("PORT")
	cfg.Server.LogLevel = v.GetString("LOG_LEVEL")
	cfg.Store.Driver = v.GetString("STORE")
	cfg.Store.DatabaseURL = v.GetString("DATABASE_URL")
	cfg.Store.SeedDemo = v.GetBool("SEED_DEMO")
	cfg.Sweep.Interval = v.GetDuration("SWEEP_INTERVAL")
	cfg.Sweep.Workers = v.GetInt("SWEEP_WORKERS")
	cfg.Bidding.MaxCascadeRounds = v.GetInt("CASCADE_MAX_ROUNDS")
	cfg.Webhook.URL = v.GetString("WEBHOOK_URL")
	cfg.Webhook.Timeout = v.GetDuration("WEBHOOK_TIMEOUT")
	cfg.WebSocket.MessagesPerSecond = v.GetFloat64("WS_MESSAGES_PER_SECOND")
	cfg.WebSocket.Burst = v.GetInt("WS_BURST")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE", StoreMemory)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SEED_DEMO", true)
	v.SetDefault("SWEEP_INTERVAL", "2s")
	v.SetDefault("SWEEP_WORKERS", 4)
	v.SetDefault("CASCADE_MAX_ROUNDS", 1000)
	v.SetDefault("WEBHOOK_URL", "")
	v.SetDefault("WEBHOOK_TIMEOUT", "5s")
	v.SetDefault("WS_MESSAGES_PER_SECOND", 1)
	v.SetDefault("WS_BURST", 3)
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case StoreMemory:
	case StoreMySQL, StorePostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("config: STORE=%s requires DATABASE_URL", c.Store.Driver)
		}
	default:
		return fmt.Errorf("config: unknown STORE %q", c.Store.Driver)
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("config: SWEEP_INTERVAL must be positive, got %s", c.Sweep.Interval)
	}
	if c.Sweep.Workers <= 0 {
		return fmt.Errorf("config: SWEEP_WORKERS must be positive, got %d", c.Sweep.Workers)
	}
	if c.Bidding.MaxCascadeRounds <= 0 {
		return fmt.Errorf("config: CASCADE_MAX_ROUNDS must be positive, got %d", c.Bidding.MaxCascadeRounds)
	}
	return nil
}

// Addr is the listen address for the HTTP server
func (c *Config) Addr() string {
	return ":" + c.Server.Port
}
