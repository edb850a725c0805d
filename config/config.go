package config

import (
	"fmt"
	"time"

	"github.com/ecodeli/delivery-tracking-system/pkg/configparser"
)

// Config contains all configuration variables of the application.
type (
	Config struct {
		Server   ServerConfig
		Database DatabaseConfig
		RabbitMQ RabbitMQConfig
		Tracking TrackingConfig
		Auth     Auth
		Log      LogConfig
	}

	ServerConfig struct {
		Host string `env:"SERVER_HOST" default:"0.0.0.0"`
		Port string `env:"SERVER_PORT" default:"3000"`
	}

	DatabaseConfig struct {
		Host     string `env:"DATABASE_HOST" default:"localhost"`
		Port     string `env:"DATABASE_PORT" default:"5432"`
		User     string `env:"DATABASE_USER" default:"ecodeli_user"`
		Password string `env:"DATABASE_PASSWORD" default:"ecodeli_pass"`
		Database string `env:"DATABASE_DATABASE" default:"ecodeli_tracking"`

		MaxConns        int32         `env:"DATABASE_MAXCONNS" default:"20"`
		MinConns        int32         `env:"DATABASE_MINCONNS" default:"2"`
		MaxConnLifetime time.Duration `env:"DATABASE_MAXCONNLIFETIME" default:"30m"`
		MaxConnIdleTime time.Duration `env:"DATABASE_MAXCONNIDLETIME" default:"5m"`
	}

	RabbitMQConfig struct {
		Host     string `env:"RABBITMQ_HOST" default:"localhost"`
		Port     string `env:"RABBITMQ_PORT" default:"5672"`
		User     string `env:"RABBITMQ_USER" default:"guest"`
		Password string `env:"RABBITMQ_PASSWORD" default:"guest"`
	}

	TrackingConfig struct {
		// PositionWindowSize is how many recent GPS fixes are retained per
		// delivery for the trailing speed computation.
		PositionWindowSize int `env:"TRACKING_POSITION_WINDOW" default:"20"`

		// ETAThresholdMinutes damps ETA updates: republish only when the
		// estimate moved by more than this many minutes.
		ETAThresholdMinutes int `env:"TRACKING_ETA_THRESHOLD_MIN" default:"1"`

		// CheckpointRadiusMeters is the arrival-proximity radius for the
		// near-dropoff checkpoint event.
		CheckpointRadiusMeters float64 `env:"TRACKING_CHECKPOINT_RADIUS_M" default:"300"`

		// OutboundQueueSize bounds each WebSocket connection's send queue.
		OutboundQueueSize int `env:"TRACKING_WS_QUEUE_SIZE" default:"64"`

		// SweepInterval spaces out periodic reconciliation sweeps.
		SweepInterval time.Duration `env:"TRACKING_SWEEP_INTERVAL" default:"5m"`

		// SweepLimit caps the deliveries checked per sweep.
		SweepLimit int `env:"TRACKING_SWEEP_LIMIT" default:"100"`
	}

	Auth struct {
		AccessTokenTTL time.Duration `env:"AUTH_ACCESS_TOKEN_TTL" default:"15m"`
		JWTSecret      string        `env:"AUTH_JWT_SECRET" default:"supersecretkey"`
	}

	LogConfig struct {
		Level string `env:"LOG_LEVEL" default:"DEBUG"`
	}
)

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func (c DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

func (c RabbitMQConfig) GetDSN() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		c.User,
		c.Password,
		c.Host,
		c.Port,
	)
}

func NewConfig(filepath string) (*Config, error) {
	cfg := &Config{}

	// Loading environment variables and parsing into the config struct.
	if err := configparser.LoadAndParseYaml(filepath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load and parse config: %w", err)
	}

	return cfg, nil
}
