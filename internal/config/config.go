// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// Server configures the reference authority.
type Server struct {
	Addr              string        `env:"AUTHORITY_ADDR" envDefault:":8002"`
	RedisURL          string        `env:"REDIS_URL"`
	DatabaseURL       string        `env:"DATABASE_URL"`
	TokenExpire       string        `env:"TOKEN_EXPIRE_TIME" envDefault:"72h"`
	PixelsToPlace     int           `env:"PVP_PIXELS_TO_PLACE" envDefault:"5"`
	PvpGridSize       int           `env:"PVP_GRID_SIZE" envDefault:"10"`
	PlacementCooldown time.Duration `env:"PLACEMENT_COOLDOWN" envDefault:"0s"`
	AllowedOrigins    []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	EndedGameTTL      time.Duration `env:"ENDED_GAME_TTL" envDefault:"10m"`
	IdleGameTTL       time.Duration `env:"IDLE_GAME_TTL" envDefault:"1h"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Client configures the headless driver.
type Client struct {
	AuthorityURL      string        `env:"AUTHORITY_URL" envDefault:"http://localhost:8002"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	ShowDelay         time.Duration `env:"SHOW_DELAY" envDefault:"1s"`
	QueuePollInterval time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"2s"`
	FeedBackoff       time.Duration `env:"FEED_BACKOFF" envDefault:"1s"`
	FeedMaxAttempts   int           `env:"FEED_MAX_ATTEMPTS" envDefault:"5"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadServer reads the server configuration from the environment.
func LoadServer() (*Server, error) {
	cfg, err := env.ParseAs[Server]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.PixelsToPlace <= 0 || cfg.PvpGridSize <= 0 {
		return nil, fmt.Errorf("pvp quota and grid size must be positive")
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive")
	}
	return &cfg, nil
}

// TokenTTL parses TokenExpire. "never", "0" and "" disable expiry.
func (s *Server) TokenTTL() (time.Duration, error) {
	switch s.TokenExpire {
	case "", "0", "never":
		return 0, nil
	}
	d, err := time.ParseDuration(s.TokenExpire)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token expire time: %w", err)
	}
	return d, nil
}

// LoadClient reads the client configuration from the environment.
func LoadClient() (*Client, error) {
	cfg, err := env.ParseAs[Client]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &cfg, nil
}

// NewLogger builds a logrus logger at the named level.
func NewLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}
	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger, nil
}
