package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port   int    `envconfig:"PORT" default:"8080"`
	DBPath string `envconfig:"DB_PATH" default:"./data/typerush.db"`

	JWTSecret string        `envconfig:"JWT_SECRET" default:"dev-only-secret-change-me"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	// Race room lifecycle
	GracePeriod   time.Duration `envconfig:"RACE_GRACE_PERIOD" default:"30s"`
	RoomTTL       time.Duration `envconfig:"RACE_ROOM_TTL" default:"30m"`
	SweepInterval time.Duration `envconfig:"RACE_SWEEP_INTERVAL" default:"5m"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
