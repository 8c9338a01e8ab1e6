package config

import (
	"log"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Server struct {
		Port   int    `env:"PORT" envDefault:"8080"`
		Origin string `env:"ORIGIN" envDefault:"http://localhost:3000"`
	}

	Redis struct {
		Host     string `env:"REDIS_HOST" envDefault:"localhost"`
		Port     int    `env:"REDIS_PORT" envDefault:"6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Raffle struct {
		// ProgramID binds issued permits to this deployment. Permits signed
		// for another deployment must be rejected.
		ProgramID string `env:"RAFFLE_PROGRAM_ID" envDefault:"8f1c0e2d9b4a6573c1d0e8f2a4b6c8d0e2f4a6b8c0d2e4f6a8b0c2d4e6f8a0b2"`

		// PermitTTL is how long an issued permit stays valid, in seconds.
		PermitTTL int64 `env:"PERMIT_TTL_SECONDS" envDefault:"3600"`

		// SweepInterval is how often the deadline watcher scans active
		// raffles, in seconds.
		SweepInterval int64 `env:"SWEEP_INTERVAL_SECONDS" envDefault:"60"`
	}

	Admin struct {
		APIKey string `env:"ADMIN_API_KEY" envDefault:"dev-admin-key-change-in-production"`
	}
}

func Load() *Config {
	// A missing .env file is fine; in production the variables are set
	// directly.
	if err := godotenv.Load(); err != nil {
		log.Printf("config: .env not loaded: %v", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		panic(err)
	}

	return cfg
}
