package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds the runtime configuration, loaded from the environment
// with an optional .env file for development.
type Config struct {
	Port      string
	DBPath    string
	JWTSecret string
	RedisAddr string
	Env       string
	Debug     bool
}

// Load reads configuration from the environment. A missing .env file is
// not an error; production deployments set the environment directly.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	return &Config{
		Port:      getEnv("PORT", "8080"),
		DBPath:    getEnv("DB_PATH", "stocktrader.db"),
		JWTSecret: getEnv("JWT_SECRET", "stocktrader-secret-key"),
		RedisAddr: os.Getenv("REDIS_ADDR"),
		Env:       getEnv("ENV", "development"),
		Debug:     os.Getenv("DEBUG") == "true",
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
