package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Port        string
	Host        string

	DataDir      string
	BaseCurrency string

	APIKey string

	MapsAPIKey  string
	MapsTimeout time.Duration
}

func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		Environment:  getEnv("ENVIRONMENT", "development"),
		Port:         getEnv("PORT", "8080"),
		Host:         getEnv("HOST", "0.0.0.0"),
		DataDir:      getEnv("DATA_DIR", "./data"),
		BaseCurrency: getEnv("BASE_CURRENCY", "JMD"),
		APIKey:       getEnv("BRITE_API_KEY", ""),
		MapsAPIKey:   getEnv("GOOGLE_MAPS_API_KEY", ""),
	}

	// Parse duration
	if timeout := getEnv("MAPS_TIMEOUT", "10s"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid MAPS_TIMEOUT: %w", err)
		}
		cfg.MapsTimeout = d
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
