package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	AppEnv    string
	Port      string
	LogLevel  string
	LogFormat string

	// Connection limiting for the WebSocket upgrade endpoint.
	MaxConnections      int64
	MaxConnectionsPerIP int
	ConnectionRate      float64
	ConnectionBurst     int

	// Rate limiting for the internal broadcast API.
	BroadcastRate  float64
	BroadcastBurst int
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.MaxConnections, err = getEnvInt64("MAX_CONNECTIONS", 10000); err != nil {
		return nil, err
	}
	if cfg.MaxConnectionsPerIP, err = getEnvInt("MAX_CONNECTIONS_PER_IP", 20); err != nil {
		return nil, err
	}
	if cfg.ConnectionRate, err = getEnvFloat("CONNECTION_RATE", 10); err != nil {
		return nil, err
	}
	if cfg.ConnectionBurst, err = getEnvInt("CONNECTION_BURST", 10); err != nil {
		return nil, err
	}
	if cfg.BroadcastRate, err = getEnvFloat("BROADCAST_RATE", 100); err != nil {
		return nil, err
	}
	if cfg.BroadcastBurst, err = getEnvInt("BROADCAST_BURST", 50); err != nil {
		return nil, err
	}

	if cfg.MaxConnections <= 0 {
		return nil, fmt.Errorf("MAX_CONNECTIONS must be positive")
	}
	if cfg.MaxConnectionsPerIP <= 0 {
		return nil, fmt.Errorf("MAX_CONNECTIONS_PER_IP must be positive")
	}
	if cfg.ConnectionRate <= 0 {
		return nil, fmt.Errorf("CONNECTION_RATE must be positive")
	}
	if cfg.BroadcastRate <= 0 {
		return nil, fmt.Errorf("BROADCAST_RATE must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return parsed, nil
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return parsed, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return parsed, nil
}
