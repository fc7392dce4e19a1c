// Package config reads server settings from the environment. A .env file in
// the working directory is loaded first when present.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	LogLevel  string
}

type ServerConfig struct {
	Port int
}

type DatabaseConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Stream   string
}

type SchedulerConfig struct {
	Interval time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "lease.db"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Stream:   getEnv("MARGIN_STREAM", "lease:margin-transfers"),
		},
		Scheduler: SchedulerConfig{
			Interval: getEnvAsDuration("SCHEDULER_INTERVAL", time.Minute),
		},
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}
