package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Env holds the process settings that may come from the environment.
type Env struct {
	Home      string
	LogLevel  string
	LogFormat string
}

// LoadEnv reads a .env file from the working directory when one exists
// and then collects LIBSYS_HOME, LIBSYS_LOG_LEVEL and LIBSYS_LOG_FORMAT.
// Variables already set in the environment win over the file.
func LoadEnv() (Env, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Env{}, fmt.Errorf("load .env: %w", err)
	}
	return Env{
		Home:      getenv("LIBSYS_HOME", "."),
		LogLevel:  getenv("LIBSYS_LOG_LEVEL", "info"),
		LogFormat: getenv("LIBSYS_LOG_FORMAT", "text"),
	}, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
