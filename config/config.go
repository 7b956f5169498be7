package config

import (
	"github.com/joho/godotenv"

	"github.com/jmkim/billim/logger"
)

// LoadEnv loads a .env file when present. Missing files are fine in
// production where the environment is provided by the platform.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		logger.InfoLogger.Info("No .env file found, using process environment")
	}
}
