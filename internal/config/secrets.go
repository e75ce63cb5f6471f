package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
)

// Secrets holds the API keys supplied through the environment.
type Secrets struct {
	GoogleAPIKey string `env:"GOOGLE_API_KEY"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
}

// LoadSecrets reads envFile (if it exists) into the process environment,
// without overriding variables that are already set, then parses Secrets.
func LoadSecrets(envFile string) (Secrets, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Secrets{}, fmt.Errorf("error loading env file %s: %w", envFile, err)
		}
	}

	var s Secrets
	if err := env.Parse(&s); err != nil {
		return Secrets{}, fmt.Errorf("error parsing environment variables: %w", err)
	}
	return s, nil
}
