package config

import (
	"errors"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type Config struct {
	SecretKey    string
	GeminiAPIKey string
	DatabaseURL  string
	HTTPPort     string
	LogLevel     string
}

// ClientConfig holds the settings of the terminal client.
type ClientConfig struct {
	APIBaseURL      string
	DisplayTimezone string
	SessionFile     string
}

var AppConfig Config

var (
	ErrMissingSecretKey    = errors.New("SECRET_KEY environment variable is not set")
	ErrMissingGeminiAPIKey = errors.New("GEMINI_API_KEY environment variable is not set")
)

// LoadConfig populates AppConfig from the environment. The signing secret is
// mandatory; callers abort startup when an error is returned.
func LoadConfig() error {
	loadDotEnv()

	cfg := Config{
		SecretKey:    getEnv("SECRET_KEY", ""),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		DatabaseURL:  getEnv("DATABASE_URL", "health_chatbot.db"),
		HTTPPort:     getEnv("HTTP_PORT", "8000"),
		LogLevel:     getEnv("LOG_LEVEL", "INFO"),
	}

	if cfg.SecretKey == "" {
		return ErrMissingSecretKey
	}
	if cfg.GeminiAPIKey == "" {
		return ErrMissingGeminiAPIKey
	}

	AppConfig = cfg
	return nil
}

func LoadClientConfig() ClientConfig {
	loadDotEnv()

	return ClientConfig{
		APIBaseURL:      getEnv("API_BASE_URL", "http://localhost:8000"),
		DisplayTimezone: getEnv("DISPLAY_TIMEZONE", "Asia/Kolkata"),
		SessionFile:     getEnv("SESSION_FILE", defaultSessionFile()),
	}
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".healthbot-session.json"
	}
	return filepath.Join(home, ".healthbot", "session.json")
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
