package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey string
	LLMProvider  string // "gemini" or "stub"
	DatabaseURL  string
	HTTPPort     string
	LogLevel     string
	LeadsCSV     string
	IndexDir     string // empty keeps the embedding index in memory

	RetrieveTopK int
	RecentTurns  int

	FollowUpThreshold time.Duration
	FollowUpMax       int
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		LLMProvider:       getEnv("LLM_PROVIDER", "gemini"),
		DatabaseURL:       getEnv("DATABASE_URL", "leadchat.db"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "INFO"),
		LeadsCSV:          getEnv("LEADS_CSV", "leads.csv"),
		IndexDir:          getEnv("INDEX_DIR", "index"),
		RetrieveTopK:      getEnvAsInt("RETRIEVE_TOP_K", 5),
		RecentTurns:       getEnvAsInt("RECENT_TURNS", 5),
		FollowUpThreshold: time.Duration(getEnvAsInt("FOLLOW_UP_THRESHOLD_SECONDS", 60)) * time.Second,
		FollowUpMax:       getEnvAsInt("FOLLOW_UP_MAX", 3),
	}

	if err := AppConfig.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
}

// Validate checks that the loaded configuration is usable.
func (c *Config) Validate() error {
	if c.LLMProvider != "gemini" && c.LLMProvider != "stub" {
		return fmt.Errorf("LLM_PROVIDER must be 'gemini' or 'stub', got %q", c.LLMProvider)
	}
	if c.LLMProvider == "gemini" && c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required when LLM_PROVIDER=gemini")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL cannot be empty")
	}
	if c.RetrieveTopK <= 0 {
		return fmt.Errorf("RETRIEVE_TOP_K must be > 0")
	}
	if c.RecentTurns <= 0 {
		return fmt.Errorf("RECENT_TURNS must be > 0")
	}
	if c.FollowUpThreshold <= 0 {
		return fmt.Errorf("FOLLOW_UP_THRESHOLD_SECONDS must be > 0")
	}
	if c.FollowUpMax < 0 {
		return fmt.Errorf("FOLLOW_UP_MAX cannot be negative")
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
