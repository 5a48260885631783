package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		LLMProvider:       "stub",
		DatabaseURL:       "test.db",
		HTTPPort:          "8080",
		RetrieveTopK:      5,
		RecentTurns:       5,
		FollowUpThreshold: time.Minute,
		FollowUpMax:       3,
	}
}

func TestValidate(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.LLMProvider = "oracle" }},
		{"gemini without key", func(c *Config) { c.LLMProvider = "gemini"; c.GeminiAPIKey = "" }},
		{"empty database", func(c *Config) { c.DatabaseURL = "" }},
		{"zero top k", func(c *Config) { c.RetrieveTopK = 0 }},
		{"zero recent turns", func(c *Config) { c.RecentTurns = 0 }},
		{"zero threshold", func(c *Config) { c.FollowUpThreshold = 0 }},
		{"negative max", func(c *Config) { c.FollowUpMax = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}

func TestGeminiProviderWithKey(t *testing.T) {
	c := validConfig()
	c.LLMProvider = "gemini"
	c.GeminiAPIKey = "test-key"
	if err := c.Validate(); err != nil {
		t.Fatalf("gemini config with key rejected: %v", err)
	}
}
