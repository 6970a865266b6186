package planseo

import "time"

type Config struct {
	Timeout   time.Duration
	MaxTokens int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:   30 * time.Second,
		MaxTokens: 512,
	}
}
