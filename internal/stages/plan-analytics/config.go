package plananalytics

import "time"

type Config struct {
	Timeout   time.Duration
	MaxTokens int
	// Now is the clock relative dates resolve against. Defaults to time.Now.
	Now func() time.Time
}

func LoadConfig() *Config {
	return &Config{
		Timeout:   30 * time.Second,
		MaxTokens: 512,
		Now:       time.Now,
	}
}
