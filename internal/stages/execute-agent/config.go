package executeagent

import "time"

type Config struct {
	// Timeout bounds one agent call. Zero leaves the caller's deadline in charge.
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 20 * time.Second,
	}
}
