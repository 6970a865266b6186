package synthesizeanswer

import "time"

type Config struct {
	Timeout   time.Duration
	MaxTokens int
	// MaxDataChars caps the serialised rows sent to the reasoner.
	MaxDataChars int
	// PreviewRows is how many rows the fallback summary lists per source.
	PreviewRows int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      30 * time.Second,
		MaxTokens:    1000,
		MaxDataChars: 3000,
		PreviewRows:  5,
	}
}
