package fetchimages

import "time"

type Config struct {
	SearchAPIBaseURL string
	SearchAPIKey     string
	Timeout          time.Duration
	// MaxPage bounds the random result page used for variety.
	MaxPage     int
	FallbackURL string
}

func DefaultConfig() *Config {
	return &Config{
		SearchAPIBaseURL: "https://api.pexels.com/v1",
		Timeout:          10 * time.Second,
		MaxPage:          20,
	}
}
