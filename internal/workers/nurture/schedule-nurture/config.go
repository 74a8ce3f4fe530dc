package schedulenurture

import "time"

type Config struct {
	// Delay between capture and the follow-up email.
	Delay        time.Duration
	PollInterval time.Duration
	MaxAttempts  int
	// RetryBackoff is the wait after the first failed attempt; it doubles each time.
	RetryBackoff time.Duration
	BatchSize    int64
	// StaleAfter is how long a claimed task may stay unfinished before a poll re-queues it.
	StaleAfter time.Duration
	KeyPrefix    string
	Timeout      time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Delay:        60 * time.Second,
		PollInterval: 5 * time.Second,
		MaxAttempts:  3,
		RetryBackoff: 30 * time.Second,
		BatchSize:    100,
		StaleAfter:   2 * time.Minute,
		KeyPrefix:    "nurture:",
		Timeout:      30 * time.Second,
	}
}
