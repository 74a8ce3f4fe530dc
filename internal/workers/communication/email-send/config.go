package emailsend

import (
	"fmt"
	"time"
)

const (
	ProviderSMTP = "smtp"
	ProviderSES  = "ses"
)

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Provider      string        `mapstructure:"provider"`
	SMTPHost      string        `mapstructure:"smtp_host"`
	SMTPPort      int           `mapstructure:"smtp_port"`
	SMTPUsername  string        `mapstructure:"smtp_username"`
	SMTPPassword  string        `mapstructure:"smtp_password"`
	UseTLS        bool          `mapstructure:"use_tls"`
	FromName      string        `mapstructure:"from_name"`
	// SESFromEmail is the verified SES identity; SMTP sends from the username.
	SESFromEmail string `mapstructure:"ses_from_email"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30 * time.Second,
		Provider:      ProviderSMTP,
		SMTPHost:      "smtp.gmail.com",
		SMTPPort:      465,
		UseTLS:        true,
		FromName:      "GenieOps Engine",
	}
}

// Validate checks the shape of the config. Missing credentials are not an error here:
// a transport without them reports every send as failed.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	switch c.Provider {
	case ProviderSMTP, "":
		if c.SMTPHost == "" {
			return fmt.Errorf("smtp_host is required")
		}
		if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
			return fmt.Errorf("smtp_port must be between 1 and 65535")
		}
	case ProviderSES:
		if c.SESFromEmail == "" {
			return fmt.Errorf("ses_from_email is required")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	return nil
}
