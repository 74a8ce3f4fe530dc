package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional per-environment overlay

	return decode(v)
}

// LoadFromFile reads a single config file, still honouring environment overrides.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnv(v)
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// bindEnv maps the short variable names used in .env files onto config keys.
func bindEnv(v *viper.Viper) {
	bindings := map[string][]string{
		"apis.genai.base_url":             {"GENAI_BASE_URL", "OLLAMA_BASE_URL"},
		"apis.genai.api_key":              {"GENAI_API_KEY"},
		"apis.image_search.api_key":       {"PEXELS_API_KEY"},
		"integrations.smtp.username":      {"SENDER_EMAIL", "SMTP_USERNAME"},
		"integrations.smtp.password":      {"SENDER_PASSWORD", "SMTP_PASSWORD"},
		"integrations.aws.sns.topic_arn":  {"SNS_TOPIC_ARN"},
		"database.postgres.user":          {"DB_USER"},
		"database.postgres.password":      {"DB_PASSWORD"},
		"server.public_base_url":          {"PUBLIC_BASE_URL"},
		"observability.jaeger_endpoint":   {"JAEGER_ENDPOINT"},
		"integrations.aws.ses.from_email": {"SES_FROM_EMAIL"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		_ = v.BindEnv(args...)
	}
}

func loadEnvFile() {
	paths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		paths = append(paths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok || !strings.Contains(strVal, "$") {
			continue
		}
		if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
			v.Set(key, expanded)
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "genieops-engine"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8000"
	}
	if cfg.Server.PublicBaseURL == "" {
		cfg.Server.PublicBaseURL = "http://localhost:8000"
	}
	cfg.Server.PublicBaseURL = strings.TrimRight(cfg.Server.PublicBaseURL, "/")
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}
	if cfg.Database.Elasticsearch.FunnelIndex == "" {
		cfg.Database.Elasticsearch.FunnelIndex = "lead-magnets"
	}

	genai := &cfg.APIs.GenAI
	if genai.BaseURL == "" {
		genai.BaseURL = "http://localhost:11434/v1"
	}
	if genai.Timeout == 0 {
		genai.Timeout = 400000
	}
	if genai.Temperature == 0 {
		genai.Temperature = 0.1
	}
	if genai.MaxTokens == 0 {
		genai.MaxTokens = 1500
	}
	if genai.ContextSize == 0 {
		genai.ContextSize = 4096
	}

	images := &cfg.APIs.ImageSearch
	if images.BaseURL == "" {
		images.BaseURL = "https://api.pexels.com/v1"
	}
	if images.Timeout == 0 {
		images.Timeout = 10000
	}
	if images.MaxPage == 0 {
		images.MaxPage = 20
	}
	if images.Fallback == "" {
		images.Fallback = "https://images.pexels.com/photos/3184291/pexels-photo-3184291.jpeg"
	}

	if cfg.Agents.Intake.Model == "" {
		cfg.Agents.Intake.Model = "llama3"
	}
	if cfg.Agents.Director.Model == "" {
		cfg.Agents.Director.Model = "llama3"
	}
	if cfg.Agents.Mastermind.Model == "" {
		cfg.Agents.Mastermind.Model = "deepseek-r1:latest"
	}

	if cfg.Integrations.EmailProvider == "" {
		cfg.Integrations.EmailProvider = "smtp"
	}
	if cfg.Integrations.SMTP.Host == "" {
		cfg.Integrations.SMTP.Host = "smtp.gmail.com"
	}
	if cfg.Integrations.SMTP.Port == 0 {
		cfg.Integrations.SMTP.Port = 465
	}
	if cfg.Integrations.SMTP.FromName == "" {
		cfg.Integrations.SMTP.FromName = "GenieOps Engine"
	}

	if cfg.Nurture.Delay == 0 {
		cfg.Nurture.Delay = 60000
	}
	if cfg.Nurture.PollInterval == 0 {
		cfg.Nurture.PollInterval = 5000
	}
	if cfg.Nurture.MaxAttempts == 0 {
		cfg.Nurture.MaxAttempts = 3
	}
	if cfg.Nurture.RetryBackoff == 0 {
		cfg.Nurture.RetryBackoff = 30000
	}
	if cfg.Nurture.LockTTL == 0 {
		cfg.Nurture.LockTTL = 600000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = cfg.App.Name
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}

	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	switch cfg.Integrations.EmailProvider {
	case "smtp", "ses":
	default:
		return fmt.Errorf("integrations.email_provider must be smtp or ses, got %q", cfg.Integrations.EmailProvider)
	}

	if cfg.Nurture.MaxAttempts < 1 {
		return fmt.Errorf("nurture.max_attempts must be at least 1")
	}

	return nil
}

func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
