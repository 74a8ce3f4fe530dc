package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
database:
  postgres:
    host: localhost
    database: genieops
    user: genie
  redis:
    address: localhost:6379
`

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:11434/v1", cfg.APIs.GenAI.BaseURL)
	assert.Equal(t, 400000, cfg.APIs.GenAI.Timeout)
	assert.InDelta(t, 0.1, cfg.APIs.GenAI.Temperature, 1e-9)
	assert.Equal(t, 1500, cfg.APIs.GenAI.MaxTokens)
	assert.Equal(t, 4096, cfg.APIs.GenAI.ContextSize)
	assert.Equal(t, "llama3", cfg.Agents.Intake.Model)
	assert.Equal(t, "llama3", cfg.Agents.Director.Model)
	assert.Equal(t, "deepseek-r1:latest", cfg.Agents.Mastermind.Model)
	assert.Equal(t, "smtp", cfg.Integrations.EmailProvider)
	assert.Equal(t, 465, cfg.Integrations.SMTP.Port)
	assert.Equal(t, 60000, cfg.Nurture.Delay)
	assert.Equal(t, 3, cfg.Nurture.MaxAttempts)
	assert.Equal(t, "lead-magnets", cfg.Database.Elasticsearch.FunnelIndex)
	assert.Equal(t, "https://images.pexels.com/photos/3184291/pexels-photo-3184291.jpeg", cfg.APIs.ImageSearch.Fallback)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing postgres host",
			body:    "database:\n  redis:\n    address: x\n",
			wantErr: "database.postgres.host is required",
		},
		{
			name:    "camunda enabled without broker",
			body:    minimalConfig + "camunda:\n  enabled: true\n",
			wantErr: "camunda.broker_address is required",
		},
		{
			name:    "unknown email provider",
			body:    minimalConfig + "integrations:\n  email_provider: pigeon\n",
			wantErr: "email_provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_EnvOverride(t *testing.T) {
	t.Setenv("PEXELS_API_KEY", "pexels-key")
	t.Setenv("PUBLIC_BASE_URL", "https://funnels.example.com/")

	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "pexels-key", cfg.APIs.ImageSearch.APIKey)
	assert.Equal(t, "https://funnels.example.com", cfg.Server.PublicBaseURL)
}

func TestGetWorkerConfig(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{
		"render-assets": {Enabled: false, MaxJobsActive: 2, Timeout: 1000},
	}}

	assert.False(t, IsWorkerEnabled(cfg, "render-assets"))
	assert.True(t, IsWorkerEnabled(cfg, "fetch-images"))
	assert.Equal(t, 2, GetWorkerConfig(cfg, "render-assets").MaxJobsActive)
	assert.Equal(t, 5, GetWorkerConfig(cfg, "fetch-images").MaxJobsActive)
}
