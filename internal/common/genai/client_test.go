package genai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genieops-engine/internal/common/errors"
	"genieops-engine/internal/common/logger"
)

func testConfig(baseURL string) *Config {
	return &Config{
		BaseURL:     baseURL,
		Timeout:     2 * time.Second,
		Temperature: 0.1,
		MaxTokens:   1500,
		ContextSize: 4096,
	}
}

func chatCompletion(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"choices": []interface{}{
			map[string]interface{}{
				"message": map[string]interface{}{"role": "assistant", "content": content},
			},
		},
	})
	return string(body)
}

func TestClient_Complete_RequestShape(t *testing.T) {
	var captured map[string]interface{}
	var authHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		authHeader = r.Header.Get("Authorization")

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletion(`{"ok":true}`)))
	}))
	defer server.Close()

	cfg := testConfig(server.URL + "/v1/")
	cfg.APIKey = "hosted-key"
	client := NewClient(cfg, logger.NewTestLogger(t))

	content, err := client.Complete(context.Background(), "DIRECTOR", "llama3", "system prompt", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, content)

	assert.Equal(t, "Bearer hosted-key", authHeader)
	assert.Equal(t, "llama3", captured["model"])
	assert.Equal(t, false, captured["stream"])
	assert.Equal(t, "json", captured["format"])
	assert.Equal(t, 0.0, captured["keep_alive"])
	assert.Equal(t, map[string]interface{}{"type": "json_object"}, captured["response_format"])
	assert.Equal(t, map[string]interface{}{
		"num_ctx":     4096.0,
		"temperature": 0.1,
		"num_predict": 1500.0,
	}, captured["options"])

	messages := captured["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, map[string]interface{}{"role": "system", "content": "system prompt"}, messages[0])
	assert.Equal(t, map[string]interface{}{"role": "user", "content": "user prompt"}, messages[1])
}

func TestClient_Complete_NoAuthForLocalBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(chatCompletion("{}")))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), logger.NewNoOpLogger())
	_, err := client.Complete(context.Background(), "INTAKE", "llama3", "s", "u")
	require.NoError(t, err)
}

func TestClient_Complete_TransportErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model not loaded", http.StatusInternalServerError)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>gateway</html>"))
			},
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[]}`))
			},
		},
		{
			name: "backend error payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"error":{"message":"model 'x' not found"}}`))
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(300 * time.Millisecond)
				_, _ = w.Write([]byte(chatCompletion("{}")))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			cfg := testConfig(server.URL)
			cfg.Timeout = 100 * time.Millisecond
			client := NewClient(cfg, logger.NewNoOpLogger())

			content, err := client.Complete(context.Background(), "MASTERMIND", "deepseek-r1:latest", "s", "u")
			require.Error(t, err)
			assert.Empty(t, content)
			assert.True(t, errors.HasCode(err, errors.ErrCodeTransport), "got %v", err)
		})
	}
}

func TestClient_Complete_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(testConfig(url), logger.NewNoOpLogger())
	_, err := client.Complete(context.Background(), "INTAKE", "llama3", "s", "u")
	require.Error(t, err)

	stdErr, ok := errors.AsStandard(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeTransport, stdErr.Code)
	assert.NotEmpty(t, stdErr.Details)
	assert.Equal(t, "INTAKE", stdErr.Metadata["agent"])
}

func TestClient_CompleteJSON(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		want     map[string]interface{}
		wantCode errors.ErrorCode
	}{
		{
			name:    "reasoning model output",
			content: "<think>pick a calculator</think>```json\n{\"type\": \"Calculator\"}\n```",
			want:    map[string]interface{}{"type": "Calculator"},
		},
		{
			name:     "prose only",
			content:  "I am unable to produce JSON today.",
			wantCode: errors.ErrCodeParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(chatCompletion(tt.content)))
			}))
			defer server.Close()

			client := NewClient(testConfig(server.URL), logger.NewNoOpLogger())
			got, err := client.CompleteJSON(context.Background(), "DIRECTOR", "llama3", "s", "u")

			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, tt.wantCode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
