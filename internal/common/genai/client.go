// Package genai talks to the text-generation backend: an OpenAI-compatible
// chat/completions endpoint, usually a local Ollama.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"genieops-engine/internal/common/errors"
	commonhttp "genieops-engine/internal/common/http"
	"genieops-engine/internal/common/metrics"
	"genieops-engine/internal/common/observability"
)

const maxResponseBytes = 8 << 20

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

type Config struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
	ContextSize int
}

// Client is the structured completion client shared by all agents.
type Client struct {
	config *Config
	http   *commonhttp.Client
	logger Logger
}

func NewClient(config *Config, log Logger) *Client {
	return &Client{
		config: config,
		http:   commonhttp.NewClient(config.Timeout),
		logger: log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type sampling struct {
	NumCtx      int     `json:"num_ctx"`
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Stream         bool           `json:"stream"`
	Format         string         `json:"format"`
	ResponseFormat responseFormat `json:"response_format"`
	KeepAlive      int            `json:"keep_alive"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
	Options        sampling       `json:"options"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends one system/user prompt pair and returns the first choice's content.
// It does not retry. Every failure comes back as a TRANSPORT_ERROR.
func (c *Client) Complete(ctx context.Context, agent, model, system, user string) (string, error) {
	ctx, span := observability.StartSpan(ctx, "genai.complete",
		attribute.String("agent", agent),
		attribute.String("model", model),
	)
	defer span.End()

	c.logger.Info("agent is thinking", map[string]interface{}{
		"agent": agent,
		"model": model,
	})

	start := time.Now()
	content, err := c.complete(ctx, model, system, user)
	metrics.AgentCallDuration.WithLabelValues(agent, model).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.AgentCalls.WithLabelValues(agent, "transport_error").Inc()
		c.logger.Error("completion failed", map[string]interface{}{
			"agent": agent,
			"model": model,
			"error": err.Error(),
		})
		return "", errors.NewTransportError("genai", err).
			WithMetadata("agent", agent).
			WithMetadata("model", model)
	}
	return content, nil
}

func (c *Client) complete(ctx context.Context, model, system, user string) (string, error) {
	payload := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Stream:         false,
		Format:         "json",
		ResponseFormat: responseFormat{Type: "json_object"},
		KeepAlive:      0,
		Temperature:    c.config.Temperature,
		MaxTokens:      c.config.MaxTokens,
		Options: sampling{
			NumCtx:      c.config.ContextSize,
			Temperature: c.config.Temperature,
			NumPredict:  c.config.MaxTokens,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("backend returned status %d: %s", resp.StatusCode, truncate(string(respBody), 256))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return "", fmt.Errorf("backend error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("response has no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

// CompleteJSON is Complete followed by Extract. A PARSE_ERROR is counted against the agent.
func (c *Client) CompleteJSON(ctx context.Context, agent, model, system, user string) (map[string]interface{}, error) {
	raw, err := c.Complete(ctx, agent, model, system, user)
	if err != nil {
		return nil, err
	}

	out, err := Extract(raw)
	if err != nil {
		metrics.AgentCalls.WithLabelValues(agent, "parse_error").Inc()
		c.logger.Error("could not extract JSON from completion", map[string]interface{}{
			"agent":   agent,
			"model":   model,
			"error":   err.Error(),
			"preview": truncate(raw, 200),
		})
		if stdErr, ok := errors.AsStandard(err); ok {
			stdErr.WithMetadata("agent", agent)
		}
		return nil, err
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
