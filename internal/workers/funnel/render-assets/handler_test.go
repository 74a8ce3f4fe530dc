package renderassets

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "genieops-engine/internal/common/errors"
	"genieops-engine/internal/common/logger"
	"genieops-engine/internal/models"
)

func newTestHandler(t *testing.T) *Handler {
	return NewHandler(&Config{
		CaptureURL: "https://funnels.example.com/api/v1/capture-lead",
		UpgradeURL: "https://genieops.example.com/pricing",
		Timeout:    time.Second,
	}, logger.NewTestLogger(t))
}

func TestHandler_Execute_FromJobVariables(t *testing.T) {
	vars := `{
		"funnelId": 42,
		"content": {"asset_type": "Report", "headline": "Bakery Benchmarks",
			"asset_logic": {"data_points": [{"label": "Risk", "value": "85"}]}},
		"theme": {"title": "Bakery Benchmarks", "asset_type": "Report", "primary_color": "#F5E6CC"},
		"images": {"background": "https://img.example/bg.jpg"}
	}`

	var input Input
	require.NoError(t, json.Unmarshal([]byte(vars), &input))

	out, err := newTestHandler(t).Execute(context.Background(), &input)
	require.NoError(t, err)

	assert.Contains(t, out.Rendered.LandingPage, `action="https://funnels.example.com/api/v1/capture-lead"`)
	assert.Contains(t, out.Rendered.LandingPage, `name="magnet_id" value="42"`)
	assert.Contains(t, out.Rendered.ThankYou, `href="https://genieops.example.com/pricing"`)
	assert.Contains(t, out.Rendered.ThankYou, "width: 85%")
	assert.Equal(t, models.FallbackImageURL, out.Rendered.LinkedInImage)
}

func TestHandler_Execute_Errors(t *testing.T) {
	h := newTestHandler(t)

	_, err := h.Execute(context.Background(), &Input{Theme: models.StrategyTheme{AssetType: models.AssetReport}})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))

	_, err = h.Execute(context.Background(), &Input{
		Content: &models.AssetContent{},
		Theme:   models.StrategyTheme{AssetType: "Quiz"},
	})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeContractViolation))
}

func TestInput_UnknownContentTypeIsContractViolation(t *testing.T) {
	var input Input
	err := json.Unmarshal([]byte(`{"content": {"asset_type": "Quiz"}}`), &input)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeContractViolation))
}
