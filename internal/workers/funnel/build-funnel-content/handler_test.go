package buildfunnelcontent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "genieops-engine/internal/common/errors"
	"genieops-engine/internal/common/logger"
	"genieops-engine/internal/models"
)

type fakeCompleter struct {
	response map[string]interface{}
	err      error
	calls    int
	model    string
	system   string
	user     string
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, _, model, system, user string) (map[string]interface{}, error) {
	f.calls++
	f.model, f.system, f.user = model, system, user
	return f.response, f.err
}

func newTestHandler(t *testing.T, c Completer) *Handler {
	return NewHandler(&Config{Model: "deepseek-r1:latest", Timeout: time.Second}, c, logger.NewTestLogger(t))
}

func input(assetType models.AssetType) *Input {
	return &Input{
		Title:          "Order Leak Calculator",
		ICP:            "Owners of small bakeries",
		AssetType:      assetType,
		BrandVoice:     "warm",
		ConversionGoal: "book a call",
		CallbackURL:    "http://localhost:8000/preview/7",
	}
}

func TestHandler_Execute_Calculator(t *testing.T) {
	c := &fakeCompleter{response: map[string]interface{}{
		"headline":  "Stop Losing Orders",
		"features":  []interface{}{"a", "b", "c"},
		"emails":    []interface{}{map[string]interface{}{"subject": "Welcome", "body": "Hi"}, map[string]interface{}{"subject": "Next", "body": "More"}},
		"asset_logic": map[string]interface{}{
			"input_label": "Orders per week",
			"multiplier":  "2.5",
		},
		"linkedin_post": map[string]interface{}{"post": "We shipped it"},
	}}
	h := newTestHandler(t, c)

	out, err := h.Execute(context.Background(), input("calculator"))
	require.NoError(t, err)

	content := out.Content
	assert.Equal(t, models.AssetCalculator, content.Type)
	assert.Equal(t, "Stop Losing Orders", content.Headline)
	assert.Len(t, content.Emails, 2)
	assert.Equal(t, "Next", content.Emails[1].Subject)

	logic, ok := content.Logic.(*models.CalculatorLogic)
	require.True(t, ok)
	assert.Equal(t, "Orders per week", logic.InputLabel)
	assert.InDelta(t, 2.5, logic.Multiplier, 1e-9)
	assert.Equal(t, "$", logic.Unit)
	assert.Equal(t, "Result", logic.ResultLabel)

	assert.Equal(t, "deepseek-r1:latest", c.model)
	assert.Equal(t, "You are a Senior Copywriter & Logic Engineer. Voice: warm. Goal: book a call. ONLY JSON.", c.system)
	assert.Contains(t, c.user, "Include link: http://localhost:8000/preview/7")
	assert.Contains(t, c.user, `"input_label"`)
}

func TestHandler_Execute_ChecklistNormalizesTips(t *testing.T) {
	h := newTestHandler(t, &fakeCompleter{response: map[string]interface{}{
		"asset_logic": map[string]interface{}{
			"tips": []interface{}{map[string]interface{}{"tip": "Do X"}, "Do Y"},
		},
	}})

	out, err := h.Execute(context.Background(), input(models.AssetChecklist))
	require.NoError(t, err)

	logic := out.Content.Logic.(*models.ChecklistLogic)
	assert.Equal(t, []string{"Do X", "Do Y"}, logic.Tips)
}

func TestHandler_Execute_MissingLogicUsesDefaults(t *testing.T) {
	h := newTestHandler(t, &fakeCompleter{response: map[string]interface{}{"asset_logic": nil}})

	out, err := h.Execute(context.Background(), input(models.AssetReport))
	require.NoError(t, err)

	logic := out.Content.Logic.(*models.ReportLogic)
	assert.Equal(t, []models.DataPoint{{Label: "Potential", Value: 85}}, logic.DataPoints)
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name      string
		input     *Input
		completer *fakeCompleter
		wantCode  apperrors.ErrorCode
		wantCalls int
	}{
		{
			name:      "unknown asset type fails before the call",
			input:     input("Quiz"),
			completer: &fakeCompleter{},
			wantCode:  apperrors.ErrCodeContractViolation,
		},
		{
			name:      "missing title",
			input:     &Input{AssetType: models.AssetReport},
			completer: &fakeCompleter{},
			wantCode:  apperrors.ErrCodeValidationFailed,
		},
		{
			name:      "parse error",
			input:     input(models.AssetReport),
			completer: &fakeCompleter{err: apperrors.NewParseError("no JSON object found")},
			wantCode:  apperrors.ErrCodeParse,
			wantCalls: 1,
		},
		{
			name:      "emails of wrong type",
			input:     input(models.AssetReport),
			completer: &fakeCompleter{response: map[string]interface{}{"emails": "three emails"}},
			wantCode:  apperrors.ErrCodeContractViolation,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, tt.completer)

			_, err := h.Execute(context.Background(), tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))
			assert.Equal(t, tt.wantCalls, tt.completer.calls)
		})
	}
}
