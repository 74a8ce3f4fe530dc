package interpretbrief

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "genieops-engine/internal/common/errors"
	"genieops-engine/internal/common/logger"
)

type fakeCompleter struct {
	response map[string]interface{}
	err      error

	calls  int
	agent  string
	model  string
	system string
	user   string
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, agent, model, system, user string) (map[string]interface{}, error) {
	f.calls++
	f.agent, f.model, f.system, f.user = agent, model, system, user
	return f.response, f.err
}

func newTestHandler(t *testing.T, completer Completer) *Handler {
	return NewHandler(&Config{Model: "llama3", Timeout: time.Second}, completer, logger.NewTestLogger(t))
}

func TestHandler_Execute_Success(t *testing.T) {
	completer := &fakeCompleter{response: map[string]interface{}{
		"icp_profile":     "Owner of a 5-person bakery",
		"pain_points":     "online orders get lost",
		"brand_voice":     "warm",
		"offer_type":      "consulting",
		"conversion_goal": "book a call",
		"existing_topics": []interface{}{"Sourdough Pricing Guide"},
	}}
	h := newTestHandler(t, completer)

	out, err := h.Execute(context.Background(), &Input{Prompt: "I run a 5-person bakery struggling with online orders"})
	require.NoError(t, err)

	assert.Equal(t, "Owner of a 5-person bakery", out.Brief.ICPProfile)
	assert.Equal(t, "online orders get lost", out.Brief.PainPoints)
	assert.Equal(t, []string{"Sourdough Pricing Guide"}, out.Brief.ExistingTopics)

	assert.Equal(t, 1, completer.calls)
	assert.Equal(t, AgentName, completer.agent)
	assert.Equal(t, "llama3", completer.model)
	assert.Equal(t, systemPrompt, completer.system)
	assert.Contains(t, completer.user, "I run a 5-person bakery struggling with online orders")
	assert.Contains(t, completer.user, "existing_topics")
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name      string
		prompt    string
		completer *fakeCompleter
		wantCode  apperrors.ErrorCode
		wantCalls int
	}{
		{
			name:      "empty prompt",
			prompt:    "   ",
			completer: &fakeCompleter{},
			wantCode:  apperrors.ErrCodeValidationFailed,
		},
		{
			name:      "transport error passes through",
			prompt:    "bakery",
			completer: &fakeCompleter{err: apperrors.NewTransportError("genai", context.DeadlineExceeded)},
			wantCode:  apperrors.ErrCodeTransport,
			wantCalls: 1,
		},
		{
			name:      "parse error passes through",
			prompt:    "bakery",
			completer: &fakeCompleter{err: apperrors.NewParseError("no JSON object found")},
			wantCode:  apperrors.ErrCodeParse,
			wantCalls: 1,
		},
		{
			name:      "missing icp",
			prompt:    "bakery",
			completer: &fakeCompleter{response: map[string]interface{}{"pain_points": "x"}},
			wantCode:  apperrors.ErrCodeContractViolation,
			wantCalls: 1,
		},
		{
			name:      "blank icp",
			prompt:    "bakery",
			completer: &fakeCompleter{response: map[string]interface{}{"icp_profile": "  "}},
			wantCode:  apperrors.ErrCodeContractViolation,
			wantCalls: 1,
		},
		{
			name:      "topics of wrong type",
			prompt:    "bakery",
			completer: &fakeCompleter{response: map[string]interface{}{"icp_profile": "bakers", "existing_topics": 3.0}},
			wantCode:  apperrors.ErrCodeContractViolation,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, tt.completer)

			out, err := h.Execute(context.Background(), &Input{Prompt: tt.prompt})
			require.Error(t, err)
			assert.Nil(t, out)
			assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))
			assert.Equal(t, tt.wantCalls, tt.completer.calls)
		})
	}
}

func TestHandler_Execute_AcceptsIcpAlias(t *testing.T) {
	h := newTestHandler(t, &fakeCompleter{response: map[string]interface{}{
		"icp":             "yoga studio owners",
		"existing_topics": "Morning Flow Checklist",
	}})

	out, err := h.Execute(context.Background(), &Input{Prompt: "yoga"})
	require.NoError(t, err)
	assert.Equal(t, "yoga studio owners", out.Brief.ICPProfile)
	assert.Equal(t, []string{"Morning Flow Checklist"}, out.Brief.ExistingTopics)
}
