package interpretbrief

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "genieops-engine/internal/common/errors"
	"genieops-engine/internal/common/logger"
	"genieops-engine/internal/common/metrics"
	"genieops-engine/internal/common/validation"
	"genieops-engine/internal/models"
)

const (
	TaskType  = "interpret-brief"
	AgentName = "INTAKE"
)

var ErrPromptRequired = errors.New("PROMPT_REQUIRED")

var contract = validation.MustContract("brief", contractSchema)

// Completer returns the JSON object a model produced for a prompt pair.
type Completer interface {
	CompleteJSON(ctx context.Context, agent, model, system, user string) (map[string]interface{}, error)
}

// Handler is the Intake agent: free text in, Brief out.
type Handler struct {
	config     *Config
	client     Completer
	logger     logger.Logger
	errHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, client Completer, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		client:     client,
		logger:     l,
		errHandler: apperrors.NewErrorHandler(l),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errHandler.HandleJobError(ctx, client, job, apperrors.NewValidationError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.errHandler.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

// Execute runs the agent outside of Zeebe.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		return nil, apperrors.NewValidationError(ErrPromptRequired.Error())
	}

	raw, err := h.client.CompleteJSON(ctx, AgentName, h.config.Model, systemPrompt, buildUserPrompt(prompt))
	if err != nil {
		return nil, err
	}

	if result := contract.Validate(raw); !result.Valid {
		metrics.AgentCalls.WithLabelValues(AgentName, "contract_violation").Inc()
		return nil, apperrors.NewContractViolationError(
			"brief: " + strings.Join(result.GetErrorMessages(), "; ")).
			WithMetadata("agent", AgentName)
	}

	brief := models.DecodeBrief(raw)
	if brief.ICPProfile == "" {
		metrics.AgentCalls.WithLabelValues(AgentName, "contract_violation").Inc()
		return nil, apperrors.NewContractViolationError("brief: icp_profile is empty").
			WithMetadata("agent", AgentName)
	}

	metrics.AgentCalls.WithLabelValues(AgentName, "ok").Inc()
	h.logger.Info("brief extracted", map[string]interface{}{
		"icp":            brief.ICPProfile,
		"existingTopics": len(brief.ExistingTopics),
	})

	return &Output{Brief: brief}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
