package buildfunnelcontent

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
	TaskType  = "build-funnel-content"
	AgentName = "MASTERMIND"
)

var ErrTitleRequired = errors.New("TITLE_REQUIRED")

var contract = validation.MustContract("funnel-content", contractSchema)

type Completer interface {
	CompleteJSON(ctx context.Context, agent, model, system, user string) (map[string]interface{}, error)
}

// Handler is the Mastermind agent: copy, nurture emails and the asset logic for one funnel.
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, apperrors.NewValidationError(ErrTitleRequired.Error())
	}

	// The asset logic shape is chosen from the type, so an unknown type fails before the call.
	assetType, err := models.ParseAssetType(string(input.AssetType))
	if err != nil {
		return nil, err
	}
	input.AssetType = assetType

	raw, err := h.client.CompleteJSON(ctx, AgentName, h.config.Model,
		buildSystemPrompt(input.BrandVoice, input.ConversionGoal), buildUserPrompt(input))
	if err != nil {
		return nil, err
	}

	if result := contract.Validate(raw); !result.Valid {
		metrics.AgentCalls.WithLabelValues(AgentName, "contract_violation").Inc()
		return nil, apperrors.NewContractViolationError(
			"funnel content: " + strings.Join(result.GetErrorMessages(), "; ")).
			WithMetadata("agent", AgentName)
	}

	content, err := models.DecodeAssetContent(raw, assetType)
	if err != nil {
		return nil, err
	}

	metrics.AgentCalls.WithLabelValues(AgentName, "ok").Inc()
	h.logger.Info("funnel content built", map[string]interface{}{
		"assetType": string(assetType),
		"emails":    len(content.Emails),
		"features":  len(content.Features),
	})

	return &Output{Content: content}, nil
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
