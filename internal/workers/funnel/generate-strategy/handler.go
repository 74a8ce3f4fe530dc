package generatestrategy

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
	TaskType  = "generate-strategy"
	AgentName = "DIRECTOR"

	DefaultTitle        = "Modern Growth"
	DefaultValuePromise = "Expert Strategy"
	DefaultScore        = 92
)

var ErrICPRequired = errors.New("ICP_REQUIRED")

var (
	contract      = validation.MustContract("strategy", contractSchema)
	titleBrackets = strings.NewReplacer("[", "", "]", "", "{", "", "}", "")
)

type Completer interface {
	CompleteJSON(ctx context.Context, agent, model, system, user string) (map[string]interface{}, error)
}

// Handler is the Director agent. It picks the idea, the asset shape and the visual direction.
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
	if strings.TrimSpace(input.Brief.ICPProfile) == "" {
		return nil, apperrors.NewValidationError(ErrICPRequired.Error())
	}

	raw, err := h.client.CompleteJSON(ctx, AgentName, h.config.Model, systemPrompt, buildUserPrompt(input))
	if err != nil {
		return nil, err
	}

	if result := contract.Validate(raw); !result.Valid {
		metrics.AgentCalls.WithLabelValues(AgentName, "contract_violation").Inc()
		return nil, apperrors.NewContractViolationError(
			"strategy: " + strings.Join(result.GetErrorMessages(), "; ")).
			WithMetadata("agent", AgentName)
	}

	theme, err := models.DecodeStrategyTheme(raw)
	if err != nil {
		metrics.AgentCalls.WithLabelValues(AgentName, "contract_violation").Inc()
		if stdErr, ok := apperrors.AsStandard(err); ok {
			stdErr.WithMetadata("agent", AgentName)
		}
		return nil, err
	}
	applyDefaults(&theme, raw)

	metrics.AgentCalls.WithLabelValues(AgentName, "ok").Inc()
	h.logger.Info("strategy selected", map[string]interface{}{
		"title":           theme.Title,
		"assetType":       string(theme.AssetType),
		"conversionScore": theme.ConversionScore,
	})

	return &Output{Theme: theme}, nil
}

func applyDefaults(theme *models.StrategyTheme, raw map[string]interface{}) {
	theme.Title = strings.TrimSpace(titleBrackets.Replace(theme.Title))
	if theme.Title == "" {
		theme.Title = DefaultTitle
	}
	if theme.ValuePromise == "" {
		theme.ValuePromise = DefaultValuePromise
	}
	if _, ok := models.Number(raw["conversion_score"]); !ok {
		theme.ConversionScore = DefaultScore
	}
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
