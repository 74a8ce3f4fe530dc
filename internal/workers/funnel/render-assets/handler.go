package renderassets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "genieops-engine/internal/common/errors"
	"genieops-engine/internal/common/logger"
)

const TaskType = "render-assets"

var ErrContentRequired = errors.New("CONTENT_REQUIRED")

type Handler struct {
	config     *Config
	logger     logger.Logger
	errHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
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
		// asset_type problems surface here because content decodes against it.
		if apperrors.HasCode(err, apperrors.ErrCodeContractViolation) {
			h.errHandler.HandleJobError(ctx, client, job, err)
			return
		}
		h.errHandler.HandleJobError(ctx, client, job, apperrors.NewValidationError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.errHandler.HandleJobError(ctx, client, job, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{"error": err.Error()})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{"error": err.Error()})
	}
}

// Execute renders input with the handler's capture and upgrade links.
func (h *Handler) Execute(_ context.Context, input *Input) (*Output, error) {
	if input.Content == nil {
		return nil, apperrors.NewValidationError(ErrContentRequired.Error())
	}

	rendered, err := Render(input.Content, input.Theme, input.Images,
		WithFunnel(input.FunnelID),
		WithCaptureURL(h.config.CaptureURL),
		WithUpgradeURL(h.config.UpgradeURL),
	)
	if err != nil {
		h.logger.Warn("render rejected", map[string]interface{}{
			"funnelId":  input.FunnelID,
			"assetType": string(input.Theme.AssetType),
			"error":     err.Error(),
		})
		return nil, err
	}

	h.logger.Info("assets rendered", map[string]interface{}{
		"funnelId":  input.FunnelID,
		"assetType": string(input.Theme.AssetType),
		"bytes":     len(rendered.LandingPage) + len(rendered.ThankYou),
	})
	return &Output{Rendered: rendered}, nil
}
