package emailsend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "genieops-engine/internal/common/errors"
	"genieops-engine/internal/common/logger"
	"genieops-engine/internal/common/validation"
)

const TaskType = "email-send"

var inputContract = validation.MustContract("email-send", `{
	"type": "object",
	"required": ["to", "subject", "body"],
	"properties": {
		"to": {"type": "string", "minLength": 5, "maxLength": 255},
		"subject": {"type": "string", "minLength": 1, "maxLength": 500},
		"body": {"type": "string", "minLength": 1, "maxLength": 100000}
	}
}`)

type HandlerOptions struct {
	CustomConfig *Config
	Logger       logger.Logger
	// Transport overrides the one built from CustomConfig.
	Transport Transport
	SES       SESAPI
}

type Handler struct {
	config     *Config
	transport  Transport
	logger     logger.Logger
	errHandler *apperrors.ErrorHandler
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg := opts.CustomConfig
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})

	transport := opts.Transport
	if transport == nil {
		transport = NewTransport(cfg, opts.SES, log)
	}

	return &Handler{
		config:     cfg,
		transport:  transport,
		logger:     log,
		errHandler: apperrors.NewErrorHandler(log),
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(job.Variables), &raw); err != nil {
		h.errHandler.HandleJobError(ctx, client, job, apperrors.NewValidationError(fmt.Sprintf("parse input: %v", err)))
		return
	}
	if result := inputContract.Validate(raw); !result.Valid {
		h.errHandler.HandleJobError(ctx, client, job,
			apperrors.NewValidationError(strings.Join(result.GetErrorMessages(), "; ")))
		return
	}

	var input Input
	_ = json.Unmarshal([]byte(job.Variables), &input)

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

// Execute sends one email. A false from the transport becomes a DELIVERY_FAILURE error.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if !validation.ValidateEmail(input.To) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid 'to' email address: %s", input.To))
	}

	if !h.transport.Send(ctx, input.To, input.Subject, input.Body) {
		return nil, apperrors.NewDeliveryFailureError(input.To, fmt.Errorf("%s transport rejected the message", h.transport.Name()))
	}

	return &Output{
		Success:  true,
		Provider: h.transport.Name(),
		SentAt:   time.Now().UTC(),
	}, nil
}

// Transport exposes the configured transport for callers outside Zeebe.
func (h *Handler) Transport() Transport {
	return h.transport
}
