// Package funnel orchestrates the agents, renderer, stores and nurture scheduler behind
// the HTTP API.
package funnel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "genieops-engine/internal/common/errors"
	"genieops-engine/internal/common/logger"
	"genieops-engine/internal/common/observability"
	"genieops-engine/internal/models"
	buildfunnelcontent "genieops-engine/internal/workers/funnel/build-funnel-content"
	generatestrategy "genieops-engine/internal/workers/funnel/generate-strategy"
	interpretbrief "genieops-engine/internal/workers/funnel/interpret-brief"
)

type Interpreter interface {
	Execute(ctx context.Context, input *interpretbrief.Input) (*interpretbrief.Output, error)
}

type Strategist interface {
	Execute(ctx context.Context, input *generatestrategy.Input) (*generatestrategy.Output, error)
}

type ContentBuilder interface {
	Execute(ctx context.Context, input *buildfunnelcontent.Input) (*buildfunnelcontent.Output, error)
}

// Result is everything one end-to-end run produces.
type Result struct {
	Brief   models.Brief
	Theme   models.StrategyTheme
	Content *models.AssetContent
}

// Pipeline chains Intake, Director and Mastermind. Stages run in order and the first
// error is returned as is.
type Pipeline struct {
	intake     Interpreter
	director   Strategist
	mastermind ContentBuilder
	obs        *observability.Observability
	logger     logger.Logger
}

func NewPipeline(intake Interpreter, director Strategist, mastermind ContentBuilder, log logger.Logger) *Pipeline {
	return &Pipeline{
		intake:     intake,
		director:   director,
		mastermind: mastermind,
		logger:     log.WithFields(map[string]interface{}{"component": "pipeline"}),
	}
}

// Instrument counts stage outcomes on obs.
func (p *Pipeline) Instrument(obs *observability.Observability) *Pipeline {
	p.obs = obs
	return p
}

func (p *Pipeline) Run(ctx context.Context, prompt, callbackURL string) (*Result, error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.run")
	defer span.End()

	brief, err := p.Interpret(ctx, prompt)
	if err != nil {
		return nil, p.fail(ctx, span, "intake", err)
	}
	p.obs.RecordStage(ctx, "intake", "ok")

	theme, err := p.GenerateStrategy(ctx, brief, nil)
	if err != nil {
		return nil, p.fail(ctx, span, "director", err)
	}
	p.obs.RecordStage(ctx, "director", "ok")

	content, err := p.BuildContent(ctx, brief, theme, callbackURL)
	if err != nil {
		return nil, p.fail(ctx, span, "mastermind", err)
	}
	p.obs.RecordStage(ctx, "mastermind", "ok")

	p.logger.Info("pipeline finished", map[string]interface{}{
		"title":     theme.Title,
		"assetType": string(theme.AssetType),
	})
	return &Result{Brief: brief, Theme: theme, Content: content}, nil
}

func (p *Pipeline) fail(ctx context.Context, span trace.Span, stage string, err error) error {
	p.obs.RecordStage(ctx, stage, string(apperrors.CodeOf(err)))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("failed_stage", stage))
	p.logger.Warn("pipeline stopped", map[string]interface{}{
		"stage": stage,
		"code":  string(apperrors.CodeOf(err)),
		"error": err.Error(),
	})
	return err
}

func (p *Pipeline) Interpret(ctx context.Context, prompt string) (models.Brief, error) {
	out, err := p.intake.Execute(ctx, &interpretbrief.Input{Prompt: prompt})
	if err != nil {
		return models.Brief{}, err
	}
	return out.Brief, nil
}

func (p *Pipeline) GenerateStrategy(ctx context.Context, brief models.Brief, avoid []string) (models.StrategyTheme, error) {
	out, err := p.director.Execute(ctx, &generatestrategy.Input{Brief: brief, AvoidTopics: avoid})
	if err != nil {
		return models.StrategyTheme{}, err
	}
	return out.Theme, nil
}

func (p *Pipeline) BuildContent(ctx context.Context, brief models.Brief, theme models.StrategyTheme, callbackURL string) (*models.AssetContent, error) {
	out, err := p.mastermind.Execute(ctx, &buildfunnelcontent.Input{
		Title:          theme.Title,
		ICP:            brief.ICPProfile,
		AssetType:      theme.AssetType,
		BrandVoice:     brief.BrandVoice,
		ConversionGoal: brief.ConversionGoal,
		CallbackURL:    callbackURL,
	})
	if err != nil {
		return nil, err
	}
	return out.Content, nil
}
