package funnel

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "genieops-engine/internal/common/errors"
	"genieops-engine/internal/common/logger"
	"genieops-engine/internal/common/metrics"
	"genieops-engine/internal/common/validation"
	"genieops-engine/internal/models"
	"genieops-engine/internal/store"
	fetchimages "genieops-engine/internal/workers/funnel/fetch-images"
	renderassets "genieops-engine/internal/workers/funnel/render-assets"
)

type TopicIndex interface {
	Index(ctx context.Context, funnel *models.Funnel) error
	Topics(ctx context.Context, icp string) ([]string, error)
	Search(ctx context.Context, q string) ([]int64, error)
}

type ImageFetcher interface {
	Fetch(ctx context.Context, input *fetchimages.Input) models.Images
}

type Sender interface {
	Send(ctx context.Context, to, subject, body string) bool
}

type Nurturer interface {
	Schedule(ctx context.Context, leadID, funnelID int64) (string, error)
	Cancel(ctx context.Context, leadID int64) (int, error)
}

type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error)
	Unlock(ctx context.Context, name, token string) error
}

type Config struct {
	// PublicBaseURL prefixes the preview links put into generated copy.
	PublicBaseURL string
	CaptureURL    string
	UpgradeURL    string
	LockTTL       time.Duration
}

// Deps are the collaborators a Service needs. Topics and Notifier may be nil.
type Deps struct {
	Pipeline *Pipeline
	Funnels  store.FunnelStore
	Leads    store.LeadStore
	Topics   TopicIndex
	Images   ImageFetcher
	Mailer   Sender
	Nurture  Nurturer
	Locker   Locker
	Notifier *Notifier
}

// Service is the orchestrator behind every API operation.
type Service struct {
	config Config
	deps   Deps
	logger logger.Logger
}

func NewService(config Config, deps Deps, log logger.Logger) *Service {
	if config.LockTTL <= 0 {
		config.LockTTL = 10 * time.Minute
	}
	config.PublicBaseURL = strings.TrimRight(config.PublicBaseURL, "/")
	return &Service{
		config: config,
		deps:   deps,
		logger: log.WithFields(map[string]interface{}{"component": "funnel-service"}),
	}
}

// Idea is the response to GenerateIdea.
type Idea struct {
	ID              int64            `json:"id"`
	Title           string           `json:"title"`
	AssetType       models.AssetType `json:"type"`
	ConversionScore int              `json:"conversion_score"`
	ValuePromise    string           `json:"value_promise"`
}

// Asset is the response to GenerateFullAsset.
type Asset struct {
	Status        string `json:"status"`
	LandingPage   string `json:"landing_page"`
	LinkedInPost  string `json:"linkedin_post"`
	LinkedInImage string `json:"linkedin_img"`
}

// Capture is a lead capture submission.
type Capture struct {
	Email      string
	FunnelID   int64
	Terms      bool
	Newsletter bool
}

func (s *Service) PreviewURL(id int64) string {
	return s.config.PublicBaseURL + "/preview/" + strconv.FormatInt(id, 10)
}

func (s *Service) ThankYouURL(id int64) string {
	return s.config.PublicBaseURL + "/preview-thank-you/" + strconv.FormatInt(id, 10)
}

// InterpretPrompt runs Intake and adds titles of earlier funnels for the same ICP to the
// brief's existing topics.
func (s *Service) InterpretPrompt(ctx context.Context, prompt string) (models.Brief, error) {
	brief, err := s.deps.Pipeline.Interpret(ctx, prompt)
	if err != nil {
		return models.Brief{}, err
	}
	brief.ExistingTopics = mergeTopics(brief.ExistingTopics, s.knownTopics(ctx, brief.ICPProfile))
	return brief, nil
}

// GenerateIdea runs the Director for brief and persists the resulting funnel record.
func (s *Service) GenerateIdea(ctx context.Context, brief models.Brief) (*Idea, error) {
	theme, err := s.deps.Pipeline.GenerateStrategy(ctx, brief, s.knownTopics(ctx, brief.ICPProfile))
	if err != nil {
		return nil, err
	}

	funnel, err := s.deps.Funnels.CreateFunnel(ctx, brief, theme)
	if err != nil {
		return nil, err
	}

	if s.deps.Topics != nil {
		if err := s.deps.Topics.Index(ctx, funnel); err != nil {
			s.logger.Warn("topic not indexed", map[string]interface{}{"funnelId": funnel.ID, "error": err.Error()})
		}
	}

	s.logger.Info("idea generated", map[string]interface{}{
		"funnelId":  funnel.ID,
		"title":     theme.Title,
		"assetType": string(theme.AssetType),
	})
	return &Idea{
		ID:              funnel.ID,
		Title:           theme.Title,
		AssetType:       theme.AssetType,
		ConversionScore: theme.ConversionScore,
		ValuePromise:    theme.ValuePromise,
	}, nil
}

// GenerateFullAsset builds, renders and stores the complete funnel for id. A second call
// for the same id while one is running gets a CONFLICT.
func (s *Service) GenerateFullAsset(ctx context.Context, id int64) (*Asset, error) {
	lockName := "funnel:" + strconv.FormatInt(id, 10)
	token, ok, err := s.deps.Locker.TryLock(ctx, lockName, s.config.LockTTL)
	if err != nil {
		return nil, apperrors.NewDatabaseError("acquire lock", err)
	}
	if !ok {
		return nil, apperrors.NewConflictError(fmt.Sprintf("lead magnet %d is already being generated", id))
	}
	defer func() {
		if err := s.deps.Locker.Unlock(context.Background(), lockName, token); err != nil {
			s.logger.Warn("lock not released", map[string]interface{}{"funnelId": id, "error": err.Error()})
		}
	}()

	funnel, err := s.deps.Funnels.GetFunnel(ctx, id)
	if err != nil {
		return nil, err
	}

	content, err := s.deps.Pipeline.BuildContent(ctx, funnel.Brief, funnel.Theme, s.PreviewURL(id))
	if err != nil {
		return nil, err
	}

	images := s.deps.Images.Fetch(ctx, &fetchimages.Input{
		ICP:            funnel.Brief.ICPProfile,
		BgKeyword:      funnel.Theme.BgKeyword,
		ImageKeyword:   funnel.Theme.ImageKeyword,
		LiImageKeyword: funnel.Theme.LiImageKeyword,
	})

	rendered, err := renderassets.Render(content, funnel.Theme, images,
		renderassets.WithFunnel(id),
		renderassets.WithCaptureURL(s.config.CaptureURL),
		renderassets.WithUpgradeURL(s.config.UpgradeURL),
	)
	if err != nil {
		return nil, err
	}

	if err := s.deps.Funnels.SaveAssets(ctx, id, content, rendered); err != nil {
		return nil, err
	}

	s.deps.Notifier.Publish(ctx, Event{
		Type:          EventFunnelReady,
		FunnelID:      id,
		Title:         funnel.Theme.Title,
		PreviewURL:    s.PreviewURL(id),
		LinkedInPost:  rendered.LinkedInPost,
		LinkedInImage: rendered.LinkedInImage,
	})

	s.logger.Info("funnel generated", map[string]interface{}{
		"funnelId":  id,
		"assetType": string(funnel.Theme.AssetType),
		"emails":    len(content.Emails),
	})
	return &Asset{
		Status:        "success",
		LandingPage:   rendered.LandingPage,
		LinkedInPost:  rendered.LinkedInPost,
		LinkedInImage: rendered.LinkedInImage,
	}, nil
}

// CaptureLead stores a lead, sends the welcome email and, for newsletter opt-ins,
// schedules the follow-up. Email and scheduling failures are logged; they never fail
// the capture.
func (s *Service) CaptureLead(ctx context.Context, c Capture) (*models.Lead, error) {
	email := strings.TrimSpace(c.Email)
	if !validation.ValidateEmail(email) {
		return nil, apperrors.NewValidationError("a valid email is required")
	}
	if c.FunnelID <= 0 {
		return nil, apperrors.NewValidationError("magnet_id is required")
	}

	funnel, err := s.deps.Funnels.GetFunnel(ctx, c.FunnelID)
	if err != nil {
		return nil, err
	}

	lead, err := s.deps.Leads.CreateLead(ctx, &models.Lead{
		Email:               email,
		FunnelID:            c.FunnelID,
		AgreedToTerms:       c.Terms,
		OptedIntoNewsletter: c.Newsletter,
		NurtureStage:        models.NurtureStageWelcome,
	})
	if err != nil {
		return nil, err
	}

	if welcome, ok := funnel.Step(0); ok {
		stage := strconv.Itoa(models.NurtureStageWelcome)
		if s.deps.Mailer.Send(ctx, lead.Email, welcome.Subject, welcome.Body) {
			metrics.NurtureEmails.WithLabelValues(stage, "sent").Inc()
		} else {
			metrics.NurtureEmails.WithLabelValues(stage, "delivery_failure").Inc()
			err := apperrors.NewDeliveryFailureError(lead.Email, fmt.Errorf("welcome email not accepted"))
			s.logger.Warn("welcome email failed", map[string]interface{}{
				"leadId": lead.ID,
				"code":   string(err.Code),
			})
		}
	}

	if lead.OptedIntoNewsletter {
		if _, err := s.deps.Nurture.Schedule(ctx, lead.ID, lead.FunnelID); err != nil {
			s.logger.Error("nurture not scheduled", map[string]interface{}{"leadId": lead.ID, "error": err.Error()})
		}
	}

	s.deps.Notifier.Publish(ctx, Event{Type: EventLeadCaptured, FunnelID: lead.FunnelID, LeadID: lead.ID})

	s.logger.Info("lead captured", map[string]interface{}{
		"leadId":     lead.ID,
		"funnelId":   lead.FunnelID,
		"newsletter": lead.OptedIntoNewsletter,
	})
	return lead, nil
}

// Unsubscribe opts a lead out and cancels its pending follow-ups.
func (s *Service) Unsubscribe(ctx context.Context, leadID int64) (int, error) {
	if err := s.deps.Leads.SetNewsletterOptIn(ctx, leadID, false); err != nil {
		return 0, err
	}
	return s.deps.Nurture.Cancel(ctx, leadID)
}

// Preview returns the rendered markup of funnel id. A funnel that has not been generated
// yet is NOT_FOUND.
func (s *Service) Preview(ctx context.Context, id int64) (*models.RenderedAsset, error) {
	funnel, err := s.deps.Funnels.GetFunnel(ctx, id)
	if err != nil {
		return nil, err
	}
	if funnel.Rendered == nil {
		return nil, apperrors.NewNotFoundError("rendered lead magnet", id)
	}
	return funnel.Rendered, nil
}

// List returns funnels newest first. A non-empty q restricts the listing to search hits.
func (s *Service) List(ctx context.Context, q string) ([]models.FunnelSummary, error) {
	q = strings.TrimSpace(q)
	if q == "" || s.deps.Topics == nil {
		return s.deps.Funnels.ListFunnels(ctx, nil)
	}

	ids, err := s.deps.Topics.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	return s.deps.Funnels.ListFunnels(ctx, ids)
}

func (s *Service) knownTopics(ctx context.Context, icp string) []string {
	if s.deps.Topics == nil {
		return nil
	}
	topics, err := s.deps.Topics.Topics(ctx, icp)
	if err != nil {
		s.logger.Warn("topic lookup failed", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return topics
}

func mergeTopics(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, t := range append(append([]string{}, a...), b...) {
		key := strings.ToLower(strings.TrimSpace(t))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(t))
	}
	return out
}
