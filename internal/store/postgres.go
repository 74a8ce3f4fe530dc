// Package store persists funnels and leads in Postgres and keeps the funnel search index.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	apperrors "genieops-engine/internal/common/errors"
	"genieops-engine/internal/models"
)

// foreignKeyViolation is the Postgres SQLSTATE for a missing referenced row.
const foreignKeyViolation = "23503"

type FunnelStore interface {
	CreateFunnel(ctx context.Context, brief models.Brief, theme models.StrategyTheme) (*models.Funnel, error)
	GetFunnel(ctx context.Context, id int64) (*models.Funnel, error)
	SaveAssets(ctx context.Context, id int64, content *models.AssetContent, rendered *models.RenderedAsset) error
	ListFunnels(ctx context.Context, ids []int64) ([]models.FunnelSummary, error)
}

type LeadStore interface {
	CreateLead(ctx context.Context, lead *models.Lead) (*models.Lead, error)
	GetLead(ctx context.Context, id int64) (*models.Lead, error)
	AdvanceNurtureStage(ctx context.Context, leadID int64, stage int, sentAt time.Time) (bool, error)
	SetNewsletterOptIn(ctx context.Context, leadID int64, optIn bool) error
}

// PostgresStore implements FunnelStore and LeadStore over the lead_magnets and leads tables.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const funnelColumns = `id, icp_profile, pain_points, brand_voice, offer_type, conversion_goal,
	existing_topics, idea_title, idea_type, value_promise, conversion_score, theme,
	asset_data, email_nurture_sequence, landing_page_html, thank_you_html,
	linkedin_post, linkedin_img, created_at, updated_at`

func (s *PostgresStore) CreateFunnel(ctx context.Context, brief models.Brief, theme models.StrategyTheme) (*models.Funnel, error) {
	themeJSON, err := json.Marshal(theme)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("encode theme: %w", err))
	}

	topics := brief.ExistingTopics
	if topics == nil {
		topics = []string{}
	}

	funnel := &models.Funnel{Brief: brief, Theme: theme}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO lead_magnets (icp_profile, pain_points, brand_voice, offer_type, conversion_goal,
			existing_topics, idea_title, idea_type, value_promise, conversion_score, theme)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`,
		brief.ICPProfile, brief.PainPoints, brief.BrandVoice, brief.OfferType, brief.ConversionGoal,
		pq.Array(topics), theme.Title, string(theme.AssetType), theme.ValuePromise, theme.ConversionScore,
		themeJSON,
	).Scan(&funnel.ID, &funnel.CreatedAt, &funnel.UpdatedAt)
	if err != nil {
		return nil, apperrors.NewDatabaseError("create funnel", err)
	}
	return funnel, nil
}

func (s *PostgresStore) GetFunnel(ctx context.Context, id int64) (*models.Funnel, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+funnelColumns+` FROM lead_magnets WHERE id = $1`, id)

	funnel, err := scanFunnel(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("lead magnet", id)
	}
	if err != nil {
		if _, ok := apperrors.AsStandard(err); ok {
			return nil, err
		}
		return nil, apperrors.NewDatabaseError("get funnel", err)
	}
	return funnel, nil
}

func scanFunnel(row *sql.Row) (*models.Funnel, error) {
	var (
		f                               models.Funnel
		ideaTitle, ideaType, promise    string
		score                           int
		themeJSON, assetJSON, emailJSON []byte
		landing, thankYou, post, image  sql.NullString
	)

	err := row.Scan(
		&f.ID, &f.Brief.ICPProfile, &f.Brief.PainPoints, &f.Brief.BrandVoice, &f.Brief.OfferType,
		&f.Brief.ConversionGoal, pq.Array(&f.Brief.ExistingTopics), &ideaTitle, &ideaType, &promise,
		&score, &themeJSON, &assetJSON, &emailJSON, &landing, &thankYou, &post, &image,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(themeJSON) > 0 {
		if err := json.Unmarshal(themeJSON, &f.Theme); err != nil {
			return nil, apperrors.NewDatabaseError("decode theme", err)
		}
	}
	// Columns are the source of truth for the fields they carry.
	f.Theme.Title = ideaTitle
	f.Theme.ValuePromise = promise
	f.Theme.ConversionScore = score
	if t, err := models.ParseAssetType(ideaType); err == nil {
		f.Theme.AssetType = t
	}

	if len(assetJSON) > 0 {
		var content models.AssetContent
		if err := json.Unmarshal(assetJSON, &content); err != nil {
			return nil, apperrors.NewDatabaseError("decode asset data", err)
		}
		f.Content = &content
	}
	if len(emailJSON) > 0 {
		if err := json.Unmarshal(emailJSON, &f.Emails); err != nil {
			return nil, apperrors.NewDatabaseError("decode email sequence", err)
		}
	}
	if landing.Valid && landing.String != "" {
		f.Rendered = &models.RenderedAsset{
			LandingPage:   landing.String,
			ThankYou:      thankYou.String,
			LinkedInPost:  post.String,
			LinkedInImage: image.String,
		}
	}
	return &f, nil
}

// SaveAssets stores the Mastermind content, its email sequence and the rendered pages.
func (s *PostgresStore) SaveAssets(ctx context.Context, id int64, content *models.AssetContent, rendered *models.RenderedAsset) error {
	if content == nil || rendered == nil {
		return apperrors.NewValidationError("content and rendered assets are required")
	}

	assetJSON, err := json.Marshal(content)
	if err != nil {
		return apperrors.NewInternalError(fmt.Errorf("encode asset data: %w", err))
	}
	emails := content.Emails
	if emails == nil {
		emails = []models.NurtureStep{}
	}
	emailJSON, err := json.Marshal(emails)
	if err != nil {
		return apperrors.NewInternalError(fmt.Errorf("encode email sequence: %w", err))
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE lead_magnets
		SET asset_data = $2, email_nurture_sequence = $3, landing_page_html = $4, thank_you_html = $5,
			linkedin_post = $6, linkedin_img = $7, upgrade_offer_copy = $8, updated_at = NOW()
		WHERE id = $1`,
		id, assetJSON, emailJSON, rendered.LandingPage, rendered.ThankYou,
		rendered.LinkedInPost, rendered.LinkedInImage, content.UpgradeOfferCopy,
	)
	if err != nil {
		return apperrors.NewDatabaseError("save assets", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError("lead magnet", id)
	}
	return nil
}

// ListFunnels returns listing rows, newest first. A non-nil ids restricts the listing to
// those funnels.
func (s *PostgresStore) ListFunnels(ctx context.Context, ids []int64) ([]models.FunnelSummary, error) {
	query := `
		SELECT id, idea_title, idea_type, conversion_score, icp_profile,
			landing_page_html IS NOT NULL, created_at
		FROM lead_magnets`
	var args []interface{}
	if ids != nil {
		if len(ids) == 0 {
			return []models.FunnelSummary{}, nil
		}
		query += ` WHERE id = ANY($1)`
		args = append(args, pq.Array(ids))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list funnels", err)
	}
	defer rows.Close()

	out := []models.FunnelSummary{}
	for rows.Next() {
		var (
			row      models.FunnelSummary
			ideaType string
		)
		if err := rows.Scan(&row.ID, &row.Title, &ideaType, &row.ConversionScore, &row.ICPProfile,
			&row.Generated, &row.CreatedAt); err != nil {
			return nil, apperrors.NewDatabaseError("list funnels", err)
		}
		row.AssetType = models.AssetType(ideaType)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list funnels", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateLead(ctx context.Context, lead *models.Lead) (*models.Lead, error) {
	created := *lead
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO leads (email, magnet_id, agreed_to_terms, subscribed_to_newsletter, nurture_stage)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		lead.Email, lead.FunnelID, lead.AgreedToTerms, lead.OptedIntoNewsletter, lead.NurtureStage,
	).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return nil, apperrors.NewNotFoundError("lead magnet", lead.FunnelID)
		}
		return nil, apperrors.NewDatabaseError("create lead", err)
	}
	return &created, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, id int64) (*models.Lead, error) {
	var (
		lead   models.Lead
		sentAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, magnet_id, agreed_to_terms, subscribed_to_newsletter, nurture_stage,
			last_email_sent_at, created_at
		FROM leads WHERE id = $1`, id,
	).Scan(&lead.ID, &lead.Email, &lead.FunnelID, &lead.AgreedToTerms, &lead.OptedIntoNewsletter,
		&lead.NurtureStage, &sentAt, &lead.CreatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("lead", id)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get lead", err)
	}
	if sentAt.Valid {
		t := sentAt.Time
		lead.LastEmailSentAt = &t
	}
	return &lead, nil
}

// AdvanceNurtureStage moves a lead forward only while it is below stage, so a repeated
// delivery never moves it twice.
func (s *PostgresStore) AdvanceNurtureStage(ctx context.Context, leadID int64, stage int, sentAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE leads SET nurture_stage = $2, last_email_sent_at = $3
		WHERE id = $1 AND nurture_stage < $2`,
		leadID, stage, sentAt,
	)
	if err != nil {
		return false, apperrors.NewDatabaseError("advance nurture stage", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewDatabaseError("advance nurture stage", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) SetNewsletterOptIn(ctx context.Context, leadID int64, optIn bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET subscribed_to_newsletter = $2 WHERE id = $1`, leadID, optIn)
	if err != nil {
		return apperrors.NewDatabaseError("update newsletter opt-in", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError("lead", leadID)
	}
	return nil
}
