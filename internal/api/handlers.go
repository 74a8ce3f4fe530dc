package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	apperrors "genieops-engine/internal/common/errors"
	"genieops-engine/internal/funnel"
	"genieops-engine/internal/models"
)

// FunnelService is the orchestrator surface the routes call.
type FunnelService interface {
	InterpretPrompt(ctx context.Context, prompt string) (models.Brief, error)
	GenerateIdea(ctx context.Context, brief models.Brief) (*funnel.Idea, error)
	GenerateFullAsset(ctx context.Context, id int64) (*funnel.Asset, error)
	CaptureLead(ctx context.Context, c funnel.Capture) (*models.Lead, error)
	Unsubscribe(ctx context.Context, leadID int64) (int, error)
	Preview(ctx context.Context, id int64) (*models.RenderedAsset, error)
	List(ctx context.Context, q string) ([]models.FunnelSummary, error)
	ThankYouURL(id int64) string
}

type Handler struct {
	service FunnelService
}

func NewHandler(service FunnelService) *Handler {
	return &Handler{service: service}
}

type chatRequest struct {
	Prompt string `json:"prompt"`
}

type captureRequest struct {
	Email      string `json:"email" form:"email"`
	MagnetID   int64  `json:"magnet_id" form:"magnet_id"`
	Terms      bool   `json:"terms" form:"terms"`
	Newsletter bool   `json:"newsletter" form:"newsletter"`
	NewsOptIn  bool   `json:"news_opt_in" form:"news_opt_in"`
}

func (h *Handler) ChatToFunnel(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondError(c, apperrors.NewValidationError("prompt is required"))
		return
	}

	brief, err := h.service.InterpretPrompt(c.Request.Context(), req.Prompt)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, brief)
}

func (h *Handler) GenerateIdea(c *gin.Context) {
	var brief models.Brief
	if err := c.ShouldBindJSON(&brief); err != nil {
		respondError(c, apperrors.NewValidationError("invalid JSON body"))
		return
	}

	idea, err := h.service.GenerateIdea(c.Request.Context(), brief)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, idea)
}

func (h *Handler) GenerateFullAsset(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	asset, err := h.service.GenerateFullAsset(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, asset)
}

// CaptureLead accepts the landing page form post or a JSON body. A form post is
// redirected to the thank-you page.
func (h *Handler) CaptureLead(c *gin.Context) {
	var req captureRequest
	isJSON := c.ContentType() == binding.MIMEJSON
	var err error
	if isJSON {
		err = c.ShouldBindJSON(&req)
	} else {
		err = c.ShouldBindWith(&req, binding.Form)
	}
	if err != nil {
		respondError(c, apperrors.NewValidationError("invalid capture request"))
		return
	}

	lead, err := h.service.CaptureLead(c.Request.Context(), funnel.Capture{
		Email:      req.Email,
		FunnelID:   req.MagnetID,
		Terms:      req.Terms,
		Newsletter: req.Newsletter || req.NewsOptIn,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	redirect := h.service.ThankYouURL(lead.FunnelID)
	if !isJSON {
		c.Redirect(http.StatusSeeOther, redirect)
		return
	}
	respond(c, http.StatusCreated, gin.H{
		"status":   "success",
		"lead_id":  lead.ID,
		"redirect": redirect,
	})
}

func (h *Handler) Unsubscribe(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	cancelled, err := h.service.Unsubscribe(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"lead_id": id, "cancelled_tasks": cancelled})
}

func (h *Handler) PreviewLanding(c *gin.Context) {
	h.preview(c, func(r *models.RenderedAsset) string { return r.LandingPage })
}

func (h *Handler) PreviewThankYou(c *gin.Context) {
	h.preview(c, func(r *models.RenderedAsset) string { return r.ThankYou })
}

func (h *Handler) preview(c *gin.Context, page func(*models.RenderedAsset) string) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	rendered, err := h.service.Preview(c.Request.Context(), id)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			_ = c.Error(err)
			c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte("<h1>Generating...</h1>"))
			return
		}
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page(rendered)))
}

func (h *Handler) ListFunnels(c *gin.Context) {
	rows, err := h.service.List(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, rows)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, apperrors.NewValidationError("id must be a positive integer"))
		return 0, false
	}
	return id, true
}
