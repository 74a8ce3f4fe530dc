// Package api exposes the funnel engine over HTTP.
package api

import (
	"github.com/gin-gonic/gin"

	"genieops-engine/internal/common/logger"
)

// NewRouter registers the funnel routes. extra handlers such as health checks are
// mounted by the caller.
func NewRouter(service FunnelService, log logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(log))

	h := NewHandler(service)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/chat-to-funnel", h.ChatToFunnel)
		v1.POST("/generate-idea", h.GenerateIdea)
		v1.POST("/generate-full-asset/:id", h.GenerateFullAsset)
		v1.POST("/capture-lead", h.CaptureLead)
		v1.POST("/leads/:id/unsubscribe", h.Unsubscribe)
		v1.GET("/lead-magnets", h.ListFunnels)
		v1.GET("/lead-magnets-all", h.ListFunnels)
		v1.GET("/preview/:id", h.PreviewLanding)
		v1.GET("/preview-thank-you/:id", h.PreviewThankYou)
	}

	r.GET("/preview/:id", h.PreviewLanding)
	r.GET("/preview-thank-you/:id", h.PreviewThankYou)

	return r
}
