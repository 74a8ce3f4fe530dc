package schedulenurture

import (
	"context"
	"time"

	"genieops-engine/internal/models"
)

type LeadStore interface {
	GetLead(ctx context.Context, id int64) (*models.Lead, error)
	// AdvanceNurtureStage sets the stage only if the lead is still below it and reports
	// whether a row changed.
	AdvanceNurtureStage(ctx context.Context, leadID int64, stage int, sentAt time.Time) (bool, error)
}

type FunnelStore interface {
	GetFunnel(ctx context.Context, id int64) (*models.Funnel, error)
}

type Sender interface {
	Send(ctx context.Context, to, subject, body string) bool
}

// Input is the send-nurture-email job payload.
type Input struct {
	LeadID   int64 `json:"leadId"`
	FunnelID int64 `json:"funnelId"`
}

type Output struct {
	Sent   bool   `json:"sent"`
	Stage  int    `json:"stage"`
	Reason string `json:"reason,omitempty"`
}
