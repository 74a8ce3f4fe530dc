package models

import "time"

// Nurture stages. Stage 0 means only the welcome email has gone out. The follow-up is
// emails[1]; a lead that received it is moved straight to NurtureStageComplete.
const (
	NurtureStageWelcome  = 0
	NurtureStageFollowUp = 1
	NurtureStageComplete = 2
)

type Lead struct {
	ID                  int64      `json:"id"`
	Email               string     `json:"email"`
	FunnelID            int64      `json:"magnet_id"`
	AgreedToTerms       bool       `json:"agreed_to_terms"`
	OptedIntoNewsletter bool       `json:"subscribed_to_newsletter"`
	NurtureStage        int        `json:"nurture_stage"`
	LastEmailSentAt     *time.Time `json:"last_email_sent_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// NurtureState is the lifecycle of a durable follow-up task.
type NurtureState string

const (
	NurtureScheduled NurtureState = "scheduled"
	NurtureSent      NurtureState = "sent"
	NurtureFailed    NurtureState = "failed"
	NurtureCancelled NurtureState = "cancelled"
)

// NurtureTask is one scheduled follow-up email for a lead.
type NurtureTask struct {
	ID        string       `json:"id"`
	LeadID    int64        `json:"lead_id"`
	FunnelID  int64        `json:"funnel_id"`
	State     NurtureState `json:"state"`
	Attempts  int          `json:"attempts"`
	DueAt     time.Time    `json:"due_at"`
	LastError string       `json:"last_error,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}
