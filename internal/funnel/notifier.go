package funnel

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"genieops-engine/internal/common/logger"
)

const (
	EventFunnelReady  = "funnel.ready"
	EventLeadCaptured = "lead.captured"
)

type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Event is the message body published for funnel lifecycle changes.
type Event struct {
	Type          string    `json:"type"`
	FunnelID      int64     `json:"funnel_id"`
	LeadID        int64     `json:"lead_id,omitempty"`
	Title         string    `json:"title,omitempty"`
	PreviewURL    string    `json:"preview_url,omitempty"`
	LinkedInPost  string    `json:"linkedin_post,omitempty"`
	LinkedInImage string    `json:"linkedin_image_url,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Notifier publishes events to an SNS topic. A nil Notifier or an empty topic publishes
// nothing. Publishing failures are logged and never returned.
type Notifier struct {
	client   SNSAPI
	topicARN string
	logger   logger.Logger
}

func NewNotifier(client SNSAPI, topicARN string, log logger.Logger) *Notifier {
	return &Notifier{client: client, topicARN: topicARN, logger: log}
}

func (n *Notifier) Publish(ctx context.Context, event Event) {
	if n == nil || n.client == nil || n.topicARN == "" {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("encode event", map[string]interface{}{"type": event.Type, "error": err.Error()})
		return
	}

	out, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(event.Type)},
		},
	})
	if err != nil {
		n.logger.Warn("event not published", map[string]interface{}{
			"type":     event.Type,
			"funnelId": event.FunnelID,
			"error":    err.Error(),
		})
		return
	}

	n.logger.Info("event published", map[string]interface{}{
		"type":      event.Type,
		"funnelId":  event.FunnelID,
		"messageId": aws.ToString(out.MessageId),
	})
}
