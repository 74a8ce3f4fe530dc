package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"

	"genieops-engine/internal/common/errors"
)

// loadConfig resolves credentials for service. The region comes from
// integrations.aws.region and has no fallback.
func loadConfig(ctx context.Context, service, region string) (awssdk.Config, error) {
	if region == "" {
		return awssdk.Config{}, errors.NewValidationError(service + ": integrations.aws.region is required")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return awssdk.Config{}, errors.NewTransportError(service, fmt.Errorf("load aws config: %w", err))
	}
	return cfg, nil
}
