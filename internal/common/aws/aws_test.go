package aws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genieops-engine/internal/common/errors"
)

func TestClients_RequireRegion(t *testing.T) {
	_, err := NewSESClient(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
	assert.Contains(t, err.Error(), "ses")

	_, err = NewSNSClient(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
	assert.Contains(t, err.Error(), "sns")
}

func TestClients_BuildForRegion(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	ses, err := NewSESClient(context.Background(), "eu-west-1")
	require.NoError(t, err)
	assert.NotNil(t, ses.client)

	sns, err := NewSNSClient(context.Background(), "eu-west-1")
	require.NoError(t, err)
	assert.NotNil(t, sns.client)
}
