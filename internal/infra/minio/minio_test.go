package minio

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_requires_bucket(t *testing.T) {
	_, err := NewClient(Config{Endpoint: "127.0.0.1:9000"})
	assert.Error(t, err)
}

func TestPresignedURL_is_signed_locally(t *testing.T) {
	c, err := NewClient(Config{
		Endpoint:        "127.0.0.1:9000",
		AccessKeyID:     "access",
		SecretAccessKey: "secret-secret",
		Bucket:          "uploads",
		Region:          "us-east-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "uploads", c.Bucket())

	u, err := c.PresignedURL(context.Background(), "avatars/a.png", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "http://127.0.0.1:9000/uploads/avatars/a.png?"))
	assert.Contains(t, u, "X-Amz-Expires=60")
}
