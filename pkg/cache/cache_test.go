package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledServiceIsNoop(t *testing.T) {
	ctx := context.Background()
	s, err := Connect(ctx, "", 0)
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	s.SetJSON(ctx, KeyLatest, map[string]string{"a": "b"})
	var out map[string]string
	assert.False(t, s.GetJSON(ctx, KeyLatest, &out))
	s.InvalidateBulletin(ctx, "2025-01-31")
	assert.NoError(t, s.Close())

	var nilService *Service
	assert.False(t, nilService.Enabled())
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "http://not-redis", 0)
	assert.ErrorContains(t, err, "REDIS_URL")
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "bulletins:date:2025-01-31", BulletinKey("2025-01-31"))
	assert.Equal(t, "bulletins:list:2:20", ListKey(2, 20))
}
