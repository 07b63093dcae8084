package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrefixedKey(t *testing.T) {
	require.Equal(t, "sustainabilityhub:auth:otp", prefixedKey("auth::otp"))
	require.Equal(t, "sustainabilityhub:rl", prefixedKey(":rl"))
	require.Equal(t, "sustainabilityhub:rl", prefixedKey("sustainabilityhub:rl"))
	require.Equal(t, "", normalizeKey(""))
}

func TestNewRedisStoreRequiresAddress(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisConfig{Address: "  "})
	require.ErrorContains(t, err, "address is required")
}
