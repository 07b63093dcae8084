package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("longenough1")
	require.NoError(t, err)
	require.NotEqual(t, "longenough1", hash)

	require.True(t, VerifyPassword(hash, "longenough1"))
	require.False(t, VerifyPassword(hash, "longenough2"))
}

func TestGenerateTokenIsRandom(t *testing.T) {
	a, err := GenerateToken(32)
	require.NoError(t, err)
	b, err := GenerateToken(32)
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.Len(t, a, 43)
}

func TestHashTokenIsStable(t *testing.T) {
	require.Equal(t, HashToken("flow-token"), HashToken("flow-token"))
	require.NotEqual(t, HashToken("flow-token"), HashToken("flow-token2"))
	require.Len(t, HashToken("x"), 64)

	require.True(t, EqualHashes(HashToken("123456"), HashToken("123456")))
	require.False(t, EqualHashes(HashToken("123456"), HashToken("654321")))
}
