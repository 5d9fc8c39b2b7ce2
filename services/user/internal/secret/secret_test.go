package secret

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePassword(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		p, err := GeneratePassword()
		require.NoError(t, err)
		assert.Len(t, p, PasswordLength)
		assert.True(t, strings.ContainsAny(p, lowerChars), p)
		assert.True(t, strings.ContainsAny(p, upperChars), p)
		assert.True(t, strings.ContainsAny(p, digitChars), p)
		assert.True(t, strings.ContainsAny(p, symbolChars), p)
		assert.False(t, seen[p], "duplicate password generated")
		seen[p] = true
	}
}

func testSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := NewSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return s
}

func TestSealer_RoundTrip(t *testing.T) {
	s := testSealer(t)

	sealed, err := s.Seal("Twitter-1", "p@ssW0rd")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "p@ssW0rd")

	again, err := s.Seal("Twitter-1", "p@ssW0rd")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")

	plain, err := s.Open("Twitter-1", sealed)
	require.NoError(t, err)
	assert.Equal(t, "p@ssW0rd", plain)
}

func TestSealer_BoundToUser(t *testing.T) {
	s := testSealer(t)
	sealed, err := s.Seal("Twitter-1", "secret")
	require.NoError(t, err)

	_, err = s.Open("Twitter-2", sealed)
	assert.Error(t, err)
}

func TestSealer_Malformed(t *testing.T) {
	s := testSealer(t)

	_, err := s.Open("u", "not base64!!")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = s.Open("u", "c2hvcnQ=")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNewSealer_KeyLength(t *testing.T) {
	_, err := NewSealer([]byte("short"))
	assert.Error(t, err)

	_, err = NewSealerFromHex("zz")
	assert.Error(t, err)

	_, err = NewSealerFromHex(strings.Repeat("ab", 32))
	assert.NoError(t, err)
}
