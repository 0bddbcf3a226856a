package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateHexToken(t *testing.T) {
	token, err := GenerateHexToken(TokenSize192)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(token, "0x"))

	// 24 bytes -> 48 hex chars plus prefix
	require.Len(t, token, 2+48)
	require.Equal(t, strings.ToLower(token), token)

	other, err := GenerateHexToken(TokenSize192)
	require.NoError(t, err)
	require.NotEqual(t, token, other, "tokens should be unique")
}

func TestGenerateToken_InvalidSize(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"zero size", 0},
		{"negative size", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateHexToken(tt.size)
			require.Error(t, err)
			require.Empty(t, token)

			token, err = GenerateToken(tt.size)
			require.Error(t, err)
			require.Empty(t, token)
		})
	}
}

func TestMustGenerateHexToken_Panics(t *testing.T) {
	require.Panics(t, func() {
		MustGenerateHexToken(0)
	})
}

func TestFingerprintToken(t *testing.T) {
	fp1a := FingerprintToken("code-1")
	fp1b := FingerprintToken("code-1")
	fp2 := FingerprintToken("code-2")

	require.Equal(t, fp1a, fp1b, "fingerprint should be deterministic")
	require.NotEqual(t, fp1a, fp2)
	require.Len(t, fp1a, 43, "SHA-256 base64url should be 43 chars")
}

func TestGenerateHexToken_EntropyQuality(t *testing.T) {
	const count = 100
	seen := make(map[string]bool, count)

	for range count {
		token, err := GenerateHexToken(TokenSize192)
		require.NoError(t, err)
		require.NotContains(t, seen, token, "duplicate token generated")
		seen[token] = true
	}
}
