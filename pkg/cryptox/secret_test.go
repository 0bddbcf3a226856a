package cryptox

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{"simple secret", "secret123"},
		{"symbols", "P@ssw0rd!#$%^&*()"},
		{"long secret", strings.Repeat("a", 100)},
		{"empty secret", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashSecret(tt.secret)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

			parts := strings.Split(hash, "$")
			require.Len(t, parts, 6)
			require.Equal(t, "m=19456,t=2,p=1", parts[3])

			require.NoError(t, VerifySecret(tt.secret, hash))
		})
	}
}

func TestHashSecret_UniqueSalts(t *testing.T) {
	hash1, err := HashSecret("same")
	require.NoError(t, err)
	hash2, err := HashSecret("same")
	require.NoError(t, err)

	require.NotEqual(t, hash1, hash2, "hashes should differ due to unique salts")
	require.NoError(t, VerifySecret("same", hash1))
	require.NoError(t, VerifySecret("same", hash2))
}

func TestVerifySecret_Mismatch(t *testing.T) {
	hash, err := HashSecret("correct-secret")
	require.NoError(t, err)

	for _, wrong := range []string{"wrong-secret", "Correct-Secret", "correct-secret ", ""} {
		require.ErrorIs(t, VerifySecret(wrong, hash), ErrSecretMismatch)
	}
}

func TestVerifySecret_InvalidHashFormat(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty hash", ""},
		{"wrong algorithm", "$bcrypt$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"missing parts", "$argon2id$v=19$m=19456"},
		{"malformed parameters", "$argon2id$v=19$invalid$c2FsdA$aGFzaA"},
		{"invalid base64 salt", "$argon2id$v=19$m=19456,t=2,p=1$!!!invalid!!!$aGFzaA"},
		{"invalid base64 hash", "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$!!!invalid!!!"},
		{"wrong version", "$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySecret("secret", tt.hash)
			require.Error(t, err)
			require.NotErrorIs(t, err, ErrSecretMismatch)
		})
	}
}

func TestSecret_Pepper(t *testing.T) {
	t.Cleanup(func() { SetPepper("") })

	SetPepper("pepper-one")
	hash, err := HashSecret("secret")
	require.NoError(t, err)
	require.NoError(t, VerifySecret("secret", hash))

	SetPepper("pepper-two")
	require.ErrorIs(t, VerifySecret("secret", hash), ErrSecretMismatch)
}

func TestLoadPepperFile(t *testing.T) {
	t.Cleanup(func() { SetPepper("") })

	require.NoError(t, LoadPepperFile(""))
	require.Empty(t, GetPepper())

	require.NoError(t, LoadPepperFile(t.TempDir()+"/missing"))
	require.Empty(t, GetPepper())

	path := t.TempDir() + "/pepper"
	require.NoError(t, os.WriteFile(path, []byte("  spicy\n"), 0o600))
	require.NoError(t, LoadPepperFile(path))
	require.Equal(t, "spicy", GetPepper())
}

func TestGenerateSecret(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)
	require.Len(t, secret, 43)

	hash, err := HashSecret(secret)
	require.NoError(t, err)
	require.NoError(t, VerifySecret(secret, hash))
}
