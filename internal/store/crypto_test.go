package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCredentialSealRoundTrip(t *testing.T) {
	var key [32]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")

	sealed, err := SealCredentials(key, Credentials{Email: "loja@example.com", Password: "s3cret"})
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "s3cret")

	creds, err := OpenCredentials(key, sealed)
	require.NoError(t, err)
	require.Equal(t, "loja@example.com", creds.Email)
	require.Equal(t, "s3cret", creds.Password)
}

func TestCredentialUnsealWrongKey(t *testing.T) {
	var key, other [32]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")
	copy(other[:], "fedcba9876543210fedcba9876543210")

	sealed, err := SealCredentials(key, Credentials{Email: "a", Password: "b"})
	require.NoError(t, err)

	_, err = OpenCredentials(other, sealed)
	require.Error(t, err)
}

func TestCredentialUnsealTruncated(t *testing.T) {
	var key [32]byte
	_, err := OpenCredentials(key, []byte("short"))
	require.Error(t, err)
}
