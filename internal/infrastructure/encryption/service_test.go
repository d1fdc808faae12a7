package encryption_test

import (
	"testing"

	"shopify-auth-gateway/internal/infrastructure/encryption"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	service, err := encryption.NewService("test-encryption-key")
	require.NoError(t, err)

	ciphertext, err := service.Encrypt("shpat_secret_token_value")
	require.NoError(t, err)
	require.NotEqual(t, "shpat_secret_token_value", ciphertext)

	plaintext, err := service.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, "shpat_secret_token_value", plaintext)
}

func TestEncryptProducesUniqueCiphertexts(t *testing.T) {
	service, err := encryption.NewService("test-encryption-key")
	require.NoError(t, err)

	first, err := service.Encrypt("same-value")
	require.NoError(t, err)
	second, err := service.Encrypt("same-value")
	require.NoError(t, err)

	require.NotEqual(t, first, second, "fresh nonce per encryption")
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	service, err := encryption.NewService("key-one")
	require.NoError(t, err)
	other, err := encryption.NewService("key-two")
	require.NoError(t, err)

	ciphertext, err := service.Encrypt("secret")
	require.NoError(t, err)

	_, err = other.Decrypt(ciphertext)
	require.Error(t, err)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	service, err := encryption.NewService("test-encryption-key")
	require.NoError(t, err)

	_, err = service.Decrypt("not-base64!!!")
	require.Error(t, err)

	_, err = service.Decrypt("dG9vc2hvcnQ=")
	require.Error(t, err)
}
