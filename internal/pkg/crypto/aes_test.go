package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptor_RoundTrip(t *testing.T) {
	e, err := NewEncryptorFromSecret("correct horse battery staple")
	require.NoError(t, err)

	for _, plaintext := range []string{"hunter2", "", "пароль с пробелами"} {
		sealed, err := e.EncryptString(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, sealed)

		opened, err := e.DecryptString(sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}
}

func TestEncryptor_NonceIsRandom(t *testing.T) {
	e, err := NewEncryptorFromSecret("s")
	require.NoError(t, err)

	a, err := e.EncryptString("same")
	require.NoError(t, err)
	b, err := e.EncryptString("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestEncryptor_WrongKey(t *testing.T) {
	e1, err := NewEncryptorFromSecret("one")
	require.NoError(t, err)
	e2, err := NewEncryptorFromSecret("two")
	require.NoError(t, err)

	sealed, err := e1.EncryptString("secret")
	require.NoError(t, err)

	_, err = e2.DecryptString(sealed)
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestEncryptor_Malformed(t *testing.T) {
	e, err := NewEncryptorFromSecret("s")
	require.NoError(t, err)

	_, err = e.DecryptString("not base64!")
	require.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = e.DecryptString("c2hvcnQ=")
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestDeriveKey(t *testing.T) {
	k1, err := DeriveKey("secret")
	require.NoError(t, err)
	k2, err := DeriveKey("secret")
	require.NoError(t, err)

	assert.Len(t, k1, KeySize)
	assert.Equal(t, k1, k2)

	_, err = DeriveKey("")
	require.ErrorIs(t, err, ErrEmptySecret)

	_, err = NewEncryptor([]byte("short"))
	require.ErrorIs(t, err, ErrInvalidKeySize)
}
