package signer_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/signupkit/pkg/signer"
)

const testSecret = "test-secret-key-for-signing-0123456789"

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("valid secret", func(t *testing.T) {
		t.Parallel()
		s, err := signer.New(testSecret)
		require.NoError(t, err)
		require.NotNil(t, s)
	})

	t.Run("empty secret", func(t *testing.T) {
		t.Parallel()
		_, err := signer.New("")
		assert.ErrorIs(t, err, signer.ErrNoSecret)
	})

	t.Run("short secret", func(t *testing.T) {
		t.Parallel()
		_, err := signer.New("too-short")
		assert.ErrorIs(t, err, signer.ErrSecretTooShort)
	})
}

func TestSignVerify(t *testing.T) {
	t.Parallel()

	s, err := signer.New(testSecret)
	require.NoError(t, err)

	payload := []byte("value|1700000000")
	sig := s.Sign(payload)
	require.NotEmpty(t, sig)

	assert.True(t, s.Verify(payload, sig))
	assert.False(t, s.Verify([]byte("tampered|1700000000"), sig))
	assert.False(t, s.Verify(payload, "not-a-signature"))
	assert.False(t, s.Verify(payload, ""))
}

func TestVerifyDifferentSecret(t *testing.T) {
	t.Parallel()

	s1, err := signer.New(testSecret)
	require.NoError(t, err)
	s2, err := signer.New(strings.Repeat("x", 32))
	require.NoError(t, err)

	payload := []byte("payload")
	sig := s1.Sign(payload)
	assert.False(t, s2.Verify(payload, sig))
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	type payload struct {
		Email string `json:"email"`
		Exp   int64  `json:"exp"`
	}

	s, err := signer.New(testSecret)
	require.NoError(t, err)

	tok, err := signer.Encode(s, payload{Email: "a@b.com", Exp: 1700000000})
	require.NoError(t, err)
	require.Contains(t, tok, ".")

	decoded, err := signer.Decode[payload](s, tok)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", decoded.Email)
	assert.Equal(t, int64(1700000000), decoded.Exp)
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	s, err := signer.New(testSecret)
	require.NoError(t, err)

	t.Run("malformed token", func(t *testing.T) {
		t.Parallel()
		_, err := signer.Decode[map[string]any](s, "no-separator")
		assert.ErrorIs(t, err, signer.ErrMalformedToken)
	})

	t.Run("invalid base64", func(t *testing.T) {
		t.Parallel()
		_, err := signer.Decode[map[string]any](s, "!!!.???")
		assert.ErrorIs(t, err, signer.ErrMalformedToken)
	})

	t.Run("tampered payload", func(t *testing.T) {
		t.Parallel()
		tok, err := signer.Encode(s, map[string]string{"k": "v"})
		require.NoError(t, err)

		parts := strings.SplitN(tok, ".", 2)
		tampered := parts[0] + "x." + parts[1]
		_, err = signer.Decode[map[string]any](s, tampered)
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		other, err := signer.New(strings.Repeat("y", 40))
		require.NoError(t, err)

		tok, err := signer.Encode(s, map[string]string{"k": "v"})
		require.NoError(t, err)

		_, err = signer.Decode[map[string]any](other, tok)
		assert.ErrorIs(t, err, signer.ErrSignatureInvalid)
	})
}
