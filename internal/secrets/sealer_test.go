package secrets

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSealer(t *testing.T) *Sealer {
	key, err := GenerateKey()
	require.NoError(t, err)
	s, err := NewSealerFromHex(key)
	require.NoError(t, err)
	return s
}

func TestGenerateRoundTrip(t *testing.T) {
	s := newTestSealer(t)

	plain, enc, err := s.Generate()
	require.NoError(t, err)
	assert.NotEmpty(t, plain)
	assert.NotEqual(t, plain, enc)

	revealed, err := s.Reveal(enc)
	require.NoError(t, err)
	assert.Equal(t, plain, revealed)
}

func TestGenerateIsUnique(t *testing.T) {
	s := newTestSealer(t)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		plain, enc, err := s.Generate()
		require.NoError(t, err)
		assert.False(t, seen[plain])
		assert.False(t, seen[enc])
		seen[plain] = true
		seen[enc] = true
	}
}

func TestSealSamePlaintextTwice(t *testing.T) {
	s := newTestSealer(t)
	a, err := s.Seal("same")
	require.NoError(t, err)
	b, err := s.Seal("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRevealWithWrongKey(t *testing.T) {
	s := newTestSealer(t)
	other := newTestSealer(t)

	_, enc, err := s.Generate()
	require.NoError(t, err)

	_, err = other.Reveal(enc)
	assert.ErrorIs(t, err, ErrMalformedSecret)
}

func TestRevealGarbage(t *testing.T) {
	s := newTestSealer(t)
	for _, in := range []string{"", "not base64!", "AAAA"} {
		_, err := s.Reveal(in)
		assert.ErrorIs(t, err, ErrMalformedSecret, in)
	}
}

func TestNewSealerKeyLength(t *testing.T) {
	_, err := NewSealer(make([]byte, 16))
	assert.Error(t, err)

	_, err = NewSealerFromHex("zz")
	assert.Error(t, err)

	key, err := GenerateKey()
	require.NoError(t, err)
	raw, err := hex.DecodeString(key)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}
