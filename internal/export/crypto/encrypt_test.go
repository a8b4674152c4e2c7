package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	data := []byte("notes and categories")

	sealed, err := Seal(data, "correct horse")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.False(t, bytes.Contains(sealed, data))
	assert.False(t, bytes.Contains(sealed, []byte("correct horse")))

	plain, err := Open(sealed, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, data, plain)
}

func TestSeal_randomized(t *testing.T) {
	a, err := Seal([]byte("same"), "password1")
	require.NoError(t, err)
	b, err := Seal([]byte("same"), "password1")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSeal_shortPassword(t *testing.T) {
	_, err := Seal([]byte("x"), "short")
	assert.Error(t, err)
}

func TestOpen_wrongPassword(t *testing.T) {
	sealed, err := Seal([]byte("secret"), "password1")
	require.NoError(t, err)

	_, err = Open(sealed, "password2")
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestOpen_tampered(t *testing.T) {
	sealed, err := Seal([]byte("secret"), "password1")
	require.NoError(t, err)

	body := append([]byte(nil), sealed...)
	body[len(body)-1] ^= 0xff
	_, err = Open(body, "password1")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	// The header is authenticated too.
	header := append([]byte(nil), sealed...)
	header[len(Magic)+3] ^= 0xff // inside the algorithm name
	_, err = Open(header, "password1")
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

func TestOpen_invalidArchive(t *testing.T) {
	tests := map[string][]byte{
		"empty":     nil,
		"magic":     []byte("NOTANARCHIVE"),
		"truncated": []byte(Magic + "\x01\x0bAES"),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Open(data, "password1")
			assert.ErrorIs(t, err, ErrInvalidArchive)
		})
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	in := Header{Version: 1, Algorithm: "AES-256-GCM", Nonce: []byte{1, 2, 3}, Salt: []byte{4, 5}}
	b, err := marshalHeader(in)
	require.NoError(t, err)

	out, n, err := parseHeader(append(b, 0xaa, 0xbb))
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, len(b), n)
}
