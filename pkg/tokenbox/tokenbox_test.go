package tokenbox

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", KeySize)))
}

func TestRoundtrip(t *testing.T) {
	box, err := New(testKey())
	assert.NoError(t, err)

	t.Run("Seal", func(t *testing.T) {
		sealed, err := box.Seal("gho_abc123")
		assert.NoError(t, err)

		t.Run("should produce the wire form", func(t *testing.T) {
			assert.True(t, IsSealed(sealed))
			assert.NotContains(t, sealed, "gho_abc123")
		})

		t.Run("should open with the same key", func(t *testing.T) {
			plain, err := box.Open(sealed)
			assert.NoError(t, err)
			assert.Equal(t, "gho_abc123", plain)
		})

		t.Run("should not open with another key", func(t *testing.T) {
			other, err := New(base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", KeySize))))
			assert.NoError(t, err)
			_, err = other.Open(sealed)
			assert.IsError(t, err, ErrOpen)
		})
	})

	t.Run("Seal twice", func(t *testing.T) {
		a, _ := box.Seal("same")
		b, _ := box.Seal("same")
		assert.NotEqual(t, a, b)
	})
}

func TestOpenRejectsUnsealed(t *testing.T) {
	box, err := New(testKey())
	assert.NoError(t, err)

	_, err = box.Open("gho_plaintext")
	assert.IsError(t, err, ErrNotSealed)
}

func TestNewRejectsBadKeys(t *testing.T) {
	_, err := New("not base64!")
	assert.IsError(t, err, ErrKey)

	_, err = New(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.IsError(t, err, ErrKey)
}

func TestGenerateKey(t *testing.T) {
	k1, err := GenerateKey()
	assert.NoError(t, err)
	k2, err := GenerateKey()
	assert.NoError(t, err)
	assert.NotEqual(t, k1, k2)

	_, err = New(k1)
	assert.NoError(t, err)
}

func TestPlain(t *testing.T) {
	var p Plain
	sealed, err := p.Seal("gho_abc")
	assert.NoError(t, err)
	assert.Equal(t, "gho_abc", sealed)

	plain, err := p.Open(sealed)
	assert.NoError(t, err)
	assert.Equal(t, "gho_abc", plain)

	box, _ := New(testKey())
	boxed, _ := box.Seal("gho_abc")
	_, err = p.Open(boxed)
	assert.IsError(t, err, ErrOpen)
}
