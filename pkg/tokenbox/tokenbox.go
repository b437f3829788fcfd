// Package tokenbox seals access tokens at rest with NaCl secretbox.
//
// A sealed token has the wire form
//
//	GHS[1:<base64 nonce>:<base64 box>]
//
// where the schema version is 1 and the box is secretbox.Seal output.
package tokenbox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	KeySize   = 32
	nonceSize = 24
)

var (
	ErrNotSealed = errors.New("token is not sealed")
	ErrOpen      = errors.New("unable to open sealed token")
	ErrKey       = errors.New("token key must be 32 bytes, base64 encoded")
)

var sealedPattern = regexp.MustCompile(`^GHS\[1:([A-Za-z0-9+/=]{32}):([A-Za-z0-9+/=]+)\]$`)

// Sealer seals and opens access tokens.
type Sealer interface {
	Seal(token string) (string, error)
	Open(sealed string) (string, error)
}

// Box is a Sealer keyed with a 32-byte secret.
type Box struct {
	key [KeySize]byte
}

// New creates a Box from a base64 encoded 32-byte key.
func New(encodedKey string) (*Box, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encodedKey))
	if err != nil || len(raw) != KeySize {
		return nil, ErrKey
	}
	b := &Box{}
	copy(b.key[:], raw)
	return b, nil
}

// GenerateKey returns a fresh base64 encoded key.
func GenerateKey() (string, error) {
	var key [KeySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}

func (b *Box) Seal(token string) (string, error) {
	nonce, err := genNonce()
	if err != nil {
		return "", err
	}
	box := secretbox.Seal(nil, []byte(token), &nonce, &b.key)
	return fmt.Sprintf("GHS[1:%s:%s]",
		base64.StdEncoding.EncodeToString(nonce[:]),
		base64.StdEncoding.EncodeToString(box),
	), nil
}

func (b *Box) Open(sealed string) (string, error) {
	m := sealedPattern.FindStringSubmatch(sealed)
	if m == nil {
		return "", ErrNotSealed
	}
	rawNonce, err := base64.StdEncoding.DecodeString(m[1])
	if err != nil || len(rawNonce) != nonceSize {
		return "", ErrOpen
	}
	box, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return "", ErrOpen
	}
	var nonce [nonceSize]byte
	copy(nonce[:], rawNonce)
	plain, ok := secretbox.Open(nil, box, &nonce, &b.key)
	if !ok {
		return "", ErrOpen
	}
	return string(plain), nil
}

// IsSealed reports whether s has the sealed wire form.
func IsSealed(s string) bool {
	return sealedPattern.MatchString(s)
}

// Plain stores tokens as given. Used when no key is configured.
type Plain struct{}

func (Plain) Seal(token string) (string, error) { return token, nil }

func (Plain) Open(sealed string) (string, error) {
	if IsSealed(sealed) {
		return "", fmt.Errorf("%w: no token key configured", ErrOpen)
	}
	return sealed, nil
}

func genNonce() (nonce [nonceSize]byte, err error) {
	_, err = io.ReadFull(rand.Reader, nonce[:])
	return
}

var (
	_ Sealer = (*Box)(nil)
	_ Sealer = Plain{}
)
