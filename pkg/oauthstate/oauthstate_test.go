package oauthstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	s, err := NewSigner("secret", time.Minute)
	require.NoError(t, err)

	state, err := s.Issue("/integrations")
	require.NoError(t, err)

	claims, err := s.Verify(state)
	require.NoError(t, err)
	assert.Equal(t, "/integrations", claims.ReturnTo)
	assert.NotEmpty(t, claims.ID)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	a, _ := NewSigner("secret-a", time.Minute)
	b, _ := NewSigner("secret-b", time.Minute)

	state, err := a.Issue("")
	require.NoError(t, err)

	_, err = b.Verify(state)
	assert.ErrorIs(t, err, ErrStateInvalid)
}

func TestVerifyRejectsExpired(t *testing.T) {
	s, _ := NewSigner("secret", time.Minute)
	issued := time.Now()
	s.now = func() time.Time { return issued }

	state, err := s.Issue("")
	require.NoError(t, err)

	s.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = s.Verify(state)
	assert.ErrorIs(t, err, ErrStateInvalid)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	s, _ := NewSigner("secret", 0)
	_, err := s.Verify("")
	assert.ErrorIs(t, err, ErrStateInvalid)
	_, err = s.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrStateInvalid)
}

func TestNewSignerRequiresSecret(t *testing.T) {
	_, err := NewSigner("", time.Minute)
	assert.Error(t, err)
}
