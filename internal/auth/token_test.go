// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "device-1",
		"exp": expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestAnonymousReturnsEmptyToken(t *testing.T) {
	token, err := Anonymous{}.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestStaticProviderServesConfiguredToken(t *testing.T) {
	raw := signedToken(t, time.Now().Add(time.Hour))
	p := NewStaticProvider(raw, nil)

	got, err := p.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestStaticProviderExtractsExpiry(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	p := NewStaticProvider(signedToken(t, exp), nil)
	assert.True(t, p.ExpiresAt().Equal(exp))
}

func TestStaticProviderServesExpiredToken(t *testing.T) {
	// An expired token is still served; the remote rejects it, and the
	// provider's job is only to make the staleness visible.
	raw := signedToken(t, time.Now().Add(-time.Hour))
	p := NewStaticProvider(raw, nil)

	got, err := p.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestStaticProviderOpaqueTokenHasNoExpiry(t *testing.T) {
	p := NewStaticProvider("not-a-jwt", nil)
	assert.True(t, p.ExpiresAt().IsZero())

	got, err := p.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "not-a-jwt", got)
}
