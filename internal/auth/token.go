// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package auth provides access tokens for remote calls. Token refresh is an
// external collaborator's responsibility; this package only hands out what
// it was configured with and flags stale tokens so degradation is visible
// in the logs rather than silent.
package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenProvider yields the bearer access token for authenticated remote
// calls. An empty token means anonymous operation, which the remote store
// permits for apikey-level access.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Anonymous is a TokenProvider that always operates without a bearer token.
type Anonymous struct{}

func (Anonymous) AccessToken(context.Context) (string, error) { return "", nil }

// StaticProvider serves a fixed configured JWT. The token's exp claim is
// inspected (without signature verification, the remote verifies) so an
// expired token is logged once instead of failing silently on every call.
type StaticProvider struct {
	token     string
	expiresAt time.Time
	logger    *slog.Logger
	warned    bool
}

// NewStaticProvider creates a provider for a configured access token. A
// token that does not parse as a JWT is served as-is with no expiry check.
func NewStaticProvider(token string, logger *slog.Logger) *StaticProvider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &StaticProvider{token: token, logger: logger}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			p.expiresAt = exp.Time
		}
	}
	return p
}

// ExpiresAt returns the token's expiry, or the zero time when unknown.
func (p *StaticProvider) ExpiresAt() time.Time { return p.expiresAt }

// AccessToken implements TokenProvider.
func (p *StaticProvider) AccessToken(context.Context) (string, error) {
	if !p.expiresAt.IsZero() && time.Now().After(p.expiresAt) && !p.warned {
		p.warned = true
		p.logger.Warn("configured access token is expired; authenticated calls will degrade",
			"expired_at", p.expiresAt)
	}
	return p.token, nil
}
