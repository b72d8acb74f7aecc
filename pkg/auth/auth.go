// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package auth defines the authentication seam for the plan service.
//
// The service itself never inspects credentials. Handlers extract the
// bearer token and hand it to an AuthProvider; deployments choose the
// provider at startup:
//
//   - NopProvider for local development (every request is a local admin)
//   - StaticTokenProvider for single-tenant deployments with a shared key
//   - IntrospectionProvider for an external OAuth2/OIDC identity provider
package auth

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when authentication fails. Providers wrap it
// with context so errors.Is(err, ErrUnauthorized) holds at the middleware.
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo is the identity attached to a request after successful
// authentication. UserID is always populated; the rest is provider-specific.
type AuthInfo struct {
	// UserID uniquely identifies the caller. Never empty on success.
	UserID string

	// Email is the caller's email address, when the provider knows it.
	Email string

	// Roles lists role memberships for authorization decisions.
	Roles []string

	// Metadata carries provider-specific claims (issuer, client id,
	// token expiry) without widening this struct.
	Metadata map[string]string
}

// HasRole reports whether the identity carries the given role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates bearer tokens and returns the caller's identity.
//
// Implementations must be safe for concurrent use. A failed validation
// returns an error wrapping ErrUnauthorized; any other error is treated
// as an infrastructure failure, not a rejection.
type AuthProvider interface {
	// Validate checks the token and returns the identity it proves.
	// The token is the raw credential without the "Bearer " prefix.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopProvider accepts every token, including the empty one, and reports a
// local admin identity. It exists so development setups work without any
// identity infrastructure. Never deploy it on a reachable interface.
type NopProvider struct{}

// Validate always succeeds with a fixed local identity.
func (p *NopProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-user",
		Roles:  []string{"admin"},
	}, nil
}

var _ AuthProvider = (*NopProvider)(nil)
