// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// IntrospectionProvider validates tokens against an OAuth2 token
// introspection endpoint (RFC 7662). The identity provider decides whether
// the token is active; this provider maps the response onto AuthInfo.
//
// The provider authenticates to the endpoint with HTTP basic auth using
// the registered client credentials.
type IntrospectionProvider struct {
	// Endpoint is the full introspection URL, for example
	// "https://idp.example.com/oauth2/v1/introspect".
	Endpoint string

	// ClientID and ClientSecret authenticate this service to the IdP.
	ClientID     string
	ClientSecret string

	// HTTPClient is used for introspection calls. Defaults to a client
	// with a 10 second timeout.
	HTTPClient *http.Client
}

// introspectionResponse is the subset of RFC 7662 fields we consume.
type introspectionResponse struct {
	Active   bool   `json:"active"`
	Subject  string `json:"sub"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Scope    string `json:"scope"`
	ClientID string `json:"client_id"`
	Issuer   string `json:"iss"`
}

// Validate posts the token to the introspection endpoint. An inactive
// token yields ErrUnauthorized; transport and decoding failures are
// returned as-is so callers can distinguish outage from rejection.
func (p *IntrospectionProvider) Validate(ctx context.Context, token string) (*AuthInfo, error) {
	if token == "" {
		return nil, fmt.Errorf("empty token: %w", ErrUnauthorized)
	}

	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", "access_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build introspection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.ClientID, p.ClientSecret)

	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("introspection call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("introspection endpoint returned %d: %s", resp.StatusCode, body)
	}

	var ir introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, fmt.Errorf("decode introspection response: %w", err)
	}

	if !ir.Active {
		return nil, fmt.Errorf("token not active: %w", ErrUnauthorized)
	}

	userID := ir.Subject
	if userID == "" {
		userID = ir.Username
	}
	if userID == "" {
		return nil, fmt.Errorf("introspection response missing subject: %w", ErrUnauthorized)
	}

	info := &AuthInfo{
		UserID:   userID,
		Email:    ir.Email,
		Metadata: map[string]string{},
	}
	if ir.Scope != "" {
		info.Roles = strings.Fields(ir.Scope)
	}
	if ir.Issuer != "" {
		info.Metadata["issuer"] = ir.Issuer
	}
	if ir.ClientID != "" {
		info.Metadata["client_id"] = ir.ClientID
	}
	return info, nil
}

var _ AuthProvider = (*IntrospectionProvider)(nil)
