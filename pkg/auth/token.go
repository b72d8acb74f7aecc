// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
)

// memguardInitOnce ensures memguard signal handling is installed once per
// process, no matter how many providers are created.
var memguardInitOnce sync.Once

func initMemguard() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
	})
}

// StaticTokenProvider authenticates requests against a single pre-shared
// bearer token. The token is sealed in a memguard enclave so it is
// encrypted at rest in process memory and wiped on interrupt, and the
// comparison is constant-time.
//
// Suitable for single-tenant deployments where the API sits behind a
// gateway that injects the shared credential.
type StaticTokenProvider struct {
	enclave *memguard.Enclave
	info    AuthInfo
}

// NewStaticTokenProvider seals the expected token and returns a provider
// that reports the given identity on success. The plaintext token slice is
// wiped by memguard during sealing; callers must not reuse it.
func NewStaticTokenProvider(token string, info AuthInfo) (*StaticTokenProvider, error) {
	if token == "" {
		return nil, fmt.Errorf("static token provider requires a non-empty token")
	}
	if info.UserID == "" {
		info.UserID = "service-account"
	}
	initMemguard()

	return &StaticTokenProvider{
		enclave: memguard.NewEnclave([]byte(token)),
		info:    info,
	}, nil
}

// Validate opens the enclave, compares in constant time, and destroys the
// plaintext buffer before returning.
func (p *StaticTokenProvider) Validate(_ context.Context, token string) (*AuthInfo, error) {
	buf, err := p.enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("open token enclave: %w", err)
	}
	defer buf.Destroy()

	if subtle.ConstantTimeCompare(buf.Bytes(), []byte(token)) != 1 {
		return nil, fmt.Errorf("token mismatch: %w", ErrUnauthorized)
	}

	info := p.info
	return &info, nil
}

var _ AuthProvider = (*StaticTokenProvider)(nil)
