// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// MarshalCanonical serializes a JSON value deterministically: object keys
// are emitted in sorted order at every depth, array order is preserved, and
// scalars use encoding/json's encoding. Two documents that are deeply equal
// as data produce identical bytes regardless of key insertion order.
//
// # Inputs
//
//	v - A decoded JSON value: map[string]any, []any, string, bool,
//	    json.Number, float64, nil. Values produced by Decode/DecodeValue
//	    always satisfy this.
//
// # Outputs
//
//	[]byte - The canonical serialization.
//	error - Non-nil when v contains a value JSON cannot represent.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := appendCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// appendCanonical writes the canonical form of v to buf.
func appendCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")

	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("marshal key %q: %w", k, err)
			}
			buf.Write(keyJSON)
			buf.WriteByte(':')
			if err := appendCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')

	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')

	case json.Number:
		// Already a validated JSON literal; write it verbatim so the
		// source representation survives canonicalization.
		buf.WriteString(val.String())

	default:
		// Strings, bools, and numbers from non-UseNumber decoding.
		leaf, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("marshal value: %w", err)
		}
		buf.Write(leaf)
	}
	return nil
}

// ComputeETag derives the strong ETag for a document: sha256 over the
// canonical serialization, hex-encoded, wrapped in double quotes per the
// strong-ETag convention. Any content difference, including array
// reordering, changes the tag; key reordering does not.
func ComputeETag(doc map[string]any) (string, error) {
	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("canonicalize document: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return `"` + hex.EncodeToString(sum[:]) + `"`, nil
}

// normalizeETag strips surrounding whitespace, any weak-validator prefix,
// and surrounding quotes, leaving the bare opaque value for comparison.
func normalizeETag(tag string) (value string, weak bool) {
	tag = strings.TrimSpace(tag)
	if strings.HasPrefix(tag, "W/") {
		weak = true
		tag = tag[2:]
	}
	tag = strings.Trim(tag, `"`)
	return tag, weak
}

// ETagMatch performs a strong comparison between a caller-supplied
// precondition value and the current ETag. The wildcard "*" matches any
// existing representation; comma-separated lists match if any member
// matches; weak validators (W/ prefix) never match, since preconditions on
// state-changing requests require strong comparison.
func ETagMatch(candidate, current string) bool {
	currentValue, _ := normalizeETag(current)
	for _, part := range strings.Split(candidate, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part == "*" {
			return true
		}
		value, weak := normalizeETag(part)
		if weak {
			continue
		}
		if value == currentValue {
			return true
		}
	}
	return false
}

// ETagMatchWeak performs a weak comparison, used for If-None-Match on
// reads where a W/ prefixed validator still identifies the representation.
func ETagMatchWeak(candidate, current string) bool {
	currentValue, _ := normalizeETag(current)
	for _, part := range strings.Split(candidate, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part == "*" {
			return true
		}
		value, _ := normalizeETag(part)
		if value == currentValue {
			return true
		}
	}
	return false
}
