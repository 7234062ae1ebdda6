// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up in
// database queries or log lines. Using these validators prevents injection
// attacks and keeps malformed identifiers out of the storage layer.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// sessionIDPattern matches version-4 UUIDs in their canonical lowercase or
// uppercase hex form. The version nibble must be 4 and the variant nibble
// one of 8, 9, a, b.
var sessionIDPattern = regexp.MustCompile(
	`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// parameterNamePattern matches the camelCase field names accepted by the
// parameter endpoints. Max length 40 is generous; real names are shorter.
var parameterNamePattern = regexp.MustCompile(`^[a-z][a-zA-Z]{0,39}$`)

// ValidateSessionID validates a session identifier before it reaches the
// store.
//
// Valid IDs are canonical version-4 UUIDs, e.g.
// "3f2b7c1a-9d4e-4f6a-8b2c-0e1d2c3b4a59". Returns an error naming the
// problem otherwise.
//
// Example:
//
//	if err := validation.ValidateSessionID(id); err != nil {
//	    c.JSON(400, datatypes.Fail(err.Error()))
//	    return
//	}
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("invalid session id format: must be a version-4 UUID")
	}
	return nil
}

// ValidateParameterName validates a loan-parameter field name from a
// request path or body. It only checks shape; whether the field exists is
// the tracker's call.
func ValidateParameterName(name string) error {
	if name == "" {
		return fmt.Errorf("parameter name cannot be empty")
	}
	if !parameterNamePattern.MatchString(name) {
		return fmt.Errorf("invalid parameter name: %q", name)
	}
	return nil
}

// SanitizeSessionID normalizes and validates a session identifier.
// Returns the lowercase ID if valid, or an error if invalid.
func SanitizeSessionID(id string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	if err := ValidateSessionID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
