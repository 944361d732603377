// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up
// in storage keys, URLs, or log lines. Using these validators prevents
// injection through crafted node ids and keeps project names displayable.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxNameLength caps project names. Long enough for a sentence, short
// enough for a sidebar.
const MaxNameLength = 120

// maxIDLength caps node and edge ids. Generated ids are around 35
// characters; the headroom covers client-generated schemes.
const maxIDLength = 128

// idPattern matches valid node and edge identifiers.
// Allows: letters, digits, dots, underscores, hyphens
// First character must be alphanumeric; max length checked separately.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._\-]*$`)

// ValidateNodeID validates a node identifier.
//
// Valid ids:
//   - 1-128 characters
//   - Letters, digits, dots, underscores, hyphens
//   - First character alphanumeric
//
// Ids appear in URL paths and change events, so the character set is
// deliberately URL-safe.
//
// Example:
//
//	if err := validation.ValidateNodeID(id); err != nil {
//	    c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
//	    return
//	}
func ValidateNodeID(id string) error {
	if id == "" {
		return fmt.Errorf("node id cannot be empty")
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("node id too long: %d characters (max %d)", len(id), maxIDLength)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid node id format: %q (must be alphanumeric with dots, underscores, or hyphens)", id)
	}
	return nil
}

// ValidateEdgeID validates an edge identifier. Edge ids share the node
// id character rules.
func ValidateEdgeID(id string) error {
	if id == "" {
		return fmt.Errorf("edge id cannot be empty")
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("edge id too long: %d characters (max %d)", len(id), maxIDLength)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid edge id format: %q (must be alphanumeric with dots, underscores, or hyphens)", id)
	}
	return nil
}

// ValidateProjectName validates a display name for a project.
//
// Valid names:
//   - 1-120 characters after trimming
//   - No control characters
//
// Returns an error if the name is invalid.
func ValidateProjectName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	if utf8.RuneCountInString(trimmed) > MaxNameLength {
		return fmt.Errorf("project name too long: %d characters (max %d)",
			utf8.RuneCountInString(trimmed), MaxNameLength)
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return fmt.Errorf("project name contains control characters")
		}
	}
	return nil
}

// SanitizeName normalizes and validates a project name.
// Returns the trimmed name with inner whitespace collapsed, or an
// error if the result is invalid.
//
// Use this when you need both validation and normalization:
//
//	name, err := validation.SanitizeName(req.Name)
//	if err != nil {
//	    return err
//	}
//	// name is display-ready
func SanitizeName(name string) (string, error) {
	normalized := strings.Join(strings.Fields(name), " ")
	if err := ValidateProjectName(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
