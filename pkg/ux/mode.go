// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// Mode controls how CLI output is rendered.
type Mode string

const (
	// ModeStyled renders colors, icons, and boxes for interactive use.
	ModeStyled Mode = "styled"

	// ModePlain renders prefix-tagged plain text suitable for scripts,
	// CI logs, and piped output.
	ModePlain Mode = "plain"
)

var (
	currentMode = ModeStyled
	modeMu      sync.RWMutex
)

// GetMode returns the active output mode.
func GetMode() Mode {
	modeMu.RLock()
	defer modeMu.RUnlock()
	return currentMode
}

// SetMode sets the output mode explicitly, overriding detection.
func SetMode(m Mode) {
	modeMu.Lock()
	defer modeMu.Unlock()
	currentMode = m
}

// ParseMode converts a string to a Mode. Unrecognized values fall back
// to styled output.
func ParseMode(s string) Mode {
	switch strings.ToLower(s) {
	case "plain", "machine", "p":
		return ModePlain
	case "styled", "s":
		return ModeStyled
	default:
		return ModeStyled
	}
}

// InitMode picks the output mode from the environment: an explicit
// STORYLOOM_OUTPUT setting wins, then a non-terminal stdout forces
// plain output.
func InitMode() {
	if env := os.Getenv("STORYLOOM_OUTPUT"); env != "" {
		SetMode(ParseMode(env))
		return
	}
	if !isTerminal() {
		SetMode(ModePlain)
		return
	}
	SetMode(ModeStyled)
}

// isTerminal reports whether stdout is a terminal, including the
// Cygwin/MSYS pty case where the ordinary check fails.
func isTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
