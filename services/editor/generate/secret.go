// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generate

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// minMlockKB is the minimum mlock limit required to hold key material in
// locked memory. An enclave needs a handful of pages, far below this.
const minMlockKB = 64

var (
	secretInitOnce sync.Once

	// mlockSufficient is set during initialization.
	mlockSufficient bool

	// currentMlockLimitKB stores the current mlock limit for logging.
	currentMlockLimitKB int64
)

// Keeper holds an API key sealed in an encrypted memguard enclave so the
// plaintext never sits in swappable memory between uses. On systems without
// usable mlock limits it falls back to plain memory only when
// STORYLOOM_INSECURE_MEMORY=true acknowledges the risk.
type Keeper struct {
	enclave *memguard.Enclave
	plain   string
}

// NewKeeper seals the given key. The caller should drop its own copy of the
// key string as soon as possible.
func NewKeeper(key string) (*Keeper, error) {
	if key == "" {
		return nil, errors.New("generate: empty API key")
	}
	initSecrets()

	if !mlockSufficient {
		if os.Getenv("STORYLOOM_INSECURE_MEMORY") != "true" {
			return nil, fmt.Errorf(
				"mlock limit insufficient: have %d KB, need %d KB. "+
					"Raise the limit or set STORYLOOM_INSECURE_MEMORY=true",
				currentMlockLimitKB, minMlockKB,
			)
		}
		slog.Warn("SECURITY: holding API key in unlocked memory - it may be swapped to disk",
			"current_limit_kb", currentMlockLimitKB,
			"required_kb", minMlockKB,
		)
		return &Keeper{plain: key}, nil
	}

	return &Keeper{enclave: memguard.NewEnclave([]byte(key))}, nil
}

// LoadKeeper reads an API key from the environment, falling back to a
// container secrets file, and seals it.
func LoadKeeper(envVar, secretPath string) (*Keeper, error) {
	key := os.Getenv(envVar)
	if key == "" {
		raw, err := os.ReadFile(secretPath)
		if err != nil {
			slog.Error("API key not set and secret file not found", "env", envVar, "path", secretPath)
			return nil, fmt.Errorf("%s environment variable not set", envVar)
		}
		key = strings.TrimSpace(string(raw))
		slog.Info("Read API key from secrets file", "path", secretPath)
	}
	return NewKeeper(key)
}

// Reveal opens the enclave and returns a copy of the key. The locked buffer
// backing the enclave is wiped again before Reveal returns; the returned
// string is ordinary memory for the caller to use and discard.
func (k *Keeper) Reveal() (string, error) {
	if k.enclave == nil {
		return k.plain, nil
	}
	buf, err := k.enclave.Open()
	if err != nil {
		return "", fmt.Errorf("open API key enclave: %w", err)
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}

// Secure reports whether the key is held in locked memory.
func (k *Keeper) Secure() bool { return k.enclave != nil }

// MlockAvailable reports whether locked memory is usable on this system and
// the current limit in KB (-1 if unlimited).
func MlockAvailable() (bool, int64) {
	initSecrets()
	return mlockSufficient, currentMlockLimitKB
}

// PurgeSecrets wipes all memguard-held material. Call during shutdown.
func PurgeSecrets() {
	memguard.Purge()
	slog.Info("Purged secret memory")
}

func initSecrets() {
	secretInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
		if mlockSufficient {
			slog.Debug("Secure memory initialized",
				"mlock_limit_kb", currentMlockLimitKB,
				"required_kb", minMlockKB,
			)
		} else {
			slog.Warn("mlock limit insufficient for secure key storage",
				"current_limit_kb", currentMlockLimitKB,
				"required_kb", minMlockKB,
			)
		}
	})
}

// checkMlockLimit queries the kernel for the mlock resource limit.
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("Could not determine mlock limit", "error", err)
		return true, -1
	}
	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}
	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= minMlockKB, limitKB
}
