// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

// Package ident generates the opaque identifiers used as primary keys
// across the permission and audit stores. An identifier is a short
// type prefix followed by 16 hex-encoded random bytes, e.g.
// "perm-3f9c2a...". The prefix makes logs and audit records
// self-describing without a lookup.
package ident

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// Prefixes for each identifier-carrying entity.
const (
	PrefixPermission = "perm"
	PrefixRequest    = "preq"
	PrefixShellAudit = "shl"
	PrefixFileAudit  = "fio"
)

// randomBytes is the entropy per identifier. 16 bytes (128 bits) is
// collision-proof at any realistic grant rate.
const randomBytes = 16

// New returns a fresh identifier with the given prefix. Panics if the
// system entropy source fails, which is not a recoverable condition.
func New(prefix string) string {
	var buffer [randomBytes]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		panic(fmt.Sprintf("ident: reading random bytes: %v", err))
	}
	return prefix + "-" + hex.EncodeToString(buffer[:])
}

// HasPrefix reports whether id carries the given prefix. Useful for
// validating that a caller passed the right kind of identifier.
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix+"-")
}
