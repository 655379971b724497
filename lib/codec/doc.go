// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the standard CBOR encoding configuration
// used by the control socket protocol and audit exports.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// The same logical value always produces identical bytes, which keeps
// exported audit streams diffable and checksummable. Decoding accepts
// standard CBOR and ignores unknown fields for forward compatibility.
package codec
