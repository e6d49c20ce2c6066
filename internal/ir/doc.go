// Package ir provides the canonical representation of rill programs and
// the canonical JSON used for content hashes.
//
// This package contains type definitions and encoding only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Canonical JSON follows RFC 8785 (sorted keys by UTF-16 code units,
//     NFC strings, ECMAScript number formatting)
//   - All JSON tags use snake_case
//   - Hashes are domain separated and versioned
package ir
