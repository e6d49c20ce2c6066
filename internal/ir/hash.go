package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainSnapshot = "rill/snapshot/v1"
	DomainProgram  = "rill/program/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotHash computes the content hash of a canonical snapshot body.
// data must come from MarshalCanonical.
func SnapshotHash(data []byte) string {
	return hashWithDomain(DomainSnapshot, data)
}

// ProgramHash computes the content hash of a compiled program.
// Archived snapshots record it so a restore can detect a changed program.
func ProgramHash(spec *ProgramSpec) (string, error) {
	canonical, err := MarshalCanonical(spec)
	if err != nil {
		return "", fmt.Errorf("ProgramHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainProgram, canonical), nil
}

// MustProgramHash is like ProgramHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustProgramHash(spec *ProgramSpec) string {
	h, err := ProgramHash(spec)
	if err != nil {
		panic(err)
	}
	return h
}
