package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for derived keys.
// The version suffix allows changing the algorithm later.
const (
	DomainExecution = "rootcause/execution/v1"
	DomainInput     = "rootcause/input/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ExecutionKey identifies one candidate execution: a rule bound to an
// exact tuple of tags in slot order. Absent optional slots use NoTag.
func ExecutionKey(rule string, tags []TagID) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"rule": rule,
		"tags": tags,
	})
	if err != nil {
		return "", fmt.Errorf("ExecutionKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainExecution, canonical), nil
}

// MustExecutionKey is like ExecutionKey but panics on error.
func MustExecutionKey(rule string, tags []TagID) string {
	key, err := ExecutionKey(rule, tags)
	if err != nil {
		panic(err)
	}
	return key
}

// InputDigest fingerprints a canonical-JSON-compatible value, e.g. the
// session variables a diagnosis ran with.
func InputDigest(v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("InputDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainInput, canonical), nil
}
