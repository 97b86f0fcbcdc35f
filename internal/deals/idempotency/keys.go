package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

// QuoteEventKey identifies one customer-facing event on one revision.
func QuoteEventKey(revisionID string, revisionNumber int, eventType string) string {
	return "quote:" + revisionID + ":" + strconv.Itoa(revisionNumber) + ":" + eventType
}

// ContactAttemptKey identifies one logged contact attempt.
func ContactAttemptKey(attemptID string) string {
	return "contact:" + attemptID
}

// Canonicalizer is implemented by facts that have more than one encoding
// for the same meaning, such as one instant written in different zones.
type Canonicalizer interface {
	Canonical() any
}

// Fingerprint hashes the facts of an event. Two deliveries under one key
// must produce the same fingerprint.
func Fingerprint(facts any) (string, error) {
	if c, ok := facts.(Canonicalizer); ok {
		facts = c.Canonical()
	}
	raw, err := json.Marshal(facts)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint event: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
