package idempotency

import (
	"testing"
	"time"
)

type attemptFacts struct {
	AttemptID  string    `json:"attemptId"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (f attemptFacts) Canonical() any {
	f.OccurredAt = f.OccurredAt.UTC()
	return f
}

func TestFingerprintIgnoresZoneOfSameInstant(t *testing.T) {
	utc := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	amsterdam := utc.In(time.FixedZone("CET", 3600))

	a, err := Fingerprint(attemptFacts{AttemptID: "a1", OccurredAt: utc})
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	b, err := Fingerprint(attemptFacts{AttemptID: "a1", OccurredAt: amsterdam})
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if a != b {
		t.Fatalf("same instant in two zones fingerprinted differently: %s vs %s", a, b)
	}

	c, err := Fingerprint(attemptFacts{AttemptID: "a1", OccurredAt: utc.Add(time.Second)})
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if a == c {
		t.Fatalf("different instants must fingerprint differently")
	}
}
