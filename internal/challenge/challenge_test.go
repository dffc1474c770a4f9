package challenge

import (
	"testing"
	"time"
)

func TestIssueConsumeOneShot(t *testing.T) {
	idx := New()
	n := idx.Issue()

	if !idx.Consume(n) {
		t.Fatalf("first consume of a fresh nonce must succeed")
	}
	if idx.Consume(n) {
		t.Fatalf("second consume of the same nonce must fail")
	}
}

func TestConsumeUnknownNonce(t *testing.T) {
	idx := New()
	var n Nonce
	if idx.Consume(n) {
		t.Fatalf("consuming a never-issued nonce must fail")
	}
}

func TestFreshnessExpiry(t *testing.T) {
	idx := New()
	base := time.Now()
	idx.now = func() time.Time { return base }

	n := idx.Issue()

	idx.now = func() time.Time { return base.Add(61 * time.Second) }
	if idx.Consume(n) {
		t.Fatalf("consume after TTL elapsed must fail even though the entry was never evicted")
	}
}

func TestFreshnessWithinWindow(t *testing.T) {
	idx := New()
	base := time.Now()
	idx.now = func() time.Time { return base }

	n := idx.Issue()

	idx.now = func() time.Time { return base.Add(59 * time.Second) }
	if !idx.Consume(n) {
		t.Fatalf("consume within TTL must succeed")
	}
}

func TestCapacityEviction(t *testing.T) {
	idx := New()
	first := idx.Issue()

	// Fill past capacity; the oldest entry (first) must be evicted.
	for i := 0; i < Capacity; i++ {
		idx.Issue()
	}

	if idx.Consume(first) {
		t.Fatalf("oldest nonce should have been evicted once capacity was exceeded")
	}
	if idx.Len() > Capacity {
		t.Fatalf("index grew beyond capacity: %d", idx.Len())
	}
}
