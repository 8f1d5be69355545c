package gateway

import "testing"

// TestRateLimiter_Burst verifies each user gets an independent bucket
// with the configured burst.
func TestRateLimiter_Burst(t *testing.T) {
	rl := NewRateLimiter(60, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("alice") {
			t.Fatalf("request %d within burst should be allowed", i)
		}
	}
	if rl.Allow("alice") {
		t.Error("request beyond burst should be denied")
	}

	// A different user has a fresh bucket.
	if !rl.Allow("bob") {
		t.Error("other users must not share the exhausted bucket")
	}
}

// TestRateLimiter_Disabled verifies rpm <= 0 admits everything.
func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, 1)
	if rl.Enabled() {
		t.Error("rpm 0 should disable limiting")
	}
	for i := 0; i < 100; i++ {
		if !rl.Allow("alice") {
			t.Fatal("disabled limiter denied a request")
		}
	}
}
