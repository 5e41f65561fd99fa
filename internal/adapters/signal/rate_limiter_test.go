package signal

import (
	"testing"
	"time"
)

func TestCallRateLimiter_Blocks(t *testing.T) {
	rl := NewCallRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("alice") {
			t.Fatalf("attempt %d should be allowed", i)
		}
	}
	if rl.Allow("alice") {
		t.Fatalf("expected the limit to block the fourth attempt")
	}
	// Other users have their own window.
	if !rl.Allow("bob") {
		t.Fatalf("expected bob to be unaffected")
	}
}

func TestCallRateLimiter_WindowSlides(t *testing.T) {
	rl := NewCallRateLimiter(1, 50*time.Millisecond)

	if !rl.Allow("alice") {
		t.Fatalf("first attempt should pass")
	}
	if rl.Allow("alice") {
		t.Fatalf("second attempt inside the window should block")
	}
	time.Sleep(60 * time.Millisecond)
	if !rl.Allow("alice") {
		t.Fatalf("expected the window to have slid past the first attempt")
	}
}
