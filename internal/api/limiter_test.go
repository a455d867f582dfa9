package api

import "testing"

func TestRateLimiterPerKey(t *testing.T) {
	t.Parallel()

	l := NewRateLimiter(1, 2)
	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst of two should be allowed")
	}
	if l.Allow("a") {
		t.Fatal("third request should be throttled")
	}
	if !l.Allow("b") {
		t.Fatal("other keys have their own bucket")
	}

	l.Forget("a")
	if !l.Allow("a") {
		t.Fatal("forgotten key should start with a fresh bucket")
	}
}
