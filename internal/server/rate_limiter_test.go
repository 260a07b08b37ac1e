package server

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	limiter := newRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("stripe:10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if limiter.Allow("stripe:10.0.0.1") {
		t.Fatal("request over the limit should be rejected")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	limiter := newRateLimiter(1, time.Minute)

	if !limiter.Allow("stripe:10.0.0.1") {
		t.Fatal("first key should be allowed")
	}
	if !limiter.Allow("paypal:10.0.0.1") {
		t.Fatal("second key should be allowed")
	}
	if limiter.Allow("stripe:10.0.0.1") {
		t.Fatal("first key should now be limited")
	}
}

func TestRateLimiterRejectsEmptyKey(t *testing.T) {
	limiter := newRateLimiter(10, time.Minute)
	if limiter.Allow("") {
		t.Fatal("empty key must never be allowed")
	}
}

func TestRateLimiterResetsAfterWindow(t *testing.T) {
	limiter := newRateLimiter(1, time.Millisecond)

	if !limiter.Allow("stripe:10.0.0.1") {
		t.Fatal("first request should be allowed")
	}
	time.Sleep(5 * time.Millisecond)
	if !limiter.Allow("stripe:10.0.0.1") {
		t.Fatal("request after window expiry should be allowed")
	}
}
