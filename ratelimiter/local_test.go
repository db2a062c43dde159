package ratelimiter

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucket(t *testing.T) {
	capacity := 10
	bucket := NewTokenBucket(capacity, capacity, time.Minute)

	if !bucket.TryConsume(5) {
		t.Error("failed to consume tokens from full bucket")
	}
	if bucket.remaining != 5 {
		t.Errorf("expected 5 remaining tokens, got %d", bucket.remaining)
	}

	if bucket.TryConsume(6) {
		t.Error("should not be able to consume more than remaining")
	}

	// Short interval so the full refill is observable.
	fastBucket := NewTokenBucket(capacity, 0, 10*time.Millisecond)

	if fastBucket.TryConsume(1) {
		t.Error("should fail to consume from empty bucket")
	}

	time.Sleep(20 * time.Millisecond)

	if !fastBucket.TryConsume(1) {
		t.Error("should succeed after refill")
	}
}

func TestTokenBucket_Refund(t *testing.T) {
	bucket := NewTokenBucket(10, 10, time.Minute)
	bucket.TryConsume(4)
	bucket.Refund(100)
	if bucket.remaining != 10 {
		t.Errorf("refund should cap at capacity, got %d", bucket.remaining)
	}
}

func TestRateLimiter_TryConsume(t *testing.T) {
	rl := New(100, 10)

	if !rl.TryConsume(10) {
		t.Error("should be able to proceed with valid request")
	}

	smallTokenRL := New(10, 100)
	if !smallTokenRL.TryConsume(10) {
		t.Error("should be able to consume exactly available tokens")
	}
	if smallTokenRL.TryConsume(1) {
		t.Error("should not proceed when tokens exhausted")
	}

	smallReqRL := New(100, 1)
	if !smallReqRL.TryConsume(1) {
		t.Error("should be able to proceed with 1st request")
	}
	if smallReqRL.TryConsume(1) {
		t.Error("should not proceed when requests exhausted")
	}
	if smallReqRL.TokensBucket.remaining != 99 {
		t.Errorf("a refused request must not consume tokens, remaining %d", smallReqRL.TokensBucket.remaining)
	}
}

func TestRateLimiter_Wait(t *testing.T) {
	rl := New(60, 60) // 1 token per second

	rl.TokensBucket.TryConsume(60)

	// Refill rate is 1/sec, so one token is about a second away.
	wait := rl.Wait(1)
	if wait < 900*time.Millisecond || wait > 1500*time.Millisecond {
		t.Errorf("expected wait around 1s, got %v", wait)
	}
}

func TestRateLimiter_WaitAndConsume_MaxWait(t *testing.T) {
	rl := New(60, 60)
	rl.TokensBucket.TryConsume(60)

	err := rl.WaitAndConsume(context.Background(), 30, time.Second)
	if err == nil {
		t.Fatal("expected max wait error")
	}
}

func TestRateLimiter_WaitAndConsume_Cancelled(t *testing.T) {
	rl := New(60, 60)
	rl.TokensBucket.TryConsume(60)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rl.WaitAndConsume(ctx, 1, 0); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
