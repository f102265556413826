package util

import (
	"context"
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	// 10 tokens per second, burst of 2
	l := NewLimiter(10, 2)

	if !l.Allow(1) {
		t.Error("expected first token to be allowed")
	}
	if !l.Allow(1) {
		t.Error("expected second token to be allowed (burst)")
	}
	if l.Allow(1) {
		t.Error("expected third token to be rejected (burst exhausted)")
	}

	time.Sleep(150 * time.Millisecond)
	if !l.Allow(1) {
		t.Error("expected token to be refilled after wait")
	}
}

func TestLimiterUnlimited(t *testing.T) {
	l := NewLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !l.Allow(1) {
			t.Fatalf("unlimited limiter rejected token %d", i)
		}
	}
}

func TestLimiterSetRate(t *testing.T) {
	l := NewLimiter(1, 1)
	if !l.Allow(1) {
		t.Fatal("expected first token to be allowed")
	}
	if l.Allow(1) {
		t.Fatal("expected second token to be rejected")
	}

	l.SetRate(1000, 5)
	if l.Rate() != 1000 {
		t.Fatalf("expected rate 1000, got %v", l.Rate())
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Wait(ctx, 1); err != nil {
		t.Fatalf("wait after raising rate: %v", err)
	}
}
