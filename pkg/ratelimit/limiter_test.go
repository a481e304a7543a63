package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNew_Unlimited(t *testing.T) {
	tests := []struct {
		name string
		rps  float64
	}{
		{name: "zero", rps: 0},
		{name: "negative", rps: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.rps, zerolog.Nop())
			if l.Limit() != 0 {
				t.Errorf("Limit() = %v, want 0", l.Limit())
			}

			start := time.Now()
			for i := 0; i < 100; i++ {
				if err := l.Wait(context.Background()); err != nil {
					t.Fatalf("Wait() error = %v", err)
				}
			}
			if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
				t.Errorf("unlimited waits took %v", elapsed)
			}
		})
	}
}

func TestLimiter_Throttles(t *testing.T) {
	l := New(20, zerolog.Nop())
	if l.Limit() != 20 {
		t.Errorf("Limit() = %v, want 20", l.Limit())
	}

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}

	// first token is immediate, the next two arrive 50ms apart
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("3 waits at 20 rps took %v, want >= 90ms", elapsed)
	}
}

func TestLimiter_ContextCancelled(t *testing.T) {
	l := New(0.1, zerolog.Nop())
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); err == nil {
		t.Error("Wait() expected error with short deadline")
	}
}

func TestLimiter_Nil(t *testing.T) {
	var l *Limiter
	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("nil Wait() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("nil Wait() on cancelled ctx = %v, want context.Canceled", err)
	}
}
