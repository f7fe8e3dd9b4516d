package ledger

import (
	"testing"
	"time"
)

func TestRetryDelayBackoff(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 4, InitialDelay: 10 * time.Millisecond, MaxDelay: 30 * time.Millisecond, BackoffFactor: 2}

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}
	for i, w := range want {
		if got := cfg.delay(i + 1); got != w {
			t.Fatalf("delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestRetryConfigNormalized(t *testing.T) {
	cfg := RetryConfig{}.normalized()
	def := DefaultRetryConfig()
	if cfg.MaxAttempts != def.MaxAttempts || cfg.BackoffFactor != def.BackoffFactor || cfg.MaxDelay != def.MaxDelay {
		t.Fatalf("unexpected normalized config %+v", cfg)
	}
}
