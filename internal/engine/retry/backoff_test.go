package retry

import (
	"math/rand"
	"testing"
	"time"
)

func TestDelayGrowth(t *testing.T) {
	p := NewPolicyWithSource(Config{
		MaxAttempts:   5,
		BaseDelay:     100 * time.Millisecond,
		BackoffFactor: 2.0,
	}, rand.NewSource(1))

	tests := []struct {
		attempt int
		expect  time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.expect {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.expect)
		}
	}
}

func TestDelayJitterBounds(t *testing.T) {
	base := 50 * time.Millisecond
	jitterMax := 20 * time.Millisecond
	p := NewPolicyWithSource(Config{
		MaxAttempts:   3,
		BaseDelay:     base,
		BackoffFactor: 2.0,
		JitterMax:     jitterMax,
	}, rand.NewSource(42))

	for attempt := 1; attempt <= 6; attempt++ {
		lower := time.Duration(float64(base) * pow2(attempt-1))
		upper := lower + jitterMax
		for i := 0; i < 100; i++ {
			got := p.Delay(attempt)
			if got < lower || got > upper {
				t.Fatalf("Delay(%d) = %v, want within [%v, %v]", attempt, got, lower, upper)
			}
		}
	}
}

func pow2(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 2
	}
	return v
}

func TestDelayDeterministicSource(t *testing.T) {
	cfg := Config{MaxAttempts: 3, BaseDelay: time.Second, BackoffFactor: 2.0, JitterMax: time.Second}
	a := NewPolicyWithSource(cfg, rand.NewSource(7))
	b := NewPolicyWithSource(cfg, rand.NewSource(7))
	for i := 1; i <= 10; i++ {
		if da, db := a.Delay(i), b.Delay(i); da != db {
			t.Fatalf("same seed diverged at attempt %d: %v vs %v", i, da, db)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	if c.MaxAttempts != 1 {
		t.Errorf("MaxAttempts default = %d, want 1", c.MaxAttempts)
	}
	if c.BaseDelay != time.Second {
		t.Errorf("BaseDelay default = %v, want 1s", c.BaseDelay)
	}
	if c.BackoffFactor != 1.0 {
		t.Errorf("BackoffFactor default = %v, want 1.0", c.BackoffFactor)
	}
}
