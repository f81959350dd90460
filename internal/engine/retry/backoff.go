package retry

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Config defines retry behavior for one call class. MaxAttempts includes
// the first try.
type Config struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	BackoffFactor float64
	JitterMax     time.Duration
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	MaxAttempts:   3,
	BaseDelay:     1 * time.Second,
	BackoffFactor: 2.0,
	JitterMax:     0,
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultConfig.BaseDelay
	}
	if c.BackoffFactor < 1.0 {
		c.BackoffFactor = 1.0
	}
	if c.JitterMax < 0 {
		c.JitterMax = 0
	}
	return c
}

// Policy computes backoff delays. It is stateless apart from the jitter
// source, which is injectable so tests can be deterministic.
type Policy struct {
	cfg Config

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPolicy creates a Policy with a time-seeded jitter source.
func NewPolicy(cfg Config) *Policy {
	return NewPolicyWithSource(cfg, rand.NewSource(time.Now().UnixNano()))
}

// NewPolicyWithSource creates a Policy with the given jitter source.
func NewPolicyWithSource(cfg Config, src rand.Source) *Policy {
	return &Policy{cfg: cfg.withDefaults(), rnd: rand.New(src)}
}

// Delay returns how long to wait after attempt n fails, before attempt
// n+1 starts: BaseDelay * BackoffFactor^(n-1) plus uniform jitter in
// [0, JitterMax]. Attempt 1 itself never waits; it is the first try.
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(p.cfg.BaseDelay) * math.Pow(p.cfg.BackoffFactor, float64(attempt-1))
	delay := time.Duration(base)
	if p.cfg.JitterMax > 0 {
		p.mu.Lock()
		jitter := time.Duration(p.rnd.Int63n(int64(p.cfg.JitterMax) + 1))
		p.mu.Unlock()
		delay += jitter
	}
	return delay
}
