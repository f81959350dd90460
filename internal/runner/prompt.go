package runner

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"
)

// PromptPool holds prompt candidates and samples deduplicated
// text/style/tag combinations for jobs.
type PromptPool struct {
	mu     sync.Mutex
	texts  []string
	styles []string
	tags   []string
	used   map[string]struct{}
	rnd    *rand.Rand
}

// NewPromptPool creates a pool from the given candidates.
func NewPromptPool(texts, styles, tags []string) *PromptPool {
	return NewPromptPoolWithSource(texts, styles, tags, rand.NewSource(time.Now().UnixNano()))
}

// NewPromptPoolWithSource creates a pool with a deterministic sampling
// source, for tests.
func NewPromptPoolWithSource(texts, styles, tags []string, src rand.Source) *PromptPool {
	return &PromptPool{
		texts:  clean(texts),
		styles: clean(styles),
		tags:   clean(tags),
		used:   make(map[string]struct{}),
		rnd:    rand.New(src),
	}
}

// LoadPromptFile reads one prompt candidate per non-empty line.
func LoadPromptFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt pool: %w", err)
	}
	return clean(strings.Split(string(data), "\n")), nil
}

func clean(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// SampleCombo combines a random text with a style and up to three tags,
// re-rolling a few times to avoid repeating a combination within this
// process.
func (p *PromptPool) SampleCombo() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.texts) == 0 {
		return "", fmt.Errorf("prompt pool has no text entries")
	}

	combo := p.sample()
	for attempts := 0; attempts < 5; attempts++ {
		if _, seen := p.used[strings.ToLower(combo)]; !seen {
			break
		}
		combo = p.sample()
	}
	p.used[strings.ToLower(combo)] = struct{}{}
	return combo, nil
}

func (p *PromptPool) sample() string {
	parts := []string{p.texts[p.rnd.Intn(len(p.texts))]}
	if len(p.styles) > 0 {
		parts = append(parts, p.styles[p.rnd.Intn(len(p.styles))])
	}
	if len(p.tags) > 0 {
		n := min(len(p.tags), 3)
		picked := make([]string, 0, n)
		for _, i := range p.rnd.Perm(len(p.tags))[:n] {
			picked = append(picked, p.tags[i])
		}
		parts = append(parts, strings.Join(picked, ", "))
	}
	return strings.Join(parts, " | ")
}

// Size returns the number of text candidates.
func (p *PromptPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.texts)
}
