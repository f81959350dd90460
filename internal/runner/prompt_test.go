package runner

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSampleComboFormat(t *testing.T) {
	pool := NewPromptPoolWithSource(
		[]string{"a calm lake at dawn"},
		[]string{"oil painting"},
		[]string{"serene", "nature"},
		rand.NewSource(1),
	)
	combo, err := pool.SampleCombo()
	if err != nil {
		t.Fatalf("SampleCombo: %v", err)
	}
	parts := strings.Split(combo, " | ")
	if len(parts) != 3 {
		t.Fatalf("expected text | style | tags, got %q", combo)
	}
	if parts[0] != "a calm lake at dawn" || parts[1] != "oil painting" {
		t.Fatalf("unexpected combo %q", combo)
	}
	for _, tag := range strings.Split(parts[2], ", ") {
		if tag != "serene" && tag != "nature" {
			t.Fatalf("unexpected tag %q in %q", tag, combo)
		}
	}
}

func TestSampleComboAvoidsRepeats(t *testing.T) {
	texts := []string{"one", "two", "three", "four", "five", "six"}
	pool := NewPromptPoolWithSource(texts, nil, nil, rand.NewSource(7))

	seen := make(map[string]struct{})
	for i := 0; i < len(texts); i++ {
		combo, err := pool.SampleCombo()
		if err != nil {
			t.Fatalf("SampleCombo: %v", err)
		}
		seen[combo] = struct{}{}
	}
	// Six draws over six candidates with re-rolling should cover most of
	// the pool; a repeat-happy sampler collapses to one or two.
	if len(seen) < 4 {
		t.Fatalf("expected at least 4 distinct combos, got %d", len(seen))
	}
}

func TestSampleComboSingleCandidate(t *testing.T) {
	pool := NewPromptPoolWithSource([]string{"only"}, nil, nil, rand.NewSource(1))
	for i := 0; i < 3; i++ {
		combo, err := pool.SampleCombo()
		if err != nil {
			t.Fatalf("SampleCombo: %v", err)
		}
		if combo != "only" {
			t.Fatalf("unexpected combo %q", combo)
		}
	}
}

func TestSampleComboEmptyPool(t *testing.T) {
	pool := NewPromptPool(nil, []string{"style"}, nil)
	if _, err := pool.SampleCombo(); err == nil {
		t.Fatal("expected error from empty pool")
	}
}

func TestLoadPromptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.txt")
	content := "first prompt\n\n  second prompt  \n\t\nthird\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	lines, err := LoadPromptFile(path)
	if err != nil {
		t.Fatalf("LoadPromptFile: %v", err)
	}
	want := []string{"first prompt", "second prompt", "third"}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %v", len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d: got %q want %q", i, lines[i], want[i])
		}
	}
}

func TestLoadPromptFileMissing(t *testing.T) {
	if _, err := LoadPromptFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
