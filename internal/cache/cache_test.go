package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestFingerprintNormalization(t *testing.T) {
	tests := []struct {
		name  string
		aTask string
		aCtx  string
		bTask string
		bCtx  string
		same  bool
	}{
		{"identical", "build a parser", "", "build a parser", "", true},
		{"case insensitive", "Build A Parser", "", "build a parser", "", true},
		{"whitespace collapsed", "build\t a\n\nparser", "", "build a parser", "", true},
		{"leading trailing trimmed", "  build a parser  ", "", "build a parser", "", true},
		{"different task", "build a parser", "", "build a lexer", "", false},
		{"different context", "build a parser", "in go", "build a parser", "in rust", false},
		{"context not merged into task", "build a parser in go", "", "build a parser", "in go", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Fingerprint(tt.aTask, tt.aCtx)
			b := Fingerprint(tt.bTask, tt.bCtx)
			if (a == b) != tt.same {
				t.Errorf("Fingerprint equality = %v, want %v", a == b, tt.same)
			}
		})
	}
}

func TestGetSet(t *testing.T) {
	c := New(DefaultConfig())

	if _, ok := c.Get("task", ""); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Set("task", "", "answer")
	got, ok := c.Get("task", "")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if got != "answer" {
		t.Errorf("Get = %q, want %q", got, "answer")
	}

	// Normalized variant hits the same entry.
	if got, ok := c.Get("  TASK ", ""); !ok || got != "answer" {
		t.Errorf("normalized Get = %q, %v; want %q, true", got, ok, "answer")
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(Config{Enabled: true, TTL: time.Minute, Capacity: 10})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	c.Set("task", "", "answer")

	c.now = func() time.Time { return base.Add(59 * time.Second) }
	if _, ok := c.Get("task", ""); !ok {
		t.Fatal("expected hit before TTL")
	}

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, ok := c.Get("task", ""); ok {
		t.Fatal("expected miss after TTL")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d after expired Get, want 0", c.Len())
	}
}

func TestEvictionExpiredFirst(t *testing.T) {
	c := New(Config{Enabled: true, TTL: time.Minute, Capacity: 3})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	c.Set("old-1", "", "a")
	c.Set("old-2", "", "b")

	// The old entries expire; new inserts push past capacity and should
	// reclaim the expired ones rather than fresh entries.
	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	c.Set("new-1", "", "c")
	c.Set("new-2", "", "d")

	if _, ok := c.Get("new-1", ""); !ok {
		t.Error("fresh entry new-1 evicted")
	}
	if _, ok := c.Get("new-2", ""); !ok {
		t.Error("fresh entry new-2 evicted")
	}
	if c.Len() > 3 {
		t.Errorf("Len = %d, want <= 3", c.Len())
	}
}

func TestEvictionLowestHit(t *testing.T) {
	c := New(Config{Enabled: true, TTL: time.Hour, Capacity: 5})

	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("task-%d", i), "", "answer")
	}
	// Make task-0 through task-3 popular; task-4 stays at zero hits.
	for i := 0; i < 4; i++ {
		for j := 0; j <= i; j++ {
			c.Get(fmt.Sprintf("task-%d", i), "")
		}
	}

	c.Set("task-5", "", "answer")

	if _, ok := c.Get("task-4", ""); ok {
		t.Error("lowest-hit entry task-4 survived eviction")
	}
	if _, ok := c.Get("task-3", ""); !ok {
		t.Error("popular entry task-3 was evicted")
	}
	if c.Len() > 5 {
		t.Errorf("Len = %d, want <= 5", c.Len())
	}
}

func TestDisabledNoops(t *testing.T) {
	c := New(Config{Enabled: false, TTL: time.Hour, Capacity: 10})

	c.Set("task", "", "answer")
	if _, ok := c.Get("task", ""); ok {
		t.Fatal("disabled cache returned a hit")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d on disabled cache, want 0", c.Len())
	}
}

func TestOverwriteResetsEntry(t *testing.T) {
	c := New(DefaultConfig())

	c.Set("task", "", "first")
	c.Set("task", "", "second")

	got, ok := c.Get("task", "")
	if !ok || got != "second" {
		t.Errorf("Get = %q, %v; want %q, true", got, ok, "second")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}
