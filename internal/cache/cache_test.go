package cache

import (
	"context"
	"testing"
	"time"
)

func TestNoOpCache(t *testing.T) {
	cache := NewNoOpCache()
	ctx := context.Background()

	if err := cache.SetAnswer(ctx, "key", &Answer{Text: "The APR is 5% (Page 1)."}, time.Hour); err != nil {
		t.Errorf("Expected no error on SetAnswer, got %v", err)
	}

	answer, err := cache.GetAnswer(ctx, "key")
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if answer != nil {
		t.Errorf("Expected nil answer (no-op cache doesn't store), got %v", answer)
	}

	if err := cache.Close(); err != nil {
		t.Errorf("Expected no error on Close, got %v", err)
	}
}

func TestGenerateKey(t *testing.T) {
	base := GenerateKey("gpt-4o-mini", "prompt")

	if base != GenerateKey("gpt-4o-mini", "prompt") {
		t.Error("expected identical inputs to produce the same key")
	}
	if len(base) != 64 {
		t.Errorf("expected hex sha256 key, got %q", base)
	}

	tests := []struct {
		name          string
		model, prompt string
	}{
		{"different model", "gpt-4o", "prompt"},
		{"different prompt", "gpt-4o-mini", "prompt2"},
		{"shifted boundary", "gpt-4o-minip", "rompt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if GenerateKey(tt.model, tt.prompt) == base {
				t.Errorf("expected a different key for %s", tt.name)
			}
		})
	}
}

func TestNewRedisCacheUnreachable(t *testing.T) {
	c, err := NewRedisCache("127.0.0.1:1", "")
	if err == nil {
		t.Fatal("expected connection error for unreachable redis")
	}
	if c != nil {
		t.Errorf("expected nil cache on failure, got %v", c)
	}
}
