package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHashKey(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
	}{
		{
			name:  "single part",
			parts: []string{"test"},
		},
		{
			name:  "multiple parts",
			parts: []string{"test", "key", "with", "many", "parts"},
		},
		{
			name:  "empty parts",
			parts: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hashed1 := HashKey(tt.parts...)
			hashed2 := HashKey(tt.parts...)

			// Hash should be consistent
			if hashed1 != hashed2 {
				t.Errorf("HashKey() should be consistent, got %s and %s", hashed1, hashed2)
			}

			// Hash should be 32 characters (MD5 hex)
			if len(hashed1) != 32 {
				t.Errorf("HashKey() should return 32 character hex string, got length %d", len(hashed1))
			}
		})
	}
}

func TestCache_NamespaceKey(t *testing.T) {
	cache := &Cache{}

	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{
			name:     "simple key",
			key:      "test",
			expected: "snapfeed:test",
		},
		{
			name:     "key with colon",
			key:      "test:key",
			expected: "snapfeed:test:key",
		},
		{
			name:     "empty key",
			key:      "",
			expected: "snapfeed:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cache.namespaceKey(tt.key)
			if result != tt.expected {
				t.Errorf("namespaceKey() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestHashKey_Distinct(t *testing.T) {
	if HashKey("trending", "10", "0") == HashKey("trending", "100") {
		t.Error("HashKey() should separate parts")
	}
}

func TestCache_Disabled(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("Get() error = %v, want ErrCacheDisabled", err)
	}
	if err := c.SetJSON(ctx, "k", []int{1}, time.Second); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("SetJSON() error = %v, want ErrCacheDisabled", err)
	}
	var dest []int
	if err := c.GetJSON(ctx, "k", &dest); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("GetJSON() error = %v, want ErrCacheDisabled", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on disabled cache error = %v", err)
	}
}
