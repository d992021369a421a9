package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Kind
	}{
		{"not found", NotFound("get_post", "post %s does not exist", "p1"), KindNotFound},
		{"conflict", Conflict("like", "already liked"), KindConflict},
		{"invalid", Invalid("create_post", "text too long"), KindInvalidArgument},
		{"unavailable", Unavailable("find_posts", errors.New("connection refused")), KindStoreUnavailable},
		{"wrapped", fmt.Errorf("outer: %w", NotFound("get_user", "missing")), KindNotFound},
		{"plain", errors.New("boom"), KindUnknown},
		{"nil", nil, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.expected {
				t.Errorf("KindOf() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestErrorsIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Conflict("subscribe", "already subscribed"))
	if !errors.Is(err, ErrConflict) {
		t.Error("Expected errors.Is to match ErrConflict")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("Conflict should not match ErrNotFound")
	}
}

func TestUnavailableKeepsClassifiedErrors(t *testing.T) {
	inner := NotFound("get_post", "missing")
	if got := Unavailable("delete_post", inner); got != inner {
		t.Errorf("Unavailable() should pass classified errors through, got %v", got)
	}
	if Unavailable("op", nil) != nil {
		t.Error("Unavailable(nil) should be nil")
	}
}

func TestPublicMessage(t *testing.T) {
	err := Unavailable("find_posts", errors.New("dial tcp 10.0.0.1:5432: secret detail"))
	if got := PublicMessage(err); got != "store unavailable" {
		t.Errorf("PublicMessage() leaked internal text: %q", got)
	}
	if got := PublicMessage(Invalid("create_post", "text is larger than 300 chars")); got != "text is larger than 300 chars" {
		t.Errorf("PublicMessage() = %q", got)
	}
	if got := PublicMessage(errors.New("x")); got != "internal error" {
		t.Errorf("PublicMessage() = %q", got)
	}
}
