package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/snapshare/snapfeed/internal/apperr"
	"github.com/snapshare/snapfeed/internal/store"
	"github.com/snapshare/snapfeed/internal/store/storetest"
)

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return New() })
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New()
	if _, err := s.EnsureUser(ctx, "alice"); !errors.Is(err, apperr.ErrStoreUnavailable) {
		t.Errorf("EnsureUser() with cancelled context error = %v, want store unavailable", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, apperr.ErrStoreUnavailable) {
		t.Errorf("Ping() with cancelled context error = %v, want store unavailable", err)
	}
}
