package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/snapshare/snapfeed/internal/models"
	"github.com/snapshare/snapfeed/internal/store/memory"
)

func TestPool_DeliversAndDrains(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t, Options{MaxFeed: 10})
	e.Subscribe(ctx, "bob", "alice")

	pool := NewPool(e, 2, 4, time.Second, zap.NewNop())
	pool.Start()

	for _, id := range []string{"p1", "p2", "p3"} {
		p := author(t, st, id, "alice", false, 0)
		if err := pool.Dispatch(ctx, p); err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	ids := feedIDs(t, e, "bob")
	if len(ids) != 3 {
		t.Errorf("feed = %v, want 3 posts", ids)
	}

	p := author(t, st, "late", "alice", false, 1)
	if err := pool.Dispatch(ctx, p); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Dispatch() after Stop error = %v, want ErrPoolClosed", err)
	}
}

func TestPool_FullQueueFallsBackInline(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t, Options{MaxFeed: 10})
	e.Subscribe(ctx, "bob", "alice")

	// no workers started and no buffer: every dispatch runs inline
	pool := NewPool(e, 1, 0, time.Second, zap.NewNop())
	p := author(t, st, "p1", "alice", false, 0)
	if err := pool.Dispatch(ctx, p); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !contains(feedIDs(t, e, "bob"), "p1") {
		t.Error("post should be delivered inline")
	}
}

func TestInline_Dispatch(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t, Options{MaxFeed: 10})
	e.Subscribe(ctx, "bob", "alice")

	p := author(t, st, "p1", "alice", false, 0)
	if err := (Inline{Engine: e}).Dispatch(ctx, p); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !contains(feedIDs(t, e, "bob"), "p1") {
		t.Error("post should be delivered")
	}
}

// gatedStore parks author lookups until released
type gatedStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	if id == "alice" {
		s.entered <- struct{}{}
		<-s.release
	}
	return s.Store.GetUser(ctx, id)
}

func TestPool_InlineFallbackDoesNotBlockStop(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	st := &gatedStore{Store: mem, entered: make(chan struct{}, 1), release: make(chan struct{})}
	e := NewEngine(st, Options{MaxFeed: 10, MaxLimit: 100}, zap.NewNop())
	p := author(t, mem, "p1", "alice", false, 0)

	pool := NewPool(e, 1, 0, time.Second, zap.NewNop())
	dispatched := make(chan error, 1)
	go func() { dispatched <- pool.Dispatch(ctx, p) }()
	<-st.entered

	stopped := make(chan error, 1)
	go func() { stopped <- pool.Stop(ctx) }()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		close(st.release)
		t.Fatal("Stop() waited on an inline fan-out")
	}

	if err := pool.Dispatch(ctx, p); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Dispatch() after Stop error = %v, want ErrPoolClosed", err)
	}

	close(st.release)
	if err := <-dispatched; err != nil {
		t.Errorf("inline Dispatch() error = %v", err)
	}
}
