package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/snapshare/snapfeed/internal/apperr"
	"github.com/snapshare/snapfeed/internal/models"
	"github.com/snapshare/snapfeed/internal/store/memory"
)

var epoch = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, opts Options) (*Engine, *memory.Store) {
	t.Helper()
	st := memory.New()
	if opts.MaxLimit == 0 {
		opts.MaxLimit = 100
	}
	return NewEngine(st, opts, zap.NewNop()), st
}

// author writes a post directly to the store, the way the posts service does
func author(t *testing.T, st *memory.Store, id, authorID string, private bool, minute int) *models.Post {
	t.Helper()
	ctx := context.Background()
	if _, err := st.EnsureUser(ctx, authorID); err != nil {
		t.Fatal(err)
	}
	p := &models.Post{ID: id, AuthorID: authorID, Text: id, IsPrivate: private, Timestamp: epoch.Add(time.Duration(minute) * time.Minute)}
	if err := st.InsertPost(ctx, p); err != nil {
		t.Fatal(err)
	}
	field := models.FieldPublic
	if private {
		field = models.FieldPrivate
	}
	if _, err := st.AddToSet(ctx, authorID, field, id); err != nil {
		t.Fatal(err)
	}
	return p
}

func feedIDs(t *testing.T, e *Engine, user string) []string {
	t.Helper()
	posts, err := e.GetFeed(context.Background(), user, 100, 0)
	if err != nil {
		t.Fatalf("GetFeed() error = %v", err)
	}
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestEngine_FanoutRespectsBound(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t, Options{MaxFeed: 5, Concurrency: 4})
	if err := e.Subscribe(ctx, "bob", "alice"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for i := 0; i < 12; i++ {
		p := author(t, st, fmt.Sprintf("p%02d", i), "alice", false, i)
		if _, err := e.OnPostCreated(ctx, p); err != nil {
			t.Fatalf("OnPostCreated() error = %v", err)
		}
	}

	u, _ := st.GetUser(ctx, "bob")
	if len(u.Feed) != 5 {
		t.Fatalf("feed length = %d, want 5", len(u.Feed))
	}
	if u.Feed[0] != "p07" || u.Feed[4] != "p11" {
		t.Errorf("feed = %v, want the five newest", u.Feed)
	}
}

func TestEngine_FanoutSkipsFailingFollower(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t, Options{MaxFeed: 10, Concurrency: 2})
	e.Subscribe(ctx, "bob", "alice")
	e.Subscribe(ctx, "carol", "alice")
	st.DeleteUser(ctx, "carol")

	p := author(t, st, "p1", "alice", false, 0)
	n, err := e.OnPostCreated(ctx, p)
	if err != nil {
		t.Fatalf("OnPostCreated() error = %v", err)
	}
	if n != 1 {
		t.Errorf("delivered = %d, want 1", n)
	}
	if !contains(feedIDs(t, e, "bob"), "p1") {
		t.Error("bob should still receive the post")
	}
}

func TestEngine_SubscribeErrors(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, Options{})

	if err := e.Subscribe(ctx, "alice", "alice"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("self Subscribe() error = %v, want conflict", err)
	}
	if err := e.Subscribe(ctx, "bob", "alice"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := e.Subscribe(ctx, "bob", "alice"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("second Subscribe() error = %v, want conflict", err)
	}
	if err := e.Unsubscribe(ctx, "carol", "alice"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Unsubscribe() of non-follower error = %v, want not found", err)
	}
}

func TestEngine_SubscribeCopiesExistingPosts(t *testing.T) {
	tests := []struct {
		name        string
		copyPrivate bool
		wantPrivate bool
	}{
		{name: "private copied", copyPrivate: true, wantPrivate: true},
		{name: "public only", copyPrivate: false, wantPrivate: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e, st := newEngine(t, Options{MaxFeed: 10, CopyPrivateOnSubscribe: tt.copyPrivate})
			author(t, st, "pub", "alice", false, 0)
			author(t, st, "priv", "alice", true, 1)

			if err := e.Subscribe(ctx, "bob", "alice"); err != nil {
				t.Fatalf("Subscribe() error = %v", err)
			}
			ids := feedIDs(t, e, "bob")
			if !contains(ids, "pub") {
				t.Error("public post should be copied")
			}
			if contains(ids, "priv") != tt.wantPrivate {
				t.Errorf("private post copied = %v, want %v", !tt.wantPrivate, tt.wantPrivate)
			}
		})
	}
}

func TestEngine_SubscribeBackfillKeepsNewest(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t, Options{MaxFeed: 3})
	for i := 0; i < 6; i++ {
		author(t, st, fmt.Sprintf("p%d", i), "alice", false, i)
	}
	e.Subscribe(ctx, "bob", "alice")

	ids := feedIDs(t, e, "bob")
	want := []string{"p5", "p4", "p3"}
	if len(ids) != len(want) {
		t.Fatalf("feed = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("feed = %v, want %v", ids, want)
		}
	}
}

func TestEngine_UnsubscribeKeepsOtherAuthors(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t, Options{MaxFeed: 10, CopyPrivateOnSubscribe: true})
	e.Subscribe(ctx, "bob", "alice")
	e.Subscribe(ctx, "bob", "dave")

	a1 := author(t, st, "a1", "alice", false, 0)
	d1 := author(t, st, "d1", "dave", false, 1)
	e.OnPostCreated(ctx, a1)
	e.OnPostCreated(ctx, d1)

	if err := e.Unsubscribe(ctx, "bob", "alice"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	ids := feedIDs(t, e, "bob")
	if contains(ids, "a1") {
		t.Error("alice's post should be removed")
	}
	if !contains(ids, "d1") {
		t.Error("dave's post should remain")
	}
	following, _ := e.IsFollowing(ctx, "bob", "alice")
	if following {
		t.Error("bob should no longer follow alice")
	}
}

func TestEngine_GetFeedOrderingAndFiltering(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t, Options{MaxFeed: 10})
	e.Subscribe(ctx, "bob", "alice")

	// delivered out of temporal order
	late := author(t, st, "late", "alice", false, 10)
	early := author(t, st, "early", "alice", false, 1)
	blocked := author(t, st, "blocked", "alice", false, 5)
	for _, p := range []*models.Post{late, early, blocked} {
		e.OnPostCreated(ctx, p)
	}
	yes := true
	st.UpdatePost(ctx, "blocked", models.PostPatch{IsBlocked: &yes})

	ids := feedIDs(t, e, "bob")
	if len(ids) != 2 || ids[0] != "late" || ids[1] != "early" {
		t.Errorf("feed = %v, want [late early]", ids)
	}

	if _, err := e.GetFeed(ctx, "bob", 0, 0); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("GetFeed() with zero limit error = %v, want invalid argument", err)
	}
	page, _ := e.GetFeed(ctx, "bob", 1, 1)
	if len(page) != 1 || page[0].ID != "early" {
		t.Errorf("second page = %v, want [early]", page)
	}
}

func TestEngine_PrivatePostsFanOut(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t, Options{MaxFeed: 10})
	e.Subscribe(ctx, "bob", "alice")

	p := author(t, st, "secret", "alice", true, 0)
	e.OnPostCreated(ctx, p)
	if !contains(feedIDs(t, e, "bob"), "secret") {
		t.Error("private posts should reach followers")
	}
}

func TestEngine_GetFeedUnknownUserCreatesNothing(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t, Options{MaxFeed: 10})

	if ids := feedIDs(t, e, "ghost"); len(ids) != 0 {
		t.Errorf("feed = %v, want empty", ids)
	}
	if _, err := st.GetUser(ctx, "ghost"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("GetUser() error = %v, want not found", err)
	}
}
