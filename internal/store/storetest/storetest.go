// Package storetest holds the behaviour every store backend must share. The
// memory store runs it in unit tests; the postgres and mongo stores run it
// under the integration build tag against a live server.
package storetest

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/snapshare/snapfeed/internal/apperr"
	"github.com/snapshare/snapfeed/internal/models"
	"github.com/snapshare/snapfeed/internal/query"
	"github.com/snapshare/snapfeed/internal/store"
)

// Opener returns an empty store for one subtest
type Opener func(t *testing.T) store.Store

// Run exercises the full store contract. Subtests run sequentially, so an
// opener may reuse one database and clear it between calls.
func Run(t *testing.T, open Opener) {
	// second precision survives every backend's timestamp type
	base := time.Now().UTC().Truncate(time.Second)

	t.Run("AddToSet", func(t *testing.T) { testAddToSet(t, open(t)) })
	t.Run("AddToSetConcurrent", func(t *testing.T) { testAddToSetConcurrent(t, open(t)) })
	t.Run("TrimAndPull", func(t *testing.T) { testTrimAndPull(t, open(t)) })
	t.Run("PullFromAll", func(t *testing.T) { testPullFromAll(t, open(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, open(t)) })
	t.Run("Posts", func(t *testing.T) { testPosts(t, open(t), base) })
	t.Run("FindPosts", func(t *testing.T) { testFindPosts(t, open(t), base) })
	t.Run("AdjustCounter", func(t *testing.T) { testAdjustCounter(t, open(t), base) })
	t.Run("Reposts", func(t *testing.T) { testReposts(t, open(t), base) })
	t.Run("Topics", func(t *testing.T) { testTopics(t, open(t), base) })
}

func wantKind(t *testing.T, what string, err error, kind apperr.Kind) {
	t.Helper()
	if got := apperr.KindOf(err); got != kind {
		t.Errorf("%s error = %v (%s), want %s", what, err, got, kind)
	}
}

func field(t *testing.T, s store.Store, userID string, f models.UserField) []string {
	t.Helper()
	u, err := s.GetUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetUser(%s) error = %v", userID, err)
	}
	return u.Field(f)
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func ensure(t *testing.T, s store.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := s.EnsureUser(context.Background(), id); err != nil {
			t.Fatalf("EnsureUser(%s) error = %v", id, err)
		}
	}
}

func add(t *testing.T, s store.Store, userID string, f models.UserField, values ...string) {
	t.Helper()
	for _, v := range values {
		if _, err := s.AddToSet(context.Background(), userID, f, v); err != nil {
			t.Fatalf("AddToSet(%s, %s) error = %v", f, v, err)
		}
	}
}

func testAddToSet(t *testing.T, s store.Store) {
	ctx := context.Background()
	ensure(t, s, "alice")

	added, err := s.AddToSet(ctx, "alice", models.FieldLiked, "p1")
	if err != nil || !added {
		t.Fatalf("first AddToSet() = %v, %v; want true, nil", added, err)
	}
	added, err = s.AddToSet(ctx, "alice", models.FieldLiked, "p1")
	if err != nil || added {
		t.Fatalf("second AddToSet() = %v, %v; want false, nil", added, err)
	}
	if got := field(t, s, "alice", models.FieldLiked); !equal(got, []string{"p1"}) {
		t.Errorf("liked = %v, want [p1]", got)
	}

	_, err = s.AddToSet(ctx, "ghost", models.FieldLiked, "p1")
	wantKind(t, "AddToSet() on missing user", err, apperr.KindNotFound)
	_, err = s.AddToSet(ctx, "alice", models.UserField("nope"), "p1")
	wantKind(t, "AddToSet() on unknown field", err, apperr.KindInvalidArgument)
}

func testAddToSetConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	ensure(t, s, "alice")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added, err := s.AddToSet(ctx, "alice", models.FieldFeed, "p1")
			if err != nil {
				t.Errorf("AddToSet() error = %v", err)
				return
			}
			if added {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("concurrent AddToSet() winners = %d, want 1", wins)
	}
	if got := field(t, s, "alice", models.FieldFeed); len(got) != 1 {
		t.Errorf("feed = %v, want one entry", got)
	}
}

func testTrimAndPull(t *testing.T, s store.Store) {
	ctx := context.Background()
	ensure(t, s, "bob")
	add(t, s, "bob", models.FieldFeed, "a", "b", "c", "d", "e")

	evicted, err := s.Trim(ctx, "bob", models.FieldFeed, 3)
	if err != nil || evicted != 2 {
		t.Fatalf("Trim() = %d, %v; want 2, nil", evicted, err)
	}
	if got := field(t, s, "bob", models.FieldFeed); !equal(got, []string{"c", "d", "e"}) {
		t.Fatalf("feed after Trim = %v, want [c d e]", got)
	}
	if evicted, err = s.Trim(ctx, "bob", models.FieldFeed, 3); err != nil || evicted != 0 {
		t.Errorf("Trim() within bound = %d, %v; want 0, nil", evicted, err)
	}

	removed, err := s.Pull(ctx, "bob", models.FieldFeed, "c", "e", "zzz")
	if err != nil || removed != 2 {
		t.Fatalf("Pull() = %d, %v; want 2, nil", removed, err)
	}
	if got := field(t, s, "bob", models.FieldFeed); !equal(got, []string{"d"}) {
		t.Errorf("feed after Pull = %v, want [d]", got)
	}
	if removed, err = s.Pull(ctx, "bob", models.FieldFeed, "zzz"); err != nil || removed != 0 {
		t.Errorf("Pull() of absent value = %d, %v; want 0, nil", removed, err)
	}

	_, err = s.Trim(ctx, "ghost", models.FieldFeed, 3)
	wantKind(t, "Trim() on missing user", err, apperr.KindNotFound)
	_, err = s.Pull(ctx, "ghost", models.FieldFeed, "d")
	wantKind(t, "Pull() on missing user", err, apperr.KindNotFound)
}

func testPullFromAll(t *testing.T, s store.Store) {
	ctx := context.Background()
	ensure(t, s, "alice", "bob")
	add(t, s, "alice", models.FieldLiked, "p1", "p2")
	add(t, s, "alice", models.FieldFeed, "p1")
	add(t, s, "bob", models.FieldFeed, "p2", "p1")
	add(t, s, "bob", models.FieldFavorites, "p1")

	if err := s.PullFromAll(ctx, "p1", models.FieldLiked, models.FieldFeed); err != nil {
		t.Fatalf("PullFromAll() error = %v", err)
	}

	tests := []struct {
		user  string
		field models.UserField
		want  []string
	}{
		{"alice", models.FieldLiked, []string{"p2"}},
		{"alice", models.FieldFeed, []string{}},
		{"bob", models.FieldFeed, []string{"p2"}},
		{"bob", models.FieldFavorites, []string{"p1"}},
	}
	for _, tt := range tests {
		if got := field(t, s, tt.user, tt.field); !equal(got, tt.want) {
			t.Errorf("%s.%s = %v, want %v", tt.user, tt.field, got, tt.want)
		}
	}
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetUser(ctx, "carol")
	wantKind(t, "GetUser() before EnsureUser", err, apperr.KindNotFound)

	u, err := s.EnsureUser(ctx, "carol")
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	for _, f := range models.UserFields {
		if arr := u.Field(f); arr == nil || len(arr) != 0 {
			t.Errorf("new user %s = %v, want empty", f, arr)
		}
	}

	add(t, s, "carol", models.FieldFollowers, "dave")
	u, err = s.EnsureUser(ctx, "carol")
	if err != nil {
		t.Fatalf("second EnsureUser() error = %v", err)
	}
	if !equal(u.Followers, []string{"dave"}) {
		t.Errorf("EnsureUser() reset followers to %v", u.Followers)
	}

	if err := s.DeleteUser(ctx, "carol"); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	_, err = s.GetUser(ctx, "carol")
	wantKind(t, "GetUser() after DeleteUser", err, apperr.KindNotFound)
	wantKind(t, "second DeleteUser()", s.DeleteUser(ctx, "carol"), apperr.KindNotFound)
}

func testPosts(t *testing.T, s store.Store, base time.Time) {
	ctx := context.Background()
	p := &models.Post{ID: "p1", AuthorID: "alice", Text: "hello #go", Hashtags: []string{"#go"}, Timestamp: base}
	if err := s.InsertPost(ctx, p); err != nil {
		t.Fatalf("InsertPost() error = %v", err)
	}
	wantKind(t, "duplicate InsertPost()", s.InsertPost(ctx, p), apperr.KindConflict)

	got, err := s.GetPost(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPost() error = %v", err)
	}
	if got.AuthorID != "alice" || got.Text != "hello #go" || !got.Timestamp.Equal(base) || !equal(got.Hashtags, []string{"#go"}) {
		t.Errorf("GetPost() = %+v", got)
	}
	_, err = s.GetPost(ctx, "missing")
	wantKind(t, "GetPost() of missing post", err, apperr.KindNotFound)

	text, private := "edited", true
	got, err = s.UpdatePost(ctx, "p1", models.PostPatch{Text: &text, IsPrivate: &private})
	if err != nil {
		t.Fatalf("UpdatePost() error = %v", err)
	}
	if got.Text != "edited" || !got.IsPrivate || got.AuthorID != "alice" || !equal(got.Hashtags, []string{"#go"}) {
		t.Errorf("UpdatePost() = %+v", got)
	}
	_, err = s.UpdatePost(ctx, "missing", models.PostPatch{Text: &text})
	wantKind(t, "UpdatePost() of missing post", err, apperr.KindNotFound)

	if err := s.InsertPost(ctx, &models.Post{ID: "p2", AuthorID: "bob", Text: "two", Timestamp: base}); err != nil {
		t.Fatal(err)
	}
	posts, err := s.GetPosts(ctx, []string{"p2", "missing", "p1"})
	if err != nil {
		t.Fatalf("GetPosts() error = %v", err)
	}
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	if !equal(ids, []string{"p1", "p2"}) {
		t.Errorf("GetPosts() = %v, want [p1 p2]", ids)
	}
	if posts, err := s.GetPosts(ctx, nil); err != nil || len(posts) != 0 {
		t.Errorf("GetPosts(nil) = %v, %v", posts, err)
	}

	if err := s.DeletePost(ctx, "p1"); err != nil {
		t.Fatalf("DeletePost() error = %v", err)
	}
	_, err = s.GetPost(ctx, "p1")
	wantKind(t, "GetPost() after DeletePost", err, apperr.KindNotFound)
	wantKind(t, "second DeletePost()", s.DeletePost(ctx, "p1"), apperr.KindNotFound)
}

func testFindPosts(t *testing.T, s store.Store, base time.Time) {
	ctx := context.Background()
	seed := []*models.Post{
		{ID: "p1", AuthorID: "alice", Text: "learning go", Hashtags: []string{"#go"}},
		{ID: "p2", AuthorID: "bob", Text: "rust rocks", Hashtags: []string{"#rust"}},
		{ID: "p3", AuthorID: "alice", Text: "secret", IsPrivate: true},
		{ID: "p4", AuthorID: "alice", Text: "go and rust", Hashtags: []string{"#go", "#rust"}},
		{ID: "p5", AuthorID: "bob", Text: "hidden 100%", IsBlocked: true},
	}
	for i, p := range seed {
		p.Timestamp = base.Add(time.Duration(i) * time.Minute)
		if err := s.InsertPost(ctx, p); err != nil {
			t.Fatalf("InsertPost(%s) error = %v", p.ID, err)
		}
	}

	tests := []struct {
		name string
		pred query.Predicate
		opts store.FindOptions
		want []string
	}{
		{name: "newest first", pred: query.True(), want: []string{"p5", "p4", "p3", "p2", "p1"}},
		{name: "oldest first", pred: query.True(), opts: store.FindOptions{OrderBy: store.OldestFirst}, want: []string{"p1", "p2", "p3", "p4", "p5"}},
		{name: "skip and limit", pred: query.True(), opts: store.FindOptions{Skip: 1, Limit: 2}, want: []string{"p4", "p3"}},
		{name: "skip past end", pred: query.True(), opts: store.FindOptions{Skip: 10}, want: []string{}},
		{name: "nothing", pred: query.False(), want: []string{}},
		{name: "author", pred: query.Equals(query.FieldAuthor, "bob"), want: []string{"p5", "p2"}},
		{name: "hashtag element", pred: query.Equals(query.FieldHashtags, "#go"), want: []string{"p4", "p1"}},
		{name: "text substring", pred: query.Contains(query.FieldText, "rust"), want: []string{"p4", "p2"}},
		{name: "literal percent", pred: query.Contains(query.FieldText, "100%"), want: []string{"p5"}},
		{
			name: "public unblocked",
			pred: query.ForVisibility(query.Filter{}, query.Visibility{Public: true}),
			want: []string{"p4", "p2", "p1"},
		},
		{
			name: "author filter any hashtag",
			pred: query.ForVisibility(query.Filter{Authors: []string{"alice"}, Hashtags: []string{"#rust", "#go"}}, query.Visibility{Public: true}),
			want: []string{"p4", "p1"},
		},
		{
			name: "author or blocked",
			pred: query.Or(query.Equals(query.FieldAuthor, "alice"), query.Equals(query.FieldIsBlocked, true)),
			want: []string{"p5", "p4", "p3", "p1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FindPosts(ctx, tt.pred, tt.opts)
			if err != nil {
				t.Fatalf("FindPosts() error = %v", err)
			}
			ids := make([]string, 0, len(got))
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			if !equal(ids, tt.want) {
				t.Errorf("FindPosts() = %v, want %v", ids, tt.want)
			}
		})
	}
}

func testAdjustCounter(t *testing.T, s store.Store, base time.Time) {
	ctx := context.Background()
	if err := s.InsertPost(ctx, &models.Post{ID: "p1", AuthorID: "alice", Text: "x", Timestamp: base}); err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		field models.CounterField
		delta int64
	}{
		{models.CounterLikes, 1},
		{models.CounterLikes, 1},
		{models.CounterLikes, -5},
		{models.CounterReposts, 2},
		{models.CounterReposts, -1},
	}
	for _, st := range steps {
		if err := s.AdjustCounter(ctx, "p1", st.field, st.delta); err != nil {
			t.Fatalf("AdjustCounter(%s, %d) error = %v", st.field, st.delta, err)
		}
	}
	p, err := s.GetPost(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.LikeCount != 0 || p.RepostCount != 1 {
		t.Errorf("counters = likes %d reposts %d, want 0 and 1", p.LikeCount, p.RepostCount)
	}

	wantKind(t, "AdjustCounter() on missing post", s.AdjustCounter(ctx, "missing", models.CounterLikes, 1), apperr.KindNotFound)
	wantKind(t, "AdjustCounter() on unknown counter", s.AdjustCounter(ctx, "p1", models.CounterField("views"), 1), apperr.KindInvalidArgument)
}

func testReposts(t *testing.T, s store.Store, base time.Time) {
	ctx := context.Background()
	seed := []*models.Repost{
		{ID: "r2", UserID: "carol", PostID: "p1", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "r1", UserID: "bob", PostID: "p1", CreatedAt: base.Add(time.Minute)},
		{ID: "r3", UserID: "bob", PostID: "p2", CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, r := range seed {
		if err := s.InsertRepost(ctx, r); err != nil {
			t.Fatalf("InsertRepost(%s) error = %v", r.ID, err)
		}
	}
	dup := &models.Repost{ID: "r9", UserID: "bob", PostID: "p1", CreatedAt: base}
	wantKind(t, "duplicate InsertRepost()", s.InsertRepost(ctx, dup), apperr.KindConflict)

	r, err := s.GetRepost(ctx, "bob", "p1")
	if err != nil || r.ID != "r1" || !r.CreatedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("GetRepost() = %+v, %v", r, err)
	}
	_, err = s.GetRepost(ctx, "carol", "p2")
	wantKind(t, "GetRepost() of missing pair", err, apperr.KindNotFound)

	byPost, err := s.FindRepostsByPost(ctx, "p1")
	if err != nil {
		t.Fatalf("FindRepostsByPost() error = %v", err)
	}
	if len(byPost) != 2 || byPost[0].ID != "r1" || byPost[1].ID != "r2" {
		t.Errorf("FindRepostsByPost() = %+v, want r1 then r2", byPost)
	}

	some, err := s.GetReposts(ctx, []string{"r3", "missing"})
	if err != nil || len(some) != 1 || some[0].ID != "r3" {
		t.Errorf("GetReposts() = %+v, %v", some, err)
	}

	if err := s.DeleteRepost(ctx, "r3"); err != nil {
		t.Fatalf("DeleteRepost() error = %v", err)
	}
	wantKind(t, "second DeleteRepost()", s.DeleteRepost(ctx, "r3"), apperr.KindNotFound)

	if err := s.DeleteRepostsByPost(ctx, "p1"); err != nil {
		t.Fatalf("DeleteRepostsByPost() error = %v", err)
	}
	if left, err := s.FindRepostsByPost(ctx, "p1"); err != nil || len(left) != 0 {
		t.Errorf("reposts of p1 after delete = %+v, %v", left, err)
	}
	if err := s.DeleteRepostsByPost(ctx, "p1"); err != nil {
		t.Errorf("DeleteRepostsByPost() with nothing left error = %v", err)
	}
}

func testTopics(t *testing.T, s store.Store, now time.Time) {
	ctx := context.Background()
	mentions := []*models.TopicMention{
		{ID: "m1", Topic: "#old", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "m2", Topic: "#go", CreatedAt: now.Add(-90 * time.Minute)},
		{ID: "m3", Topic: "#go", CreatedAt: now.Add(-10 * time.Minute)},
		{ID: "m4", Topic: "#go", CreatedAt: now.Add(-5 * time.Minute)},
		{ID: "m5", Topic: "#rust", CreatedAt: now.Add(-20 * time.Minute)},
	}
	for _, m := range mentions {
		if err := s.RecordMention(ctx, m); err != nil {
			t.Fatalf("RecordMention(%s) error = %v", m.ID, err)
		}
	}

	since := now.Add(-time.Hour)
	check := func(stage string) {
		t.Helper()
		topics, err := s.LiveTopics(ctx, since)
		if err != nil {
			t.Fatalf("%s: LiveTopics() error = %v", stage, err)
		}
		got := make(map[string]models.TopicCount, len(topics))
		for _, tc := range topics {
			got[tc.Topic] = tc
		}
		if len(got) != 2 {
			t.Fatalf("%s: LiveTopics() = %+v, want #go and #rust", stage, topics)
		}
		if g := got["#go"]; g.MentionCount != 2 || !g.LastMentioned.Equal(now.Add(-5*time.Minute)) {
			t.Errorf("%s: #go = %+v, want 2 mentions last at %v", stage, g, now.Add(-5*time.Minute))
		}
		if r := got["#rust"]; r.MentionCount != 1 {
			t.Errorf("%s: #rust = %+v, want 1 mention", stage, r)
		}
	}
	check("before purge")

	removed, err := s.PurgeExpired(ctx, since)
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	// m1, m2 and the #old topic
	if removed != 3 {
		t.Errorf("PurgeExpired() removed %d, want 3", removed)
	}
	check("after purge")

	if removed, err = s.PurgeExpired(ctx, since); err != nil || removed != 0 {
		t.Errorf("second PurgeExpired() = %d, %v; want 0, nil", removed, err)
	}
}
