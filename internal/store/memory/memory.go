// Package memory is an in-process store used by tests and single-node runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/snapshare/snapfeed/internal/apperr"
	"github.com/snapshare/snapfeed/internal/models"
	"github.com/snapshare/snapfeed/internal/query"
	"github.com/snapshare/snapfeed/internal/store"
)

// Store keeps every collection in maps guarded by a single mutex.
// No lock is held once a call returns.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	users    map[string]*models.User
	posts    map[string]*models.Post
	reposts  map[string]*models.Repost
	mentions map[string]*models.TopicMention
	topics   map[string]*models.TrendingTopic
}

var _ store.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		now:      func() time.Time { return time.Now().UTC() },
		users:    make(map[string]*models.User),
		posts:    make(map[string]*models.Post),
		reposts:  make(map[string]*models.Repost),
		mentions: make(map[string]*models.TopicMention),
		topics:   make(map[string]*models.TrendingTopic),
	}
}

func live(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return apperr.Unavailable(op, err)
	}
	return nil
}

// EnsureUser returns the user, creating it on first reference
func (s *Store) EnsureUser(ctx context.Context, id string) (*models.User, error) {
	if err := live(ctx, "EnsureUser"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		u = models.NewUser(id, s.now())
		s.users[id] = u
	}
	return u.Clone(), nil
}

// GetUser returns a copy of the user
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	if err := live(ctx, "GetUser"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("GetUser", "user %s not found", id)
	}
	return u.Clone(), nil
}

// DeleteUser removes the user document only
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if err := live(ctx, "DeleteUser"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return apperr.NotFound("DeleteUser", "user %s not found", id)
	}
	delete(s.users, id)
	return nil
}

// AddToSet appends value to the array unless present
func (s *Store) AddToSet(ctx context.Context, userID string, field models.UserField, value string) (bool, error) {
	if err := live(ctx, "AddToSet"); err != nil {
		return false, err
	}
	if !field.Valid() {
		return false, apperr.Invalid("AddToSet", "unknown field %q", field)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return false, apperr.NotFound("AddToSet", "user %s not found", userID)
	}
	if u.Has(field, value) {
		return false, nil
	}
	u.SetField(field, append(u.Field(field), value))
	return true, nil
}

// Pull removes every listed value from the array
func (s *Store) Pull(ctx context.Context, userID string, field models.UserField, values ...string) (int, error) {
	if err := live(ctx, "Pull"); err != nil {
		return 0, err
	}
	if !field.Valid() {
		return 0, apperr.Invalid("Pull", "unknown field %q", field)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, apperr.NotFound("Pull", "user %s not found", userID)
	}
	kept, removed := without(u.Field(field), values)
	u.SetField(field, kept)
	return removed, nil
}

// Trim drops the oldest entries beyond maxLen
func (s *Store) Trim(ctx context.Context, userID string, field models.UserField, maxLen int) (int, error) {
	if err := live(ctx, "Trim"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, apperr.NotFound("Trim", "user %s not found", userID)
	}
	arr := u.Field(field)
	if maxLen < 0 || len(arr) <= maxLen {
		return 0, nil
	}
	evicted := len(arr) - maxLen
	u.SetField(field, append([]string{}, arr[evicted:]...))
	return evicted, nil
}

// PullFromAll removes value from the named arrays of every user
func (s *Store) PullFromAll(ctx context.Context, value string, fields ...models.UserField) error {
	if err := live(ctx, "PullFromAll"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		for _, f := range fields {
			kept, _ := without(u.Field(f), []string{value})
			u.SetField(f, kept)
		}
	}
	return nil
}

func without(arr, values []string) ([]string, int) {
	drop := make(map[string]struct{}, len(values))
	for _, v := range values {
		drop[v] = struct{}{}
	}
	kept := make([]string, 0, len(arr))
	for _, v := range arr {
		if _, ok := drop[v]; ok {
			continue
		}
		kept = append(kept, v)
	}
	return kept, len(arr) - len(kept)
}

// InsertPost stores a copy of post
func (s *Store) InsertPost(ctx context.Context, post *models.Post) error {
	if err := live(ctx, "InsertPost"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[post.ID]; ok {
		return apperr.Conflict("InsertPost", "post %s already exists", post.ID)
	}
	s.posts[post.ID] = post.Clone()
	return nil
}

// GetPost returns a copy of the post
func (s *Store) GetPost(ctx context.Context, id string) (*models.Post, error) {
	if err := live(ctx, "GetPost"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, apperr.NotFound("GetPost", "post %s not found", id)
	}
	return p.Clone(), nil
}

// GetPosts returns the existing posts among ids
func (s *Store) GetPosts(ctx context.Context, ids []string) ([]*models.Post, error) {
	if err := live(ctx, "GetPosts"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Post, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := s.posts[id]; ok {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

// UpdatePost applies patch and returns the updated post
func (s *Store) UpdatePost(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error) {
	if err := live(ctx, "UpdatePost"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, apperr.NotFound("UpdatePost", "post %s not found", id)
	}
	patch.Apply(p)
	return p.Clone(), nil
}

// DeletePost removes the post document only
func (s *Store) DeletePost(ctx context.Context, id string) error {
	if err := live(ctx, "DeletePost"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return apperr.NotFound("DeletePost", "post %s not found", id)
	}
	delete(s.posts, id)
	return nil
}

// FindPosts evaluates pred over every post
func (s *Store) FindPosts(ctx context.Context, pred query.Predicate, opts store.FindOptions) ([]*models.Post, error) {
	if err := live(ctx, "FindPosts"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	matched := make([]*models.Post, 0)
	for _, p := range s.posts {
		if pred.Match(p) {
			matched = append(matched, p.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			if opts.OrderBy == store.OldestFirst {
				return a.Timestamp.Before(b.Timestamp)
			}
			return a.Timestamp.After(b.Timestamp)
		}
		return a.ID < b.ID
	})

	if opts.Skip > 0 {
		if opts.Skip >= len(matched) {
			return []*models.Post{}, nil
		}
		matched = matched[opts.Skip:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

// AdjustCounter moves a paired counter by delta, flooring at zero
func (s *Store) AdjustCounter(ctx context.Context, postID string, field models.CounterField, delta int64) error {
	if err := live(ctx, "AdjustCounter"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return apperr.NotFound("AdjustCounter", "post %s not found", postID)
	}
	switch field {
	case models.CounterLikes:
		p.LikeCount = floor(p.LikeCount + delta)
	case models.CounterReposts:
		p.RepostCount = floor(p.RepostCount + delta)
	default:
		return apperr.Invalid("AdjustCounter", "unknown counter %q", field)
	}
	return nil
}

func floor(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// InsertRepost stores the repost unless the pair already exists
func (s *Store) InsertRepost(ctx context.Context, repost *models.Repost) error {
	if err := live(ctx, "InsertRepost"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reposts {
		if r.UserID == repost.UserID && r.PostID == repost.PostID {
			return apperr.Conflict("InsertRepost", "post %s already reposted by %s", repost.PostID, repost.UserID)
		}
	}
	c := *repost
	s.reposts[repost.ID] = &c
	return nil
}

// GetRepost finds the repost of a pair
func (s *Store) GetRepost(ctx context.Context, userID, postID string) (*models.Repost, error) {
	if err := live(ctx, "GetRepost"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.reposts {
		if r.UserID == userID && r.PostID == postID {
			c := *r
			return &c, nil
		}
	}
	return nil, apperr.NotFound("GetRepost", "post %s not reposted by %s", postID, userID)
}

// GetReposts returns the existing reposts among ids
func (s *Store) GetReposts(ctx context.Context, ids []string) ([]*models.Repost, error) {
	if err := live(ctx, "GetReposts"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Repost, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.reposts[id]; ok {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

// FindRepostsByPost returns every repost of a post
func (s *Store) FindRepostsByPost(ctx context.Context, postID string) ([]*models.Repost, error) {
	if err := live(ctx, "FindRepostsByPost"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Repost, 0)
	for _, r := range s.reposts {
		if r.PostID == postID {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeleteRepost removes one repost
func (s *Store) DeleteRepost(ctx context.Context, id string) error {
	if err := live(ctx, "DeleteRepost"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reposts[id]; !ok {
		return apperr.NotFound("DeleteRepost", "repost %s not found", id)
	}
	delete(s.reposts, id)
	return nil
}

// DeleteRepostsByPost removes every repost of a post
func (s *Store) DeleteRepostsByPost(ctx context.Context, postID string) error {
	if err := live(ctx, "DeleteRepostsByPost"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.reposts {
		if r.PostID == postID {
			delete(s.reposts, id)
		}
	}
	return nil
}

// RecordMention inserts the mention and refreshes its topic
func (s *Store) RecordMention(ctx context.Context, mention *models.TopicMention) error {
	if err := live(ctx, "RecordMention"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *mention
	s.mentions[mention.ID] = &c
	t, ok := s.topics[mention.Topic]
	if !ok {
		t = &models.TrendingTopic{Topic: mention.Topic}
		s.topics[mention.Topic] = t
	}
	t.Mentions = append(t.Mentions, mention.ID)
	if mention.CreatedAt.After(t.LastMentioned) {
		t.LastMentioned = mention.CreatedAt
	}
	return nil
}

// LiveTopics counts mentions newer than since
func (s *Store) LiveTopics(ctx context.Context, since time.Time) ([]models.TopicCount, error) {
	if err := live(ctx, "LiveTopics"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TopicCount, 0, len(s.topics))
	for _, t := range s.topics {
		if !t.LastMentioned.After(since) {
			continue
		}
		var n int64
		for _, id := range t.Mentions {
			if m, ok := s.mentions[id]; ok && m.CreatedAt.After(since) {
				n++
			}
		}
		if n > 0 {
			out = append(out, models.TopicCount{Topic: t.Topic, MentionCount: n, LastMentioned: t.LastMentioned})
		}
	}
	return out, nil
}

// PurgeExpired deletes mentions and topics not newer than before
func (s *Store) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	if err := live(ctx, "PurgeExpired"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, m := range s.mentions {
		if !m.CreatedAt.After(before) {
			delete(s.mentions, id)
			removed++
		}
	}
	for name, t := range s.topics {
		if !t.LastMentioned.After(before) {
			delete(s.topics, name)
			removed++
			continue
		}
		kept := t.Mentions[:0]
		for _, id := range t.Mentions {
			if _, ok := s.mentions[id]; ok {
				kept = append(kept, id)
			}
		}
		t.Mentions = kept
	}
	return removed, nil
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return live(ctx, "Ping")
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}
