// Package engagement manages favorites, likes and reposts over (user, post) pairs.
package engagement

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snapshare/snapfeed/internal/apperr"
	"github.com/snapshare/snapfeed/internal/follow"
	"github.com/snapshare/snapfeed/internal/models"
	"github.com/snapshare/snapfeed/internal/query"
	"github.com/snapshare/snapfeed/internal/store"
	"github.com/snapshare/snapfeed/pkg/telemetry"
)

// set describes one engagement set and its optional paired counter
type set struct {
	name    string
	field   models.UserField
	counter models.CounterField
}

var (
	favorites = set{name: "favorite", field: models.FieldFavorites}
	likes     = set{name: "like", field: models.FieldLiked, counter: models.CounterLikes}
)

// Service implements the engagement operations
type Service struct {
	store    store.Store
	oracle   follow.Oracle
	maxLimit int
	now      func() time.Time
	logger   *zap.Logger
}

// NewService creates an engagement service
func NewService(st store.Store, oracle follow.Oracle, maxLimit int, logger *zap.Logger) *Service {
	return &Service{
		store:    st,
		oracle:   oracle,
		maxLimit: maxLimit,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

func validPair(op, userID, postID string) error {
	if userID == "" || postID == "" {
		return apperr.Invalid(op, "user and post are required")
	}
	return nil
}

// add inserts the pair; the counter moves only when the set actually changed
func (s *Service) add(ctx context.Context, op string, st set, userID, postID string) error {
	ctx, span := telemetry.StartSpan(ctx, "engagement."+op)
	err := s.doAdd(ctx, op, st, userID, postID)
	telemetry.EndSpan(span, err)
	return err
}

func (s *Service) doAdd(ctx context.Context, op string, st set, userID, postID string) error {
	if err := validPair(op, userID, postID); err != nil {
		return err
	}
	if _, err := s.store.GetPost(ctx, postID); err != nil {
		return err
	}
	if _, err := s.store.EnsureUser(ctx, userID); err != nil {
		return err
	}
	added, err := s.store.AddToSet(ctx, userID, st.field, postID)
	if err != nil {
		return err
	}
	if !added {
		return apperr.Conflict(op, "post %s already %sd by %s", postID, st.name, userID)
	}
	if st.counter != "" {
		if err := s.store.AdjustCounter(ctx, postID, st.counter, 1); err != nil {
			s.logger.Error("Paired counter update failed",
				zap.String("op", op), zap.String("post_id", postID), zap.Error(err))
			return err
		}
	}
	return nil
}

func (s *Service) remove(ctx context.Context, op string, st set, userID, postID string) error {
	ctx, span := telemetry.StartSpan(ctx, "engagement."+op)
	err := s.doRemove(ctx, op, st, userID, postID)
	telemetry.EndSpan(span, err)
	return err
}

func (s *Service) doRemove(ctx context.Context, op string, st set, userID, postID string) error {
	if err := validPair(op, userID, postID); err != nil {
		return err
	}
	removed, err := s.store.Pull(ctx, userID, st.field, postID)
	if apperr.KindOf(err) == apperr.KindNotFound || (err == nil && removed == 0) {
		return apperr.NotFound(op, "post %s is not %sd by %s", postID, st.name, userID)
	}
	if err != nil {
		return err
	}
	if st.counter != "" {
		err := s.store.AdjustCounter(ctx, postID, st.counter, -1)
		if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
			return err
		}
	}
	return nil
}

func (s *Service) contains(ctx context.Context, st set, userID, postID string) (bool, error) {
	u, err := s.store.GetUser(ctx, userID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.Has(st.field, postID), nil
}

// list returns the set's posts most recently added first, skipping posts
// the user may no longer see
func (s *Service) list(ctx context.Context, op string, st set, userID string, limit, page int) ([]*models.Post, error) {
	p, err := query.NewPage(op, limit, page, s.maxLimit)
	if err != nil {
		return nil, err
	}
	u, err := s.store.GetUser(ctx, userID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return []*models.Post{}, nil
	}
	if err != nil {
		return nil, err
	}
	ids := u.Field(st.field)
	posts, err := s.store.GetPosts(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Post, len(posts))
	for _, post := range posts {
		byID[post.ID] = post
	}
	out := make([]*models.Post, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		post, ok := byID[ids[i]]
		if !ok || !post.VisibleTo(userID) {
			continue
		}
		out = append(out, post)
	}
	return query.Slice(out, p), nil
}

// AddFavorite favorites a post
func (s *Service) AddFavorite(ctx context.Context, userID, postID string) error {
	return s.add(ctx, "AddFavorite", favorites, userID, postID)
}

// RemoveFavorite unfavorites a post
func (s *Service) RemoveFavorite(ctx context.Context, userID, postID string) error {
	return s.remove(ctx, "RemoveFavorite", favorites, userID, postID)
}

// IsFavorited reports whether the user favorited the post
func (s *Service) IsFavorited(ctx context.Context, userID, postID string) (bool, error) {
	return s.contains(ctx, favorites, userID, postID)
}

// ListFavorites pages through the user's favorites
func (s *Service) ListFavorites(ctx context.Context, userID string, limit, page int) ([]*models.Post, error) {
	return s.list(ctx, "ListFavorites", favorites, userID, limit, page)
}

// Like likes a post and increments its like_count
func (s *Service) Like(ctx context.Context, userID, postID string) error {
	return s.add(ctx, "Like", likes, userID, postID)
}

// Unlike removes a like and decrements like_count
func (s *Service) Unlike(ctx context.Context, userID, postID string) error {
	return s.remove(ctx, "Unlike", likes, userID, postID)
}

// IsLiked reports whether the user liked the post
func (s *Service) IsLiked(ctx context.Context, userID, postID string) (bool, error) {
	return s.contains(ctx, likes, userID, postID)
}

// ListLikes pages through the user's liked posts
func (s *Service) ListLikes(ctx context.Context, userID string, limit, page int) ([]*models.Post, error) {
	return s.list(ctx, "ListLikes", likes, userID, limit, page)
}

// CreateRepost reposts a post. The unique (user, post) constraint of the
// store decides concurrent duplicates.
func (s *Service) CreateRepost(ctx context.Context, userID, postID string) (*models.Repost, error) {
	const op = "CreateRepost"
	ctx, span := telemetry.StartSpan(ctx, "engagement.CreateRepost")
	r, err := s.createRepost(ctx, op, userID, postID)
	telemetry.EndSpan(span, err)
	return r, err
}

func (s *Service) createRepost(ctx context.Context, op, userID, postID string) (*models.Repost, error) {
	if err := validPair(op, userID, postID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetPost(ctx, postID); err != nil {
		return nil, err
	}
	if _, err := s.store.EnsureUser(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetRepost(ctx, userID, postID); err == nil {
		return nil, apperr.Conflict(op, "post %s already reposted by %s", postID, userID)
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}

	r := &models.Repost{ID: uuid.NewString(), UserID: userID, PostID: postID, CreatedAt: s.now()}
	if err := s.store.InsertRepost(ctx, r); err != nil {
		return nil, err
	}
	if _, err := s.store.AddToSet(ctx, userID, models.FieldReposts, r.ID); err != nil {
		return nil, err
	}
	if err := s.store.AdjustCounter(ctx, postID, models.CounterReposts, 1); err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteRepost removes the user's repost of a post
func (s *Service) DeleteRepost(ctx context.Context, userID, postID string) error {
	const op = "DeleteRepost"
	ctx, span := telemetry.StartSpan(ctx, "engagement.DeleteRepost")
	err := s.deleteRepost(ctx, op, userID, postID)
	telemetry.EndSpan(span, err)
	return err
}

func (s *Service) deleteRepost(ctx context.Context, op, userID, postID string) error {
	if err := validPair(op, userID, postID); err != nil {
		return err
	}
	r, err := s.store.GetRepost(ctx, userID, postID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRepost(ctx, r.ID); err != nil {
		return err
	}
	if _, err := s.store.Pull(ctx, userID, models.FieldReposts, r.ID); err != nil && apperr.KindOf(err) != apperr.KindNotFound {
		return err
	}
	err = s.store.AdjustCounter(ctx, postID, models.CounterReposts, -1)
	if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
		return err
	}
	return nil
}

// IsReposted reports whether the user reposted the post
func (s *Service) IsReposted(ctx context.Context, userID, postID string) (bool, error) {
	_, err := s.store.GetRepost(ctx, userID, postID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return false, nil
	}
	return err == nil, err
}

// ListReposts pages through owner's reposts, newest first, each resolved to
// its target. Reposts of private posts are shown only when the private
// request survives the follow check.
func (s *Service) ListReposts(ctx context.Context, requester, owner string, private bool, limit, page int) ([]models.Entry, error) {
	const op = "ListReposts"
	p, err := query.NewPage(op, limit, page, s.maxLimit)
	if err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, apperr.Invalid(op, "user is required")
	}
	private = follow.Resolve(ctx, s.oracle, s.logger, requester, owner, private)

	entries, err := s.ResolveReposts(ctx, owner)
	if err != nil {
		return nil, err
	}
	visible := entries[:0]
	for _, e := range entries {
		if e.Post.IsBlocked || (e.Post.IsPrivate && !private) {
			continue
		}
		visible = append(visible, e)
	}
	return query.Slice(visible, p), nil
}

// ResolveReposts loads every repost of owner with its target post, newest
// first. Reposts whose target is gone are dropped.
func (s *Service) ResolveReposts(ctx context.Context, owner string) ([]models.Entry, error) {
	u, err := s.store.GetUser(ctx, owner)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return []models.Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	reposts, err := s.store.GetReposts(ctx, u.Reposts)
	if err != nil {
		return nil, err
	}
	targetIDs := make([]string, 0, len(reposts))
	for _, r := range reposts {
		targetIDs = append(targetIDs, r.PostID)
	}
	targets, err := s.store.GetPosts(ctx, targetIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Post, len(targets))
	for _, t := range targets {
		byID[t.ID] = t
	}
	entries := make([]models.Entry, 0, len(reposts))
	for _, r := range reposts {
		if t, ok := byID[r.PostID]; ok {
			entries = append(entries, models.RepostEntry(r, t))
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp().After(entries[j].Timestamp())
	})
	return entries, nil
}
