// Package feed maintains bounded per-user timelines by fan-out on write.
package feed

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/snapshare/snapfeed/internal/apperr"
	"github.com/snapshare/snapfeed/internal/models"
	"github.com/snapshare/snapfeed/internal/query"
	"github.com/snapshare/snapfeed/internal/store"
	"github.com/snapshare/snapfeed/pkg/telemetry"
)

// DefaultMaxFeed is the feed capacity when none is configured
const DefaultMaxFeed = 250

// Options tunes the engine
type Options struct {
	MaxFeed                int
	CopyPrivateOnSubscribe bool
	Concurrency            int
	MaxLimit               int
}

// Engine pushes post references into follower feeds
type Engine struct {
	store   store.Store
	opts    Options
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

// NewEngine creates a feed engine
func NewEngine(st store.Store, opts Options, logger *zap.Logger) *Engine {
	if opts.MaxFeed <= 0 {
		opts.MaxFeed = DefaultMaxFeed
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Engine{
		store:   st,
		opts:    opts,
		logger:  logger,
		metrics: telemetry.GetMetrics(),
	}
}

// push appends postID to one feed and evicts the oldest entries past capacity
func (e *Engine) push(ctx context.Context, userID, postID string) (bool, error) {
	added, err := e.store.AddToSet(ctx, userID, models.FieldFeed, postID)
	if err != nil || !added {
		return false, err
	}
	evicted, err := e.store.Trim(ctx, userID, models.FieldFeed, e.opts.MaxFeed)
	if err != nil {
		return true, err
	}
	telemetry.Add(ctx, e.metrics.FeedEvictions, int64(evicted))
	return true, nil
}

// OnPostCreated delivers post to every follower of its author. A follower that
// fails is logged and skipped; only a failure to read the author is returned.
func (e *Engine) OnPostCreated(ctx context.Context, post *models.Post) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "feed.OnPostCreated")
	span.SetAttributes(attribute.String("post.id", post.ID), attribute.String("post.author", post.AuthorID))

	author, err := e.store.GetUser(ctx, post.AuthorID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		telemetry.EndSpan(span, nil)
		return 0, nil
	}
	if err != nil {
		telemetry.EndSpan(span, err)
		return 0, err
	}

	var (
		delivered = make([]bool, len(author.Followers))
		g, gctx   = errgroup.WithContext(ctx)
	)
	g.SetLimit(e.opts.Concurrency)
	for i, follower := range author.Followers {
		i, follower := i, follower
		g.Go(func() error {
			added, err := e.push(gctx, follower, post.ID)
			if err != nil {
				telemetry.Add(gctx, e.metrics.FanoutFailures, 1)
				e.logger.Warn("Fan-out to follower failed",
					zap.String("follower", follower),
					zap.String("post_id", post.ID),
					zap.Error(err))
				return nil
			}
			delivered[i] = added
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, ok := range delivered {
		if ok {
			n++
		}
	}
	telemetry.Add(ctx, e.metrics.FanoutDeliveries, int64(n))
	span.SetAttributes(attribute.Int("fanout.followers", len(author.Followers)), attribute.Int("fanout.delivered", n))
	telemetry.EndSpan(span, nil)
	return n, nil
}

// Subscribe makes follower follow author and backfills the follower's feed
func (e *Engine) Subscribe(ctx context.Context, followerID, authorID string) error {
	const op = "Subscribe"
	ctx, span := telemetry.StartSpan(ctx, "feed.Subscribe")
	err := e.subscribe(ctx, op, followerID, authorID)
	telemetry.EndSpan(span, err)
	return err
}

func (e *Engine) subscribe(ctx context.Context, op, followerID, authorID string) error {
	if followerID == "" || authorID == "" {
		return apperr.Invalid(op, "user and target are required")
	}
	if followerID == authorID {
		return apperr.Conflict(op, "cannot subscribe to yourself")
	}
	if _, err := e.store.EnsureUser(ctx, followerID); err != nil {
		return err
	}
	author, err := e.store.EnsureUser(ctx, authorID)
	if err != nil {
		return err
	}
	if author.Has(models.FieldFollowers, followerID) {
		return apperr.Conflict(op, "%s is already subscribed to %s", followerID, authorID)
	}

	filter := query.Filter{Authors: []string{authorID}}
	vis := query.Visibility{Public: true, Private: e.opts.CopyPrivateOnSubscribe}
	posts, err := e.store.FindPosts(ctx, query.ForVisibility(filter, vis), store.FindOptions{
		Limit:   e.opts.MaxFeed,
		OrderBy: store.NewestFirst,
	})
	if err != nil {
		return err
	}
	// oldest first, so the newest end up at the tail the trim keeps
	for i := len(posts) - 1; i >= 0; i-- {
		if _, err := e.store.AddToSet(ctx, followerID, models.FieldFeed, posts[i].ID); err != nil {
			return err
		}
	}
	evicted, err := e.store.Trim(ctx, followerID, models.FieldFeed, e.opts.MaxFeed)
	if err != nil {
		return err
	}
	telemetry.Add(ctx, e.metrics.FeedEvictions, int64(evicted))

	added, err := e.store.AddToSet(ctx, authorID, models.FieldFollowers, followerID)
	if err != nil {
		return err
	}
	if !added {
		return apperr.Conflict(op, "%s is already subscribed to %s", followerID, authorID)
	}
	return nil
}

// Unsubscribe removes the author's posts from the follower's feed and the follower from the author
func (e *Engine) Unsubscribe(ctx context.Context, followerID, authorID string) error {
	const op = "Unsubscribe"
	ctx, span := telemetry.StartSpan(ctx, "feed.Unsubscribe")
	err := e.unsubscribe(ctx, op, followerID, authorID)
	telemetry.EndSpan(span, err)
	return err
}

func (e *Engine) unsubscribe(ctx context.Context, op, followerID, authorID string) error {
	if followerID == "" || authorID == "" {
		return apperr.Invalid(op, "user and target are required")
	}
	author, err := e.store.GetUser(ctx, authorID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return apperr.NotFound(op, "%s is not subscribed to %s", followerID, authorID)
	}
	if err != nil {
		return err
	}
	if !author.Has(models.FieldFollowers, followerID) {
		return apperr.NotFound(op, "%s is not subscribed to %s", followerID, authorID)
	}
	if authored := author.Authored(); len(authored) > 0 {
		if _, err := e.store.Pull(ctx, followerID, models.FieldFeed, authored...); err != nil && apperr.KindOf(err) != apperr.KindNotFound {
			return err
		}
	}
	_, err = e.store.Pull(ctx, authorID, models.FieldFollowers, followerID)
	return err
}

// IsFollowing reports whether follower is in author's followers
func (e *Engine) IsFollowing(ctx context.Context, followerID, authorID string) (bool, error) {
	author, err := e.store.GetUser(ctx, authorID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return author.Has(models.FieldFollowers, followerID), nil
}

// GetFeed returns a page of the user's feed, newest first. Missing and
// blocked posts are skipped.
func (e *Engine) GetFeed(ctx context.Context, userID string, limit, page int) ([]*models.Post, error) {
	const op = "GetFeed"
	ctx, span := telemetry.StartSpan(ctx, "feed.GetFeed")
	posts, err := e.getFeed(ctx, op, userID, limit, page)
	telemetry.EndSpan(span, err)
	return posts, err
}

func (e *Engine) getFeed(ctx context.Context, op, userID string, limit, page int) ([]*models.Post, error) {
	p, err := query.NewPage(op, limit, page, e.opts.MaxLimit)
	if err != nil {
		return nil, err
	}
	u, err := e.store.GetUser(ctx, userID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return []*models.Post{}, nil
	}
	if err != nil {
		return nil, err
	}
	posts, err := e.store.GetPosts(ctx, u.Feed)
	if err != nil {
		return nil, err
	}
	visible := posts[:0]
	for _, post := range posts {
		if !post.IsBlocked {
			visible = append(visible, post)
		}
	}
	SortNewestFirst(visible)
	return query.Slice(visible, p), nil
}

// SortNewestFirst orders posts by timestamp descending, ties by id
func SortNewestFirst(posts []*models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].Timestamp.Equal(posts[j].Timestamp) {
			return posts[i].Timestamp.After(posts[j].Timestamp)
		}
		return posts[i].ID < posts[j].ID
	})
}
