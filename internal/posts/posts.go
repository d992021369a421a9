// Package posts owns the post lifecycle: creation with its side effects,
// updates, reads that merge reposts, and cascading deletes.
package posts

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/snapshare/snapfeed/internal/apperr"
	"github.com/snapshare/snapfeed/internal/engagement"
	"github.com/snapshare/snapfeed/internal/feed"
	"github.com/snapshare/snapfeed/internal/follow"
	"github.com/snapshare/snapfeed/internal/models"
	"github.com/snapshare/snapfeed/internal/query"
	"github.com/snapshare/snapfeed/internal/store"
	"github.com/snapshare/snapfeed/pkg/telemetry"
)

// MentionRecorder receives the hashtags of a new post
type MentionRecorder interface {
	Record(ctx context.Context, hashtags []string) error
}

// NewPost is the input of CreatePost
type NewPost struct {
	AuthorID  string   `json:"author_id"`
	Text      string   `json:"text"`
	MediaURIs []string `json:"media_uris"`
	Hashtags  []string `json:"hashtags"`
	IsPrivate bool     `json:"is_private"`
}

// ListRequest is the input of ListPosts
type ListRequest struct {
	Requester string
	Filter    query.Filter
	Public    bool
	Private   bool
	Blocked   bool
	Limit     int
	Page      int
}

// Service implements the post operations
type Service struct {
	store      store.Store
	dispatcher feed.Dispatcher
	mentions   MentionRecorder
	engagement *engagement.Service
	oracle     follow.Oracle
	maxLimit   int
	now        func() time.Time
	logger     *zap.Logger
}

// NewService wires the post service
func NewService(st store.Store, dispatcher feed.Dispatcher, mentions MentionRecorder, eng *engagement.Service, oracle follow.Oracle, maxLimit int, logger *zap.Logger) *Service {
	return &Service{
		store:      st,
		dispatcher: dispatcher,
		mentions:   mentions,
		engagement: eng,
		oracle:     oracle,
		maxLimit:   maxLimit,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
}

// CreatePost validates and stores a post, files it under its author, then
// fans it out and records its hashtags. Failures of the last two are logged,
// the post stays created.
func (s *Service) CreatePost(ctx context.Context, in NewPost) (*models.Post, error) {
	const op = "CreatePost"
	ctx, span := telemetry.StartSpan(ctx, "posts.CreatePost")
	post, err := s.createPost(ctx, op, in)
	if post != nil {
		span.SetAttributes(attribute.String("post.id", post.ID))
	}
	telemetry.EndSpan(span, err)
	return post, err
}

func (s *Service) createPost(ctx context.Context, op string, in NewPost) (*models.Post, error) {
	if in.AuthorID == "" {
		return nil, apperr.Invalid(op, "author_id is required")
	}
	if err := validateText(op, in.Text); err != nil {
		return nil, err
	}
	if err := validateHashtags(op, in.Hashtags); err != nil {
		return nil, err
	}
	if _, err := s.store.EnsureUser(ctx, in.AuthorID); err != nil {
		return nil, err
	}

	post := &models.Post{
		ID:        uuid.NewString(),
		AuthorID:  in.AuthorID,
		Text:      in.Text,
		MediaURIs: append([]string{}, in.MediaURIs...),
		Hashtags:  append([]string{}, in.Hashtags...),
		IsPrivate: in.IsPrivate,
		Timestamp: s.now(),
	}
	if err := s.store.InsertPost(ctx, post); err != nil {
		return nil, err
	}
	if _, err := s.store.AddToSet(ctx, post.AuthorID, authorList(post.IsPrivate), post.ID); err != nil {
		return nil, err
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, post); err != nil {
			s.logger.Error("Fan-out dispatch failed", zap.String("post_id", post.ID), zap.Error(err))
		}
	}
	if s.mentions != nil && len(post.Hashtags) > 0 {
		if err := s.mentions.Record(ctx, post.Hashtags); err != nil {
			s.logger.Error("Recording mentions failed", zap.String("post_id", post.ID), zap.Error(err))
		}
	}
	return post, nil
}

func authorList(private bool) models.UserField {
	if private {
		return models.FieldPrivate
	}
	return models.FieldPublic
}

// GetPost loads a post by id
func (s *Service) GetPost(ctx context.Context, id string) (*models.Post, error) {
	if id == "" {
		return nil, apperr.Invalid("GetPost", "post id is required")
	}
	return s.store.GetPost(ctx, id)
}

// checkAuthor enforces authorship when an acting user is given
func checkAuthor(op, actor string, post *models.Post) error {
	if actor != "" && actor != post.AuthorID {
		return apperr.Invalid(op, "%s is not the author of post %s", actor, post.ID)
	}
	return nil
}

// UpdatePost applies a patch. A visibility change moves the post between the
// author's public and private lists.
func (s *Service) UpdatePost(ctx context.Context, actor, id string, patch models.PostPatch) (*models.Post, error) {
	const op = "UpdatePost"
	ctx, span := telemetry.StartSpan(ctx, "posts.UpdatePost")
	post, err := s.updatePost(ctx, op, actor, id, patch)
	telemetry.EndSpan(span, err)
	return post, err
}

func (s *Service) updatePost(ctx context.Context, op, actor, id string, patch models.PostPatch) (*models.Post, error) {
	if err := validatePatch(op, patch); err != nil {
		return nil, err
	}
	current, err := s.store.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkAuthor(op, actor, current); err != nil {
		return nil, err
	}
	updated, err := s.store.UpdatePost(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if updated.IsPrivate != current.IsPrivate {
		if _, err := s.store.Pull(ctx, updated.AuthorID, authorList(current.IsPrivate), id); err != nil {
			return nil, err
		}
		if _, err := s.store.AddToSet(ctx, updated.AuthorID, authorList(updated.IsPrivate), id); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

// DeletePost removes a post after its reposts and every reference to it
func (s *Service) DeletePost(ctx context.Context, actor, id string) error {
	const op = "DeletePost"
	ctx, span := telemetry.StartSpan(ctx, "posts.DeletePost")
	err := s.deletePost(ctx, op, actor, id)
	telemetry.EndSpan(span, err)
	return err
}

func (s *Service) deletePost(ctx context.Context, op, actor, id string) error {
	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if err := checkAuthor(op, actor, post); err != nil {
		return err
	}
	return s.cascadePost(ctx, id)
}

func (s *Service) cascadePost(ctx context.Context, id string) error {
	reposts, err := s.store.FindRepostsByPost(ctx, id)
	if err != nil {
		return err
	}
	for _, r := range reposts {
		if _, err := s.store.Pull(ctx, r.UserID, models.FieldReposts, r.ID); err != nil && apperr.KindOf(err) != apperr.KindNotFound {
			return err
		}
	}
	if err := s.store.DeleteRepostsByPost(ctx, id); err != nil {
		return err
	}
	if err := s.store.PullFromAll(ctx, id, models.PostRefFields...); err != nil {
		return err
	}
	err = s.store.DeletePost(ctx, id)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil
	}
	return err
}

// DeleteUser removes a user and everything that points at them: authored
// posts, own reposts, likes, and follower entries.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	const op = "DeleteUser"
	ctx, span := telemetry.StartSpan(ctx, "posts.DeleteUser")
	err := s.deleteUser(ctx, op, userID)
	telemetry.EndSpan(span, err)
	return err
}

func (s *Service) deleteUser(ctx context.Context, op, userID string) error {
	if userID == "" {
		return apperr.Invalid(op, "user id is required")
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	for _, id := range u.Authored() {
		if err := s.cascadePost(ctx, id); err != nil {
			return err
		}
	}

	reposts, err := s.store.GetReposts(ctx, u.Reposts)
	if err != nil {
		return err
	}
	for _, r := range reposts {
		if err := s.store.DeleteRepost(ctx, r.ID); err != nil && apperr.KindOf(err) != apperr.KindNotFound {
			return err
		}
		if err := s.store.AdjustCounter(ctx, r.PostID, models.CounterReposts, -1); err != nil && apperr.KindOf(err) != apperr.KindNotFound {
			return err
		}
	}

	for _, postID := range u.Liked {
		if err := s.store.AdjustCounter(ctx, postID, models.CounterLikes, -1); err != nil && apperr.KindOf(err) != apperr.KindNotFound {
			return err
		}
	}

	if err := s.store.PullFromAll(ctx, userID, models.FieldFollowers); err != nil {
		return err
	}
	return s.store.DeleteUser(ctx, userID)
}

// ListPosts searches posts and merges in the requester's reposts of other
// users' posts that match the same predicate, newest first.
func (s *Service) ListPosts(ctx context.Context, req ListRequest) ([]models.Entry, error) {
	const op = "ListPosts"
	ctx, span := telemetry.StartSpan(ctx, "posts.ListPosts")
	entries, err := s.listPosts(ctx, op, req)
	telemetry.EndSpan(span, err)
	return entries, err
}

func (s *Service) listPosts(ctx context.Context, op string, req ListRequest) ([]models.Entry, error) {
	p, err := query.NewPage(op, req.Limit, req.Page, s.maxLimit)
	if err != nil {
		return nil, err
	}

	// private posts are only readable through a single-author filter the
	// requester owns or follows
	private := false
	if req.Private && len(req.Filter.Authors) == 1 {
		private = follow.Resolve(ctx, s.oracle, s.logger, req.Requester, req.Filter.Authors[0], true)
	}
	vis := query.Visibility{Public: req.Public, Private: private, Blocked: req.Blocked}
	pred := query.ForVisibility(req.Filter, vis)

	posts, err := s.store.FindPosts(ctx, pred, store.FindOptions{Limit: p.End(), OrderBy: store.NewestFirst})
	if err != nil {
		return nil, err
	}
	entries := make([]models.Entry, 0, len(posts))
	for _, post := range posts {
		entries = append(entries, models.OriginalEntry(post))
	}

	if req.Requester != "" && s.engagement != nil {
		reposts, err := s.engagement.ResolveReposts(ctx, req.Requester)
		if err != nil {
			return nil, err
		}
		for _, e := range reposts {
			if e.Post.AuthorID != req.Requester && pred.Match(e.Post) {
				entries = append(entries, e)
			}
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Timestamp(), entries[j].Timestamp()
		if !a.Equal(b) {
			return a.After(b)
		}
		return entries[i].Kind == models.EntryOriginal && entries[j].Kind == models.EntryRepost
	})
	return query.Slice(entries, p), nil
}
