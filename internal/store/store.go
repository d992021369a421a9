// Package store defines the persistence contract shared by every backend.
package store

import (
	"context"
	"time"

	"github.com/snapshare/snapfeed/internal/models"
	"github.com/snapshare/snapfeed/internal/query"
)

// OrderBy selects the sort of a post search
type OrderBy int

const (
	// NewestFirst sorts by timestamp descending
	NewestFirst OrderBy = iota
	// OldestFirst sorts by timestamp ascending
	OldestFirst
)

// FindOptions bounds a post search. Limit <= 0 means no limit.
type FindOptions struct {
	Skip    int
	Limit   int
	OrderBy OrderBy
}

// Users holds user documents and their reference arrays
type Users interface {
	// EnsureUser returns the user, creating an empty one on first reference
	EnsureUser(ctx context.Context, id string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error

	// AddToSet appends value unless already present and reports whether it was added.
	// It is a single conditional update so concurrent identical adds see one winner.
	AddToSet(ctx context.Context, userID string, field models.UserField, value string) (bool, error)
	// Pull removes every listed value and reports how many were removed
	Pull(ctx context.Context, userID string, field models.UserField, values ...string) (int, error)
	// Trim keeps the last maxLen entries and reports how many were evicted
	Trim(ctx context.Context, userID string, field models.UserField, maxLen int) (int, error)
	// PullFromAll removes value from the given arrays of every user
	PullFromAll(ctx context.Context, value string, fields ...models.UserField) error
}

// Posts holds posts
type Posts interface {
	InsertPost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id string) (*models.Post, error)
	// GetPosts returns the posts that exist, in no particular order
	GetPosts(ctx context.Context, ids []string) ([]*models.Post, error)
	UpdatePost(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error)
	DeletePost(ctx context.Context, id string) error
	FindPosts(ctx context.Context, pred query.Predicate, opts FindOptions) ([]*models.Post, error)
	// AdjustCounter adds delta to a paired counter, never going below zero
	AdjustCounter(ctx context.Context, postID string, field models.CounterField, delta int64) error
}

// Reposts holds snapshares
type Reposts interface {
	// InsertRepost fails with a conflict when (UserID, PostID) already exists
	InsertRepost(ctx context.Context, repost *models.Repost) error
	GetRepost(ctx context.Context, userID, postID string) (*models.Repost, error)
	GetReposts(ctx context.Context, ids []string) ([]*models.Repost, error)
	FindRepostsByPost(ctx context.Context, postID string) ([]*models.Repost, error)
	DeleteRepost(ctx context.Context, id string) error
	DeleteRepostsByPost(ctx context.Context, postID string) error
}

// Topics holds hashtag mentions and their aggregates
type Topics interface {
	// RecordMention inserts a mention and creates or refreshes its topic
	RecordMention(ctx context.Context, mention *models.TopicMention) error
	// LiveTopics counts mentions created after since, per topic
	LiveTopics(ctx context.Context, since time.Time) ([]models.TopicCount, error)
	// PurgeExpired removes mentions created and topics last mentioned before the cutoff
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// Store is the full persistence contract
type Store interface {
	Users
	Posts
	Reposts
	Topics

	Ping(ctx context.Context) error
	Close() error
}
