// Package mongostore implements the store contract on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/snapshare/snapfeed/internal/apperr"
	"github.com/snapshare/snapfeed/internal/store"
	"github.com/snapshare/snapfeed/pkg/config"
	"github.com/snapshare/snapfeed/pkg/logging"
)

const (
	colUsers    = "users"
	colPosts    = "posts"
	colReposts  = "snapshares"
	colMentions = "topic_mentions"
	colTopics   = "trending_topics"
)

// Store is a MongoDB backed store
type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	posts    *mongo.Collection
	reposts  *mongo.Collection
	mentions *mongo.Collection
	topics   *mongo.Collection
	timeout  time.Duration
}

var _ store.Store = (*Store)(nil)

// New connects, verifies the server and creates indexes. Mentions and topics
// get TTL indexes of one trending window.
func New(cfg *config.StoreConfig, window time.Duration) (*Store, error) {
	opts := options.Client().
		ApplyURI(cfg.URL).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetTimeout(cfg.OperationTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &Store{
		client:   client,
		users:    db.Collection(colUsers),
		posts:    db.Collection(colPosts),
		reposts:  db.Collection(colReposts),
		mentions: db.Collection(colMentions),
		topics:   db.Collection(colTopics),
		timeout:  cfg.OperationTimeout,
	}
	if err := s.ensureIndexes(ctx, window); err != nil {
		return nil, err
	}

	logging.GetLogger().Info("Mongo connection established", zap.String("database", cfg.Database))
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context, window time.Duration) error {
	ttl := int32(window / time.Second)
	indexes := []struct {
		col   *mongo.Collection
		model mongo.IndexModel
	}{
		{s.posts, mongo.IndexModel{Keys: bson.D{{Key: "author_id", Value: 1}, {Key: "timestamp", Value: -1}}}},
		{s.posts, mongo.IndexModel{Keys: bson.D{{Key: "timestamp", Value: -1}}}},
		{s.reposts, mongo.IndexModel{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "post_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{s.reposts, mongo.IndexModel{Keys: bson.D{{Key: "post_id", Value: 1}}}},
		{s.mentions, mongo.IndexModel{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(ttl),
		}},
		{s.mentions, mongo.IndexModel{Keys: bson.D{{Key: "topic", Value: 1}}}},
		{s.topics, mongo.IndexModel{
			Keys:    bson.D{{Key: "last_mentioned", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(ttl),
		}},
	}
	for _, idx := range indexes {
		if _, err := idx.col.Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", idx.col.Name(), err)
		}
	}
	return nil
}

// Ping checks the primary
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := store.Bounded(ctx, s.timeout)
	defer cancel()
	return apperr.Unavailable("Ping", s.client.Ping(ctx, readpref.Primary()))
}

// Close disconnects the client
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return store.Bounded(ctx, s.timeout)
}

// classify maps driver errors onto the error taxonomy
func classify(op string, err error, format string, args ...interface{}) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return apperr.NotFound(op, format, args...)
	case mongo.IsDuplicateKeyError(err):
		return apperr.Conflict(op, format, args...)
	}
	return apperr.Unavailable(op, err)
}
