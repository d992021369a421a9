// Package app assembles the services shared by the server and the worker
// from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/snapshare/snapfeed/internal/broker"
	"github.com/snapshare/snapfeed/internal/cache"
	"github.com/snapshare/snapfeed/internal/engagement"
	"github.com/snapshare/snapfeed/internal/feed"
	"github.com/snapshare/snapfeed/internal/follow"
	"github.com/snapshare/snapfeed/internal/posts"
	"github.com/snapshare/snapfeed/internal/store"
	"github.com/snapshare/snapfeed/internal/store/memory"
	"github.com/snapshare/snapfeed/internal/store/mongostore"
	"github.com/snapshare/snapfeed/internal/store/postgres"
	"github.com/snapshare/snapfeed/internal/trending"
	"github.com/snapshare/snapfeed/pkg/config"
)

// OpenStore connects the configured backend
func OpenStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendPostgres:
		return postgres.New(&cfg.Store, cfg.Logging.Level)
	case config.BackendMongo:
		return mongostore.New(&cfg.Store, cfg.Trending.Window)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// NewOracle returns the configured follow oracle
func NewOracle(cfg *config.FollowConfig, users store.Users) follow.Oracle {
	if cfg.Mode == config.FollowHTTP {
		return follow.NewHTTPClient(cfg.URL, cfg.Timeout)
	}
	return follow.StoreOracle{Users: users}
}

// Core holds the services both processes need
type Core struct {
	Config     *config.Config
	Store      store.Store
	Cache      *cache.Cache
	Oracle     follow.Oracle
	Feed       *feed.Engine
	Trending   *trending.Service
	Engagement *engagement.Service

	logger  *zap.Logger
	nats    *nats.Conn
	closers []func() error
}

// NewCore opens the store and cache and builds the domain services
func NewCore(cfg *config.Config, logger *zap.Logger) (*Core, error) {
	st, err := OpenStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	c, err := cache.New(&cfg.Redis)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to connect to cache: %w", err)
	}

	oracle := NewOracle(&cfg.Follow, st)
	core := &Core{
		Config: cfg,
		Store:  st,
		Cache:  c,
		Oracle: oracle,
		Feed: feed.NewEngine(st, feed.Options{
			MaxFeed:                cfg.Feed.MaxFeed,
			CopyPrivateOnSubscribe: cfg.Feed.CopyPrivateOnSubscribe,
			Concurrency:            cfg.Feed.FanoutConcurrency,
			MaxLimit:               cfg.Pagination.MaxLimit,
		}, logger.With(zap.String("component", "feed"))),
		Trending: trending.NewService(st, c, trending.Options{
			Window:   cfg.Trending.Window,
			MaxLimit: cfg.Pagination.MaxLimit,
			CacheTTL: cfg.Redis.TrendingTTL,
		}, logger.With(zap.String("component", "trending"))),
		Engagement: engagement.NewService(st, oracle, cfg.Pagination.MaxLimit, logger.With(zap.String("component", "engagement"))),
		logger:     logger,
	}
	core.closers = append(core.closers, c.Close, st.Close)
	return core, nil
}

// NATS returns the shared NATS connection, dialing it on first use
func (c *Core) NATS() (*nats.Conn, error) {
	if c.nats != nil {
		return c.nats, nil
	}
	nc, err := broker.Connect(c.Config.Broker.NATSURL, c.logger)
	if err != nil {
		return nil, err
	}
	c.nats = nc
	c.closers = append([]func() error{func() error { return nc.Drain() }}, c.closers...)
	return nc, nil
}

// Dispatcher builds the configured fan-out path. The returned stop function
// drains background work and must be called before Close.
func (c *Core) Dispatcher() (feed.Dispatcher, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	switch c.Config.Feed.FanoutMode {
	case config.FanoutInline:
		return feed.Inline{Engine: c.Feed}, noop, nil
	case config.FanoutAsync:
		pool := feed.NewPool(c.Feed, c.Config.Feed.AsyncWorkers, c.Config.Feed.QueueSize, c.Config.Feed.JobTimeout,
			c.logger.With(zap.String("component", "fanout-pool")))
		pool.Start()
		return pool, pool.Stop, nil
	case config.FanoutNATS:
		nc, err := c.NATS()
		if err != nil {
			return nil, nil, err
		}
		return broker.NewNATSDispatcher(nc, c.Config.Broker.NATSSubject), noop, nil
	}
	return nil, nil, fmt.Errorf("unknown fanout mode %q", c.Config.Feed.FanoutMode)
}

// MentionRecorder records hashtags in-process or publishes them to Kafka
func (c *Core) MentionRecorder() posts.MentionRecorder {
	if c.Config.Trending.Mode == config.TrendingKafka {
		pub := broker.NewMentionPublisher(c.Config.Broker.KafkaBrokers, c.Config.Broker.KafkaTopic)
		c.closers = append([]func() error{pub.Close}, c.closers...)
		return pub
	}
	return c.Trending
}

// Posts builds the post service on top of the core
func (c *Core) Posts(dispatcher feed.Dispatcher, mentions posts.MentionRecorder) *posts.Service {
	return posts.NewService(c.Store, dispatcher, mentions, c.Engagement, c.Oracle, c.Config.Pagination.MaxLimit,
		c.logger.With(zap.String("component", "posts")))
}

// Close releases connections in reverse order of acquisition
func (c *Core) Close() {
	for _, fn := range c.closers {
		if err := fn(); err != nil {
			c.logger.Warn("Error during shutdown", zap.Error(err))
		}
	}
	c.closers = nil
}
