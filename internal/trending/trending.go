// Package trending ranks hashtags by their mentions inside a sliding expiry window.
package trending

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snapshare/snapfeed/internal/cache"
	"github.com/snapshare/snapfeed/internal/models"
	"github.com/snapshare/snapfeed/internal/query"
	"github.com/snapshare/snapfeed/internal/store"
	"github.com/snapshare/snapfeed/pkg/telemetry"
)

// DefaultWindow is how long a mention counts
const DefaultWindow = 24 * time.Hour

// Options tunes the aggregator
type Options struct {
	Window   time.Duration
	MaxLimit int
	CacheTTL time.Duration
}

// Service records mentions and ranks live topics. Counts are computed at read
// time from unexpired mentions, so nothing is ever decremented.
type Service struct {
	store   store.Topics
	cache   *cache.Cache
	opts    Options
	now     func() time.Time
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

// NewService creates a trending service; c may be nil
func NewService(st store.Topics, c *cache.Cache, opts Options, logger *zap.Logger) *Service {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	return &Service{
		store:   st,
		cache:   c,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
		metrics: telemetry.GetMetrics(),
	}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Record stores one mention per distinct hashtag, stamped at the current time
func (s *Service) Record(ctx context.Context, hashtags []string) error {
	return s.RecordAt(ctx, hashtags, s.now())
}

// RecordAt stores one mention per distinct hashtag at the given time
func (s *Service) RecordAt(ctx context.Context, hashtags []string, at time.Time) error {
	seen := make(map[string]struct{}, len(hashtags))
	for _, tag := range hashtags {
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		m := &models.TopicMention{ID: uuid.NewString(), Topic: tag, CreatedAt: at.UTC()}
		if err := s.store.RecordMention(ctx, m); err != nil {
			return err
		}
		telemetry.Add(ctx, s.metrics.MentionsRecorded, 1)
	}
	return nil
}

// Top returns a page of live topics, most mentioned first
func (s *Service) Top(ctx context.Context, limit, page int) ([]models.TopicCount, error) {
	const op = "GetTrendingTopics"
	p, err := query.NewPage(op, limit, page, s.opts.MaxLimit)
	if err != nil {
		return nil, err
	}

	key := cache.HashKey("trending", strconv.Itoa(p.Limit), strconv.Itoa(p.Page))
	var cached []models.TopicCount
	if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, cache.ErrCacheDisabled) && !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("Trending cache read failed", zap.Error(err))
	}

	ctx, span := telemetry.StartSpan(ctx, "trending.Top")
	topics, err := s.store.LiveTopics(ctx, s.now().Add(-s.opts.Window))
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	Rank(topics)
	out := query.Slice(topics, p)

	if s.opts.CacheTTL > 0 {
		if err := s.cache.SetJSON(ctx, key, out, s.opts.CacheTTL); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
			s.logger.Warn("Trending cache write failed", zap.Error(err))
		}
	}
	return out, nil
}

// Rank orders topics by mention count, then most recent mention, then name
func Rank(topics []models.TopicCount) {
	sort.SliceStable(topics, func(i, j int) bool {
		a, b := topics[i], topics[j]
		if a.MentionCount != b.MentionCount {
			return a.MentionCount > b.MentionCount
		}
		if !a.LastMentioned.Equal(b.LastMentioned) {
			return a.LastMentioned.After(b.LastMentioned)
		}
		return a.Topic < b.Topic
	})
}

// Sweep physically removes mentions and topics older than the window
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	return s.store.PurgeExpired(ctx, s.now().Add(-s.opts.Window))
}
