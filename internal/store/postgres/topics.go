package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/snapshare/snapfeed/internal/apperr"
	"github.com/snapshare/snapfeed/internal/models"
)

const upsertTopic = `
INSERT INTO trending_topics (topic, mentions, last_mentioned)
VALUES (?, ARRAY[?::text], ?)
ON CONFLICT (topic) DO UPDATE SET
	mentions = array_append(trending_topics.mentions, EXCLUDED.mentions[1]),
	last_mentioned = GREATEST(trending_topics.last_mentioned, EXCLUDED.last_mentioned)`

const liveTopics = `
SELECT m.topic AS topic, COUNT(*) AS mention_count, t.last_mentioned AS last_mentioned
FROM topic_mentions m
JOIN trending_topics t ON t.topic = m.topic
WHERE m.created_at > ? AND t.last_mentioned > ?
GROUP BY m.topic, t.last_mentioned`

const compactTopics = `
UPDATE trending_topics SET mentions = ARRAY(
	SELECT elem FROM unnest(mentions) AS elem
	WHERE elem IN (SELECT id FROM topic_mentions)
)`

// RecordMention inserts the mention and upserts its topic in one transaction
func (s *Store) RecordMention(ctx context.Context, mention *models.TopicMention) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		row := mentionRow{ID: mention.ID, Topic: mention.Topic, CreatedAt: mention.CreatedAt}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Exec(upsertTopic, mention.Topic, mention.ID, mention.CreatedAt).Error
	})
	return apperr.Unavailable("RecordMention", err)
}

// LiveTopics counts mentions newer than since per topic
func (s *Store) LiveTopics(ctx context.Context, since time.Time) ([]models.TopicCount, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var rows []struct {
		Topic         string
		MentionCount  int64
		LastMentioned time.Time
	}
	if err := db.Raw(liveTopics, since, since).Scan(&rows).Error; err != nil {
		return nil, apperr.Unavailable("LiveTopics", err)
	}
	out := make([]models.TopicCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.TopicCount{Topic: r.Topic, MentionCount: r.MentionCount, LastMentioned: r.LastMentioned.UTC()})
	}
	return out, nil
}

// PurgeExpired drops expired mentions and topics
func (s *Store) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var removed int64
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("created_at <= ?", before).Delete(&mentionRow{})
		if res.Error != nil {
			return res.Error
		}
		removed += res.RowsAffected
		res = tx.Where("last_mentioned <= ?", before).Delete(&topicRow{})
		if res.Error != nil {
			return res.Error
		}
		removed += res.RowsAffected
		return tx.Exec(compactTopics).Error
	})
	if err != nil {
		return 0, apperr.Unavailable("PurgeExpired", err)
	}
	return removed, nil
}
