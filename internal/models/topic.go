package models

import (
	"time"
)

// TopicMention is one hashtag use; it expires a fixed window after creation
type TopicMention struct {
	ID        string    `json:"id" bson:"_id"`
	Topic     string    `json:"topic" bson:"topic"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// TrendingTopic aggregates mentions of one hashtag.
// It expires a fixed window after LastMentioned unless refreshed.
type TrendingTopic struct {
	Topic         string    `json:"topic" bson:"_id"`
	Mentions      []string  `json:"mentions" bson:"mentions"`
	LastMentioned time.Time `json:"last_mentioned" bson:"last_mentioned"`
}

// TopicCount is a live topic with its count of non-expired mentions
type TopicCount struct {
	Topic         string    `json:"topic"`
	MentionCount  int64     `json:"mention_count"`
	LastMentioned time.Time `json:"last_mentioned"`
}
