// Package broker moves fan-out and trending work across processes: new posts
// travel over NATS, hashtag mentions over Kafka.
package broker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/snapshare/snapfeed/internal/models"
)

// PostCreated is published once per new post
type PostCreated struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	IsPrivate bool      `json:"is_private"`
	CreatedAt time.Time `json:"created_at"`
}

// Mentioned carries the hashtags of one post and when they were used
type Mentioned struct {
	PostID   string    `json:"post_id,omitempty"`
	Hashtags []string  `json:"hashtags"`
	At       time.Time `json:"at"`
}

func newPostCreated(p *models.Post) PostCreated {
	return PostCreated{ID: p.ID, AuthorID: p.AuthorID, IsPrivate: p.IsPrivate, CreatedAt: p.Timestamp}
}

// Post rebuilds the part of the post fan-out needs
func (e PostCreated) Post() *models.Post {
	return &models.Post{ID: e.ID, AuthorID: e.AuthorID, IsPrivate: e.IsPrivate, Timestamp: e.CreatedAt}
}

func decodePostCreated(data []byte) (PostCreated, error) {
	var ev PostCreated
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decode post.created: %w", err)
	}
	if ev.ID == "" || ev.AuthorID == "" {
		return ev, fmt.Errorf("decode post.created: id and author_id are required")
	}
	return ev, nil
}

func decodeMentioned(data []byte) (Mentioned, error) {
	var ev Mentioned
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decode mention: %w", err)
	}
	if ev.At.IsZero() {
		return ev, fmt.Errorf("decode mention: at is required")
	}
	return ev, nil
}
