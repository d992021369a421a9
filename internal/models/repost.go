package models

import (
	"time"
)

// Repost is a user-owned reference to another user's post ("snapshare").
// At most one exists per (UserID, PostID).
type Repost struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	PostID    string    `json:"post_id" bson:"post_id"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
