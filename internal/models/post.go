package models

import (
	"time"
)

// Post limits
const (
	MaxTextLength = 300
)

// CounterField names a paired counter kept on a post
type CounterField string

const (
	CounterLikes   CounterField = "like_count"
	CounterReposts CounterField = "repost_count"
)

// Post is owned by its author and referenced by feeds, author lists and engagement sets
type Post struct {
	ID          string    `json:"id" bson:"_id"`
	AuthorID    string    `json:"author_id" bson:"author_id"`
	Text        string    `json:"text" bson:"text"`
	MediaURIs   []string  `json:"media_uris" bson:"media_uris"`
	Hashtags    []string  `json:"hashtags" bson:"hashtags"`
	IsPrivate   bool      `json:"is_private" bson:"is_private"`
	IsBlocked   bool      `json:"is_blocked" bson:"is_blocked"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
	LikeCount   int64     `json:"like_count" bson:"like_count"`
	RepostCount int64     `json:"repost_count" bson:"repost_count"`
}

// VisibleTo reports whether viewer may see the post in a list
func (p *Post) VisibleTo(viewer string) bool {
	if p.IsBlocked {
		return false
	}
	return !p.IsPrivate || p.AuthorID == viewer
}

// Clone returns a deep copy
func (p *Post) Clone() *Post {
	c := *p
	c.MediaURIs = append([]string{}, p.MediaURIs...)
	c.Hashtags = append([]string{}, p.Hashtags...)
	return &c
}

// Counter returns the value of a paired counter
func (p *Post) Counter(f CounterField) int64 {
	if f == CounterReposts {
		return p.RepostCount
	}
	return p.LikeCount
}

// PostPatch is a sparse update; nil fields are left untouched
type PostPatch struct {
	Text      *string   `json:"text,omitempty"`
	MediaURIs *[]string `json:"media_uris,omitempty"`
	Hashtags  *[]string `json:"hashtags,omitempty"`
	IsPrivate *bool     `json:"is_private,omitempty"`
	IsBlocked *bool     `json:"is_blocked,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p PostPatch) Empty() bool {
	return p.Text == nil && p.MediaURIs == nil && p.Hashtags == nil && p.IsPrivate == nil && p.IsBlocked == nil
}

// Apply writes the patch onto post
func (p PostPatch) Apply(post *Post) {
	if p.Text != nil {
		post.Text = *p.Text
	}
	if p.MediaURIs != nil {
		post.MediaURIs = append([]string{}, (*p.MediaURIs)...)
	}
	if p.Hashtags != nil {
		post.Hashtags = append([]string{}, (*p.Hashtags)...)
	}
	if p.IsPrivate != nil {
		post.IsPrivate = *p.IsPrivate
	}
	if p.IsBlocked != nil {
		post.IsBlocked = *p.IsBlocked
	}
}
