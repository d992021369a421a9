package models

import (
	"time"
)

// EntryKind tags an Entry
type EntryKind string

const (
	EntryOriginal EntryKind = "original"
	EntryRepost   EntryKind = "repost"
)

// Entry is the read projection shared by originals and reposts.
// Post is always the resolved target; Repost is set only for EntryRepost.
type Entry struct {
	Kind   EntryKind `json:"kind"`
	Post   *Post     `json:"post"`
	Repost *Repost   `json:"repost,omitempty"`
}

// OriginalEntry wraps an authored post
func OriginalEntry(p *Post) Entry {
	return Entry{Kind: EntryOriginal, Post: p}
}

// RepostEntry wraps a repost and its resolved target
func RepostEntry(r *Repost, target *Post) Entry {
	return Entry{Kind: EntryRepost, Post: target, Repost: r}
}

// Timestamp is the sort key: the post time for originals, the repost time for reposts
func (e Entry) Timestamp() time.Time {
	if e.Kind == EntryRepost && e.Repost != nil {
		return e.Repost.CreatedAt
	}
	if e.Post == nil {
		return time.Time{}
	}
	return e.Post.Timestamp
}
