package postgres

import (
	"time"

	"github.com/lib/pq"

	"github.com/snapshare/snapfeed/internal/models"
)

type userRow struct {
	ID        string         `gorm:"primaryKey;type:text"`
	Public    pq.StringArray `gorm:"type:text[];not null;default:'{}'"`
	Private   pq.StringArray `gorm:"type:text[];not null;default:'{}'"`
	Favorites pq.StringArray `gorm:"type:text[];not null;default:'{}'"`
	Liked     pq.StringArray `gorm:"type:text[];not null;default:'{}'"`
	Reposts   pq.StringArray `gorm:"type:text[];not null;default:'{}'"`
	Followers pq.StringArray `gorm:"type:text[];not null;default:'{}'"`
	Feed      pq.StringArray `gorm:"type:text[];not null;default:'{}'"`
	CreatedAt time.Time      `gorm:"not null"`
}

func (userRow) TableName() string { return "users" }

func (r *userRow) model() *models.User {
	u := models.NewUser(r.ID, r.CreatedAt)
	u.Public = append(u.Public, r.Public...)
	u.Private = append(u.Private, r.Private...)
	u.Favorites = append(u.Favorites, r.Favorites...)
	u.Liked = append(u.Liked, r.Liked...)
	u.Reposts = append(u.Reposts, r.Reposts...)
	u.Followers = append(u.Followers, r.Followers...)
	u.Feed = append(u.Feed, r.Feed...)
	return u
}

type postRow struct {
	ID          string         `gorm:"primaryKey;type:text"`
	AuthorID    string         `gorm:"type:text;not null;index"`
	Text        string         `gorm:"type:varchar(300);not null"`
	MediaURIs   pq.StringArray `gorm:"column:media_uris;type:text[];not null;default:'{}'"`
	Hashtags    pq.StringArray `gorm:"type:text[];not null;default:'{}'"`
	IsPrivate   bool           `gorm:"not null;default:false"`
	IsBlocked   bool           `gorm:"not null;default:false"`
	Timestamp   time.Time      `gorm:"not null;index"`
	LikeCount   int64          `gorm:"not null;default:0"`
	RepostCount int64          `gorm:"not null;default:0"`
}

func (postRow) TableName() string { return "posts" }

func newPostRow(p *models.Post) *postRow {
	return &postRow{
		ID:          p.ID,
		AuthorID:    p.AuthorID,
		Text:        p.Text,
		MediaURIs:   pq.StringArray(nonNil(p.MediaURIs)),
		Hashtags:    pq.StringArray(nonNil(p.Hashtags)),
		IsPrivate:   p.IsPrivate,
		IsBlocked:   p.IsBlocked,
		Timestamp:   p.Timestamp,
		LikeCount:   p.LikeCount,
		RepostCount: p.RepostCount,
	}
}

func (r *postRow) model() *models.Post {
	return &models.Post{
		ID:          r.ID,
		AuthorID:    r.AuthorID,
		Text:        r.Text,
		MediaURIs:   append([]string{}, r.MediaURIs...),
		Hashtags:    append([]string{}, r.Hashtags...),
		IsPrivate:   r.IsPrivate,
		IsBlocked:   r.IsBlocked,
		Timestamp:   r.Timestamp.UTC(),
		LikeCount:   r.LikeCount,
		RepostCount: r.RepostCount,
	}
}

type repostRow struct {
	ID        string    `gorm:"primaryKey;type:text"`
	UserID    string    `gorm:"type:text;not null;uniqueIndex:idx_reposts_user_post"`
	PostID    string    `gorm:"type:text;not null;uniqueIndex:idx_reposts_user_post;index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (repostRow) TableName() string { return "reposts" }

func (r *repostRow) model() *models.Repost {
	return &models.Repost{ID: r.ID, UserID: r.UserID, PostID: r.PostID, CreatedAt: r.CreatedAt.UTC()}
}

type mentionRow struct {
	ID        string    `gorm:"primaryKey;type:text"`
	Topic     string    `gorm:"type:text;not null;index"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (mentionRow) TableName() string { return "topic_mentions" }

type topicRow struct {
	Topic         string         `gorm:"primaryKey;type:text"`
	Mentions      pq.StringArray `gorm:"type:text[];not null;default:'{}'"`
	LastMentioned time.Time      `gorm:"not null;index"`
}

func (topicRow) TableName() string { return "trending_topics" }

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
