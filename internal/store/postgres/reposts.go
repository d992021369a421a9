package postgres

import (
	"context"

	"github.com/snapshare/snapfeed/internal/apperr"
	"github.com/snapshare/snapfeed/internal/models"
)

// InsertRepost relies on the (user_id, post_id) unique index
func (s *Store) InsertRepost(ctx context.Context, repost *models.Repost) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	row := repostRow{ID: repost.ID, UserID: repost.UserID, PostID: repost.PostID, CreatedAt: repost.CreatedAt}
	return classify("InsertRepost", db.Create(&row).Error,
		"post %s already reposted by %s", repost.PostID, repost.UserID)
}

// GetRepost finds the repost of a pair
func (s *Store) GetRepost(ctx context.Context, userID, postID string) (*models.Repost, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var row repostRow
	if err := db.First(&row, "user_id = ? AND post_id = ?", userID, postID).Error; err != nil {
		return nil, classify("GetRepost", err, "post %s not reposted by %s", postID, userID)
	}
	return row.model(), nil
}

// GetReposts loads the reposts that exist among ids
func (s *Store) GetReposts(ctx context.Context, ids []string) ([]*models.Repost, error) {
	if len(ids) == 0 {
		return []*models.Repost{}, nil
	}
	db, cancel := s.conn(ctx)
	defer cancel()

	var rows []repostRow
	if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, apperr.Unavailable("GetReposts", err)
	}
	return repostModels(rows), nil
}

// FindRepostsByPost lists every repost of a post, oldest first
func (s *Store) FindRepostsByPost(ctx context.Context, postID string) ([]*models.Repost, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var rows []repostRow
	if err := db.Where("post_id = ?", postID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, apperr.Unavailable("FindRepostsByPost", err)
	}
	return repostModels(rows), nil
}

// DeleteRepost removes one repost
func (s *Store) DeleteRepost(ctx context.Context, id string) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	res := db.Delete(&repostRow{}, "id = ?", id)
	if res.Error != nil {
		return apperr.Unavailable("DeleteRepost", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("DeleteRepost", "repost %s not found", id)
	}
	return nil
}

// DeleteRepostsByPost removes every repost of a post
func (s *Store) DeleteRepostsByPost(ctx context.Context, postID string) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	return apperr.Unavailable("DeleteRepostsByPost", db.Delete(&repostRow{}, "post_id = ?", postID).Error)
}

func repostModels(rows []repostRow) []*models.Repost {
	out := make([]*models.Repost, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out
}
