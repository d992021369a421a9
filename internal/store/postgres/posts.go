package postgres

import (
	"context"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/snapshare/snapfeed/internal/apperr"
	"github.com/snapshare/snapfeed/internal/models"
	"github.com/snapshare/snapfeed/internal/query"
	"github.com/snapshare/snapfeed/internal/store"
)

// InsertPost creates a post row
func (s *Store) InsertPost(ctx context.Context, post *models.Post) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	return classify("InsertPost", db.Create(newPostRow(post)).Error, "post %s already exists", post.ID)
}

// GetPost loads a post
func (s *Store) GetPost(ctx context.Context, id string) (*models.Post, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var row postRow
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		return nil, classify("GetPost", err, "post %s not found", id)
	}
	return row.model(), nil
}

// GetPosts loads the posts that exist among ids
func (s *Store) GetPosts(ctx context.Context, ids []string) ([]*models.Post, error) {
	if len(ids) == 0 {
		return []*models.Post{}, nil
	}
	db, cancel := s.conn(ctx)
	defer cancel()

	var rows []postRow
	if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, apperr.Unavailable("GetPosts", err)
	}
	return postModels(rows), nil
}

// UpdatePost applies a sparse patch
func (s *Store) UpdatePost(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error) {
	if patch.Empty() {
		return s.GetPost(ctx, id)
	}
	updates := map[string]interface{}{}
	if patch.Text != nil {
		updates["text"] = *patch.Text
	}
	if patch.MediaURIs != nil {
		updates["media_uris"] = pq.StringArray(nonNil(*patch.MediaURIs))
	}
	if patch.Hashtags != nil {
		updates["hashtags"] = pq.StringArray(nonNil(*patch.Hashtags))
	}
	if patch.IsPrivate != nil {
		updates["is_private"] = *patch.IsPrivate
	}
	if patch.IsBlocked != nil {
		updates["is_blocked"] = *patch.IsBlocked
	}

	db, cancel := s.conn(ctx)
	defer cancel()

	res := db.Model(&postRow{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, apperr.Unavailable("UpdatePost", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("UpdatePost", "post %s not found", id)
	}
	var row postRow
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		return nil, classify("UpdatePost", err, "post %s not found", id)
	}
	return row.model(), nil
}

// DeletePost removes the post row
func (s *Store) DeletePost(ctx context.Context, id string) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	res := db.Delete(&postRow{}, "id = ?", id)
	if res.Error != nil {
		return apperr.Unavailable("DeletePost", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("DeletePost", "post %s not found", id)
	}
	return nil
}

// FindPosts runs a predicate search
func (s *Store) FindPosts(ctx context.Context, pred query.Predicate, opts store.FindOptions) ([]*models.Post, error) {
	where, args, err := toSQL(pred)
	if err != nil {
		return nil, apperr.Invalid("FindPosts", "%v", err)
	}
	db, cancel := s.conn(ctx)
	defer cancel()

	order := "timestamp DESC, id"
	if opts.OrderBy == store.OldestFirst {
		order = "timestamp ASC, id"
	}
	q := db.Where(where, args...).Order(order)
	if opts.Skip > 0 {
		q = q.Offset(opts.Skip)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}

	var rows []postRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, apperr.Unavailable("FindPosts", err)
	}
	return postModels(rows), nil
}

// AdjustCounter moves a paired counter, flooring at zero
func (s *Store) AdjustCounter(ctx context.Context, postID string, field models.CounterField, delta int64) error {
	var col string
	switch field {
	case models.CounterLikes, models.CounterReposts:
		col = string(field)
	default:
		return apperr.Invalid("AdjustCounter", "unknown counter %q", field)
	}
	db, cancel := s.conn(ctx)
	defer cancel()

	res := db.Model(&postRow{}).Where("id = ?", postID).
		Update(col, gorm.Expr("GREATEST("+col+" + ?, 0)", delta))
	if res.Error != nil {
		return apperr.Unavailable("AdjustCounter", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("AdjustCounter", "post %s not found", postID)
	}
	return nil
}

func postModels(rows []postRow) []*models.Post {
	out := make([]*models.Post, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out
}
