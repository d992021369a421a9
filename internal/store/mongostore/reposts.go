package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/snapshare/snapfeed/internal/apperr"
	"github.com/snapshare/snapfeed/internal/models"
)

// InsertRepost relies on the unique (user_id, post_id) index
func (s *Store) InsertRepost(ctx context.Context, repost *models.Repost) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	_, err := s.reposts.InsertOne(ctx, repost)
	return classify("InsertRepost", err, "post %s already reposted by %s", repost.PostID, repost.UserID)
}

// GetRepost finds the repost of a pair
func (s *Store) GetRepost(ctx context.Context, userID, postID string) (*models.Repost, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var r models.Repost
	if err := s.reposts.FindOne(ctx, bson.M{"user_id": userID, "post_id": postID}).Decode(&r); err != nil {
		return nil, classify("GetRepost", err, "post %s not reposted by %s", postID, userID)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

// GetReposts loads the reposts that exist among ids
func (s *Store) GetReposts(ctx context.Context, ids []string) ([]*models.Repost, error) {
	if len(ids) == 0 {
		return []*models.Repost{}, nil
	}
	return s.findReposts(ctx, "GetReposts", bson.M{"_id": bson.M{"$in": ids}})
}

// FindRepostsByPost lists every repost of a post, oldest first
func (s *Store) FindRepostsByPost(ctx context.Context, postID string) ([]*models.Repost, error) {
	return s.findReposts(ctx, "FindRepostsByPost", bson.M{"post_id": postID})
}

func (s *Store) findReposts(ctx context.Context, op string, filter bson.M) ([]*models.Repost, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	cur, err := s.reposts.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, apperr.Unavailable(op, err)
	}
	out := make([]*models.Repost, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperr.Unavailable(op, err)
	}
	for _, r := range out {
		r.CreatedAt = r.CreatedAt.UTC()
	}
	return out, nil
}

// DeleteRepost removes one repost
func (s *Store) DeleteRepost(ctx context.Context, id string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	res, err := s.reposts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return apperr.Unavailable("DeleteRepost", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("DeleteRepost", "repost %s not found", id)
	}
	return nil
}

// DeleteRepostsByPost removes every repost of a post
func (s *Store) DeleteRepostsByPost(ctx context.Context, postID string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	_, err := s.reposts.DeleteMany(ctx, bson.M{"post_id": postID})
	return apperr.Unavailable("DeleteRepostsByPost", err)
}
