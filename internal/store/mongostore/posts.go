package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/snapshare/snapfeed/internal/apperr"
	"github.com/snapshare/snapfeed/internal/models"
	"github.com/snapshare/snapfeed/internal/query"
	"github.com/snapshare/snapfeed/internal/store"
)

// InsertPost stores a post document
func (s *Store) InsertPost(ctx context.Context, post *models.Post) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	doc := post.Clone()
	if doc.MediaURIs == nil {
		doc.MediaURIs = []string{}
	}
	if doc.Hashtags == nil {
		doc.Hashtags = []string{}
	}
	_, err := s.posts.InsertOne(ctx, doc)
	return classify("InsertPost", err, "post %s already exists", post.ID)
}

// GetPost loads a post
func (s *Store) GetPost(ctx context.Context, id string) (*models.Post, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var p models.Post
	if err := s.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, classify("GetPost", err, "post %s not found", id)
	}
	p.Timestamp = p.Timestamp.UTC()
	return &p, nil
}

// GetPosts loads the posts that exist among ids
func (s *Store) GetPosts(ctx context.Context, ids []string) ([]*models.Post, error) {
	if len(ids) == 0 {
		return []*models.Post{}, nil
	}
	return s.findPosts(ctx, "GetPosts", bson.M{"_id": bson.M{"$in": ids}}, options.Find())
}

// UpdatePost applies a sparse patch with $set
func (s *Store) UpdatePost(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error) {
	if patch.Empty() {
		return s.GetPost(ctx, id)
	}
	set := bson.M{}
	if patch.Text != nil {
		set["text"] = *patch.Text
	}
	if patch.MediaURIs != nil {
		set["media_uris"] = *patch.MediaURIs
	}
	if patch.Hashtags != nil {
		set["hashtags"] = *patch.Hashtags
	}
	if patch.IsPrivate != nil {
		set["is_private"] = *patch.IsPrivate
	}
	if patch.IsBlocked != nil {
		set["is_blocked"] = *patch.IsBlocked
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var p models.Post
	err := s.posts.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&p)
	if err != nil {
		return nil, classify("UpdatePost", err, "post %s not found", id)
	}
	p.Timestamp = p.Timestamp.UTC()
	return &p, nil
}

// DeletePost removes the post document
func (s *Store) DeletePost(ctx context.Context, id string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	res, err := s.posts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return apperr.Unavailable("DeletePost", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("DeletePost", "post %s not found", id)
	}
	return nil
}

// FindPosts runs a predicate search with skip, limit and sort
func (s *Store) FindPosts(ctx context.Context, pred query.Predicate, opts store.FindOptions) ([]*models.Post, error) {
	filter, err := toBSON(pred)
	if err != nil {
		return nil, apperr.Invalid("FindPosts", "%v", err)
	}
	dir := -1
	if opts.OrderBy == store.OldestFirst {
		dir = 1
	}
	find := options.Find().SetSort(bson.D{{Key: "timestamp", Value: dir}, {Key: "_id", Value: 1}})
	if opts.Skip > 0 {
		find.SetSkip(int64(opts.Skip))
	}
	if opts.Limit > 0 {
		find.SetLimit(int64(opts.Limit))
	}
	return s.findPosts(ctx, "FindPosts", filter, find)
}

func (s *Store) findPosts(ctx context.Context, op string, filter interface{}, opts *options.FindOptions) ([]*models.Post, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	cur, err := s.posts.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Unavailable(op, err)
	}
	out := make([]*models.Post, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperr.Unavailable(op, err)
	}
	for _, p := range out {
		p.Timestamp = p.Timestamp.UTC()
	}
	return out, nil
}

// AdjustCounter moves a counter with an update pipeline so the floor is applied server side
func (s *Store) AdjustCounter(ctx context.Context, postID string, field models.CounterField, delta int64) error {
	if field != models.CounterLikes && field != models.CounterReposts {
		return apperr.Invalid("AdjustCounter", "unknown counter %q", field)
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	key := string(field)
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: key, Value: bson.D{{Key: "$max", Value: bson.A{
			0, bson.D{{Key: "$add", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$" + key, 0}}}, delta}}},
		}}}}}}},
	}
	res, err := s.posts.UpdateOne(ctx, bson.M{"_id": postID}, update)
	if err != nil {
		return apperr.Unavailable("AdjustCounter", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("AdjustCounter", "post %s not found", postID)
	}
	return nil
}
