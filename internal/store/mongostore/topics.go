package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/snapshare/snapfeed/internal/apperr"
	"github.com/snapshare/snapfeed/internal/models"
)

// RecordMention inserts the mention then upserts the topic with $push and $max
func (s *Store) RecordMention(ctx context.Context, mention *models.TopicMention) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if _, err := s.mentions.InsertOne(ctx, mention); err != nil {
		return classify("RecordMention", err, "mention %s already recorded", mention.ID)
	}
	_, err := s.topics.UpdateOne(ctx,
		bson.M{"_id": mention.Topic},
		bson.M{
			"$push": bson.M{"mentions": mention.ID},
			"$max":  bson.M{"last_mentioned": mention.CreatedAt},
		},
		options.Update().SetUpsert(true),
	)
	return apperr.Unavailable("RecordMention", err)
}

// LiveTopics groups mentions newer than since by topic
func (s *Store) LiveTopics(ctx context.Context, since time.Time) ([]models.TopicCount, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"created_at": bson.M{"$gt": since}}}},
		{{Key: "$group", Value: bson.M{"_id": "$topic", "count": bson.M{"$sum": 1}}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         colTopics,
			"localField":   "_id",
			"foreignField": "_id",
			"as":           "topic",
		}}},
		{{Key: "$unwind", Value: "$topic"}},
		{{Key: "$match", Value: bson.M{"topic.last_mentioned": bson.M{"$gt": since}}}},
	}
	cur, err := s.mentions.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperr.Unavailable("LiveTopics", err)
	}
	var rows []struct {
		Topic string `bson:"_id"`
		Count int64  `bson:"count"`
		Doc   struct {
			LastMentioned time.Time `bson:"last_mentioned"`
		} `bson:"topic"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, apperr.Unavailable("LiveTopics", err)
	}
	out := make([]models.TopicCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.TopicCount{Topic: r.Topic, MentionCount: r.Count, LastMentioned: r.Doc.LastMentioned.UTC()})
	}
	return out, nil
}

// PurgeExpired deletes expired mentions, unlinks them from topics and deletes stale topics
func (s *Store) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	expired := bson.M{"created_at": bson.M{"$lte": before}}
	ids, err := s.mentions.Distinct(ctx, "_id", expired)
	if err != nil {
		return 0, apperr.Unavailable("PurgeExpired", err)
	}
	var removed int64
	if len(ids) > 0 {
		res, err := s.mentions.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
		if err != nil {
			return 0, apperr.Unavailable("PurgeExpired", err)
		}
		removed += res.DeletedCount
		if _, err := s.topics.UpdateMany(ctx, bson.M{}, bson.M{"$pull": bson.M{"mentions": bson.M{"$in": ids}}}); err != nil {
			return removed, apperr.Unavailable("PurgeExpired", err)
		}
	}
	res, err := s.topics.DeleteMany(ctx, bson.M{"last_mentioned": bson.M{"$lte": before}})
	if err != nil {
		return removed, apperr.Unavailable("PurgeExpired", err)
	}
	return removed + res.DeletedCount, nil
}
