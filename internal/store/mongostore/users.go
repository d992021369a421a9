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

// EnsureUser upserts an empty user document and returns the stored one
func (s *Store) EnsureUser(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	fresh := models.NewUser(id, time.Now().UTC())
	onInsert := bson.M{"created_at": fresh.CreatedAt}
	for _, f := range models.UserFields {
		onInsert[string(f)] = bson.A{}
	}

	var u models.User
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$setOnInsert": onInsert},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&u)
	if mongo.IsDuplicateKeyError(err) {
		// lost a concurrent upsert; the winner's document is there now
		return s.GetUser(ctx, id)
	}
	if err != nil {
		return nil, classify("EnsureUser", err, "user %s not found", id)
	}
	return normalize(&u), nil
}

// GetUser loads a user
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var u models.User
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, classify("GetUser", err, "user %s not found", id)
	}
	return normalize(&u), nil
}

// DeleteUser removes the user document
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	res, err := s.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return apperr.Unavailable("DeleteUser", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("DeleteUser", "user %s not found", id)
	}
	return nil
}

// AddToSet is a single guarded $addToSet; ModifiedCount says whether it won
func (s *Store) AddToSet(ctx context.Context, userID string, field models.UserField, value string) (bool, error) {
	if !field.Valid() {
		return false, apperr.Invalid("AddToSet", "unknown field %q", field)
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	key := string(field)
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": userID, key: bson.M{"$ne": value}},
		bson.M{"$addToSet": bson.M{key: value}},
	)
	if err != nil {
		return false, apperr.Unavailable("AddToSet", err)
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}
	return false, s.mustExist(ctx, "AddToSet", userID)
}

func (s *Store) mustExist(ctx context.Context, op, userID string) error {
	n, err := s.users.CountDocuments(ctx, bson.M{"_id": userID})
	if err != nil {
		return apperr.Unavailable(op, err)
	}
	if n == 0 {
		return apperr.NotFound(op, "user %s not found", userID)
	}
	return nil
}

// before applies update and returns the array as it was before
func (s *Store) before(ctx context.Context, op, userID string, field models.UserField, update bson.M) ([]string, error) {
	if !field.Valid() {
		return nil, apperr.Invalid(op, "unknown field %q", field)
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var u models.User
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": userID},
		update,
		options.FindOneAndUpdate().
			SetReturnDocument(options.Before).
			SetProjection(bson.M{string(field): 1}),
	).Decode(&u)
	if err != nil {
		return nil, classify(op, err, "user %s not found", userID)
	}
	return u.Field(field), nil
}

// Pull removes values with $pull/$in
func (s *Store) Pull(ctx context.Context, userID string, field models.UserField, values ...string) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}
	prev, err := s.before(ctx, "Pull", userID, field,
		bson.M{"$pull": bson.M{string(field): bson.M{"$in": values}}})
	if err != nil {
		return 0, err
	}
	drop := make(map[string]struct{}, len(values))
	for _, v := range values {
		drop[v] = struct{}{}
	}
	removed := 0
	for _, v := range prev {
		if _, ok := drop[v]; ok {
			removed++
		}
	}
	return removed, nil
}

// Trim keeps the newest maxLen entries with $push/$each/$slice
func (s *Store) Trim(ctx context.Context, userID string, field models.UserField, maxLen int) (int, error) {
	if maxLen < 0 {
		return 0, nil
	}
	prev, err := s.before(ctx, "Trim", userID, field, bson.M{
		"$push": bson.M{string(field): bson.M{"$each": bson.A{}, "$slice": -maxLen}},
	})
	if err != nil {
		return 0, err
	}
	if len(prev) <= maxLen {
		return 0, nil
	}
	return len(prev) - maxLen, nil
}

// PullFromAll strips value from the given arrays of every user
func (s *Store) PullFromAll(ctx context.Context, value string, fields ...models.UserField) error {
	if len(fields) == 0 {
		return nil
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	or := make(bson.A, 0, len(fields))
	pull := bson.M{}
	for _, f := range fields {
		if !f.Valid() {
			return apperr.Invalid("PullFromAll", "unknown field %q", f)
		}
		or = append(or, bson.M{string(f): value})
		pull[string(f)] = value
	}
	_, err := s.users.UpdateMany(ctx, bson.M{"$or": or}, bson.M{"$pull": pull})
	return apperr.Unavailable("PullFromAll", err)
}

func normalize(u *models.User) *models.User {
	for _, f := range models.UserFields {
		if u.Field(f) == nil {
			u.SetField(f, []string{})
		}
	}
	return u
}
