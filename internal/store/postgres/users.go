package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/snapshare/snapfeed/internal/apperr"
	"github.com/snapshare/snapfeed/internal/models"
)

// column returns the validated column of a user array
func column(op string, field models.UserField) (string, error) {
	if !field.Valid() {
		return "", apperr.Invalid(op, "unknown field %q", field)
	}
	return string(field), nil
}

// EnsureUser inserts the user if absent and returns it
func (s *Store) EnsureUser(ctx context.Context, id string) (*models.User, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	row := userRow{ID: id, CreatedAt: time.Now().UTC()}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return nil, apperr.Unavailable("EnsureUser", err)
	}
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		return nil, classify("EnsureUser", err, "user %s not found", id)
	}
	return row.model(), nil
}

// GetUser loads a user
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var row userRow
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		return nil, classify("GetUser", err, "user %s not found", id)
	}
	return row.model(), nil
}

// DeleteUser removes the user row
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	res := db.Delete(&userRow{}, "id = ?", id)
	if res.Error != nil {
		return apperr.Unavailable("DeleteUser", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("DeleteUser", "user %s not found", id)
	}
	return nil
}

// AddToSet appends value with a single guarded update
func (s *Store) AddToSet(ctx context.Context, userID string, field models.UserField, value string) (bool, error) {
	col, err := column("AddToSet", field)
	if err != nil {
		return false, err
	}
	db, cancel := s.conn(ctx)
	defer cancel()

	res := db.Model(&userRow{}).
		Where("id = ? AND NOT (?::text = ANY("+col+"))", userID, value).
		Update(col, gorm.Expr("array_append("+col+", ?::text)", value))
	if res.Error != nil {
		return false, apperr.Unavailable("AddToSet", res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	return false, s.mustExist(db, "AddToSet", userID)
}

func (s *Store) mustExist(db *gorm.DB, op, userID string) error {
	var n int64
	if err := db.Model(&userRow{}).Where("id = ?", userID).Count(&n).Error; err != nil {
		return apperr.Unavailable(op, err)
	}
	if n == 0 {
		return apperr.NotFound(op, "user %s not found", userID)
	}
	return nil
}

// rewrite locks the user row, transforms one array and writes it back
func (s *Store) rewrite(ctx context.Context, op, userID string, field models.UserField, fn func([]string) ([]string, int)) (int, error) {
	col, err := column(op, field)
	if err != nil {
		return 0, err
	}
	db, cancel := s.conn(ctx)
	defer cancel()

	changed := 0
	err = db.Transaction(func(tx *gorm.DB) error {
		var row userRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", userID).Error; err != nil {
			return classify(op, err, "user %s not found", userID)
		}
		u := row.model()
		next, n := fn(u.Field(field))
		if n == 0 {
			return nil
		}
		changed = n
		return tx.Model(&userRow{}).Where("id = ?", userID).
			Update(col, pq.StringArray(next)).Error
	})
	if err != nil {
		return 0, apperr.Unavailable(op, err)
	}
	return changed, nil
}

// Pull removes values from one array
func (s *Store) Pull(ctx context.Context, userID string, field models.UserField, values ...string) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}
	drop := make(map[string]struct{}, len(values))
	for _, v := range values {
		drop[v] = struct{}{}
	}
	return s.rewrite(ctx, "Pull", userID, field, func(arr []string) ([]string, int) {
		kept := make([]string, 0, len(arr))
		for _, v := range arr {
			if _, ok := drop[v]; !ok {
				kept = append(kept, v)
			}
		}
		return kept, len(arr) - len(kept)
	})
}

// Trim keeps the newest maxLen entries
func (s *Store) Trim(ctx context.Context, userID string, field models.UserField, maxLen int) (int, error) {
	return s.rewrite(ctx, "Trim", userID, field, func(arr []string) ([]string, int) {
		if maxLen < 0 || len(arr) <= maxLen {
			return arr, 0
		}
		evicted := len(arr) - maxLen
		return arr[evicted:], evicted
	})
}

// PullFromAll strips value from the given arrays of every user
func (s *Store) PullFromAll(ctx context.Context, value string, fields ...models.UserField) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	for _, f := range fields {
		col, err := column("PullFromAll", f)
		if err != nil {
			return err
		}
		err = db.Model(&userRow{}).
			Where("?::text = ANY("+col+")", value).
			Update(col, gorm.Expr("array_remove("+col+", ?::text)", value)).Error
		if err != nil {
			return apperr.Unavailable("PullFromAll", err)
		}
	}
	return nil
}
