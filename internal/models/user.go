package models

import (
	"time"
)

// UserField names one of the reference arrays held by a user document
type UserField string

// User reference arrays
const (
	FieldPublic    UserField = "public"    // authored public posts
	FieldPrivate   UserField = "private"   // authored private posts
	FieldFavorites UserField = "favorites" // favorited posts
	FieldLiked     UserField = "liked"     // liked posts
	FieldReposts   UserField = "reposts"   // own repost ids
	FieldFollowers UserField = "followers" // follower user ids
	FieldFeed      UserField = "feed"      // bounded timeline, most recent last
)

// UserFields lists every reference array in storage order
var UserFields = []UserField{
	FieldPublic, FieldPrivate, FieldFavorites, FieldLiked, FieldReposts, FieldFollowers, FieldFeed,
}

// PostRefFields are the arrays that reference posts
var PostRefFields = []UserField{
	FieldPublic, FieldPrivate, FieldFavorites, FieldLiked, FieldFeed,
}

// Valid reports whether f is a known array
func (f UserField) Valid() bool {
	for _, known := range UserFields {
		if f == known {
			return true
		}
	}
	return false
}

// User is created lazily on first reference by its external identity
type User struct {
	ID        string    `json:"id" bson:"_id"`
	Public    []string  `json:"public" bson:"public"`
	Private   []string  `json:"private" bson:"private"`
	Favorites []string  `json:"favorites" bson:"favorites"`
	Liked     []string  `json:"liked" bson:"liked"`
	Reposts   []string  `json:"reposts" bson:"reposts"`
	Followers []string  `json:"followers" bson:"followers"`
	Feed      []string  `json:"feed" bson:"feed"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// NewUser returns an empty user document
func NewUser(id string, now time.Time) *User {
	return &User{
		ID:        id,
		Public:    []string{},
		Private:   []string{},
		Favorites: []string{},
		Liked:     []string{},
		Reposts:   []string{},
		Followers: []string{},
		Feed:      []string{},
		CreatedAt: now,
	}
}

// Field returns the array named by f
func (u *User) Field(f UserField) []string {
	switch f {
	case FieldPublic:
		return u.Public
	case FieldPrivate:
		return u.Private
	case FieldFavorites:
		return u.Favorites
	case FieldLiked:
		return u.Liked
	case FieldReposts:
		return u.Reposts
	case FieldFollowers:
		return u.Followers
	case FieldFeed:
		return u.Feed
	}
	return nil
}

// SetField replaces the array named by f
func (u *User) SetField(f UserField, values []string) {
	switch f {
	case FieldPublic:
		u.Public = values
	case FieldPrivate:
		u.Private = values
	case FieldFavorites:
		u.Favorites = values
	case FieldLiked:
		u.Liked = values
	case FieldReposts:
		u.Reposts = values
	case FieldFollowers:
		u.Followers = values
	case FieldFeed:
		u.Feed = values
	}
}

// Has reports whether value is present in the array named by f
func (u *User) Has(f UserField, value string) bool {
	for _, v := range u.Field(f) {
		if v == value {
			return true
		}
	}
	return false
}

// Authored returns the ids of every post the user wrote, public first
func (u *User) Authored() []string {
	out := make([]string, 0, len(u.Public)+len(u.Private))
	out = append(out, u.Public...)
	return append(out, u.Private...)
}

// Clone returns a deep copy
func (u *User) Clone() *User {
	c := *u
	for _, f := range UserFields {
		c.SetField(f, append([]string{}, u.Field(f)...))
	}
	return &c
}
