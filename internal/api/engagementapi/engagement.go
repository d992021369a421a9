// Package engagementapi serves the engagement_api namespace: favorites,
// likes and reposts
package engagementapi

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/snapshare/snapfeed/internal/api/params"
	"github.com/snapshare/snapfeed/internal/engagement"
	"github.com/snapshare/snapfeed/internal/models"
)

// API provides the engagement methods
type API struct {
	svc *engagement.Service
}

// New creates the engagement API
func New(svc *engagement.Service) *API {
	return &API{svc: svc}
}

type (
	mutateFunc func(ctx context.Context, user, post string) error
	checkFunc  func(ctx context.Context, user, post string) (bool, error)
	listFunc   func(ctx context.Context, user string, limit, page int) ([]*models.Post, error)
)

func mutate(op, key string, value bool, fn mutateFunc) func(*gin.Context, json.RawMessage) (interface{}, error) {
	return func(c *gin.Context, raw json.RawMessage) (interface{}, error) {
		p, err := params.Parse(op, raw)
		if err != nil {
			return nil, err
		}
		user, post, err := p.Pair(op)
		if err != nil {
			return nil, err
		}
		if err := fn(c.Request.Context(), user, post); err != nil {
			return nil, err
		}
		return gin.H{key: value}, nil
	}
}

func check(op, key string, fn checkFunc) func(*gin.Context, json.RawMessage) (interface{}, error) {
	return func(c *gin.Context, raw json.RawMessage) (interface{}, error) {
		p, err := params.Parse(op, raw)
		if err != nil {
			return nil, err
		}
		user, post, err := p.Pair(op)
		if err != nil {
			return nil, err
		}
		ok, err := fn(c.Request.Context(), user, post)
		if err != nil {
			return nil, err
		}
		return gin.H{key: ok}, nil
	}
}

func list(op string, fn listFunc) func(*gin.Context, json.RawMessage) (interface{}, error) {
	return func(c *gin.Context, raw json.RawMessage) (interface{}, error) {
		p, err := params.Parse(op, raw)
		if err != nil {
			return nil, err
		}
		user, err := p.RequireString(op, "user")
		if err != nil {
			return nil, err
		}
		limit, page, err := p.Page(op)
		if err != nil {
			return nil, err
		}
		return fn(c.Request.Context(), user, limit, page)
	}
}

// Methods returns every engagement_api method keyed by its full name
func (a *API) Methods() map[string]func(*gin.Context, json.RawMessage) (interface{}, error) {
	return map[string]func(*gin.Context, json.RawMessage) (interface{}, error){
		"engagement_api.add_favorite":    mutate("engagement_api.add_favorite", "favorited", true, a.svc.AddFavorite),
		"engagement_api.remove_favorite": mutate("engagement_api.remove_favorite", "favorited", false, a.svc.RemoveFavorite),
		"engagement_api.is_favorited":    check("engagement_api.is_favorited", "favorited", a.svc.IsFavorited),
		"engagement_api.list_favorites":  list("engagement_api.list_favorites", a.svc.ListFavorites),

		"engagement_api.like":       mutate("engagement_api.like", "liked", true, a.svc.Like),
		"engagement_api.unlike":     mutate("engagement_api.unlike", "liked", false, a.svc.Unlike),
		"engagement_api.is_liked":   check("engagement_api.is_liked", "liked", a.svc.IsLiked),
		"engagement_api.list_likes": list("engagement_api.list_likes", a.svc.ListLikes),

		"engagement_api.create_repost": a.CreateRepost,
		"engagement_api.delete_repost": mutate("engagement_api.delete_repost", "reposted", false, a.svc.DeleteRepost),
		"engagement_api.is_reposted":   check("engagement_api.is_reposted", "reposted", a.svc.IsReposted),
		"engagement_api.list_reposts":  a.ListReposts,
	}
}

// CreateRepost handles engagement_api.create_repost
func (a *API) CreateRepost(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	const op = "engagement_api.create_repost"
	p, err := params.Parse(op, raw)
	if err != nil {
		return nil, err
	}
	user, post, err := p.Pair(op)
	if err != nil {
		return nil, err
	}
	return a.svc.CreateRepost(c.Request.Context(), user, post)
}

// ListReposts handles engagement_api.list_reposts. Reposts of private posts
// need private=true and a requester who follows the owner.
func (a *API) ListReposts(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	const op = "engagement_api.list_reposts"
	p, err := params.Parse(op, raw)
	if err != nil {
		return nil, err
	}
	owner, err := p.RequireString(op, "user")
	if err != nil {
		return nil, err
	}
	private, err := p.Bool(op, "private", false)
	if err != nil {
		return nil, err
	}
	limit, page, err := p.Page(op)
	if err != nil {
		return nil, err
	}
	return a.svc.ListReposts(c.Request.Context(), p.String("requester"), owner, private, limit, page)
}
