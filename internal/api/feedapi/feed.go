// Package feedapi serves the feed_api namespace
package feedapi

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/snapshare/snapfeed/internal/api/params"
	"github.com/snapshare/snapfeed/internal/feed"
)

// API provides subscription and timeline methods
type API struct {
	engine *feed.Engine
}

// New creates the feed API
func New(engine *feed.Engine) *API {
	return &API{engine: engine}
}

func pair(op string, raw json.RawMessage) (string, string, error) {
	p, err := params.Parse(op, raw)
	if err != nil {
		return "", "", err
	}
	user, err := p.RequireString(op, "user")
	if err != nil {
		return "", "", err
	}
	target, err := p.RequireString(op, "target")
	if err != nil {
		return "", "", err
	}
	return user, target, nil
}

// Subscribe handles feed_api.subscribe
func (a *API) Subscribe(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	user, target, err := pair("feed_api.subscribe", raw)
	if err != nil {
		return nil, err
	}
	if err := a.engine.Subscribe(c.Request.Context(), user, target); err != nil {
		return nil, err
	}
	return gin.H{"subscribed": true}, nil
}

// Unsubscribe handles feed_api.unsubscribe
func (a *API) Unsubscribe(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	user, target, err := pair("feed_api.unsubscribe", raw)
	if err != nil {
		return nil, err
	}
	if err := a.engine.Unsubscribe(c.Request.Context(), user, target); err != nil {
		return nil, err
	}
	return gin.H{"subscribed": false}, nil
}

// IsFollowing handles feed_api.is_following
func (a *API) IsFollowing(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	user, target, err := pair("feed_api.is_following", raw)
	if err != nil {
		return nil, err
	}
	ok, err := a.engine.IsFollowing(c.Request.Context(), user, target)
	if err != nil {
		return nil, err
	}
	return gin.H{"following": ok}, nil
}

// GetFeed handles feed_api.get_feed
func (a *API) GetFeed(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	const op = "feed_api.get_feed"
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
	return a.engine.GetFeed(c.Request.Context(), user, limit, page)
}
