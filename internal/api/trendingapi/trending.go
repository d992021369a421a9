// Package trendingapi serves the trending_api namespace
package trendingapi

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/snapshare/snapfeed/internal/api/params"
	"github.com/snapshare/snapfeed/internal/trending"
)

// API provides trending topic methods
type API struct {
	svc *trending.Service
}

// New creates the trending API
func New(svc *trending.Service) *API {
	return &API{svc: svc}
}

// GetTrendingTopics handles trending_api.get_trending_topics
func (a *API) GetTrendingTopics(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	const op = "trending_api.get_trending_topics"
	p, err := params.Parse(op, raw)
	if err != nil {
		return nil, err
	}
	limit, page, err := p.Page(op)
	if err != nil {
		return nil, err
	}
	return a.svc.Top(c.Request.Context(), limit, page)
}
