package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/snapshare/snapfeed/internal/api/engagementapi"
	"github.com/snapshare/snapfeed/internal/api/feedapi"
	"github.com/snapshare/snapfeed/internal/api/postsapi"
	"github.com/snapshare/snapfeed/internal/api/trendingapi"
	"github.com/snapshare/snapfeed/internal/cache"
	"github.com/snapshare/snapfeed/internal/engagement"
	"github.com/snapshare/snapfeed/internal/feed"
	"github.com/snapshare/snapfeed/internal/posts"
	"github.com/snapshare/snapfeed/internal/trending"
	"github.com/snapshare/snapfeed/pkg/logging"
)

const healthTimeout = 2 * time.Second

// Pinger reports backend health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the domain services exposed over JSON-RPC
type Services struct {
	Posts      *posts.Service
	Feed       *feed.Engine
	Engagement *engagement.Service
	Trending   *trending.Service
	Store      Pinger
	Cache      *cache.Cache
}

// Router sets up API routes
type Router struct {
	handler  *JSONRPCHandler
	services Services
	logger   *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(services Services, debugErrors bool) *Router {
	router := &Router{
		handler:  NewJSONRPCHandler(debugErrors),
		services: services,
		logger:   logging.WithComponent("api-router"),
	}
	router.registerMethods()
	return router
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.POST("/", r.handler.Handle)
}

// registerMethods registers all API methods
func (r *Router) registerMethods() {
	postsAPI := postsapi.New(r.services.Posts)
	r.handler.RegisterMethod("posts_api.create_post", postsAPI.CreatePost)
	r.handler.RegisterMethod("posts_api.get_post", postsAPI.GetPost)
	r.handler.RegisterMethod("posts_api.update_post", postsAPI.UpdatePost)
	r.handler.RegisterMethod("posts_api.delete_post", postsAPI.DeletePost)
	r.handler.RegisterMethod("posts_api.list_posts", postsAPI.ListPosts)
	r.handler.RegisterMethod("posts_api.delete_user", postsAPI.DeleteUser)

	feedAPI := feedapi.New(r.services.Feed)
	r.handler.RegisterMethod("feed_api.subscribe", feedAPI.Subscribe)
	r.handler.RegisterMethod("feed_api.unsubscribe", feedAPI.Unsubscribe)
	r.handler.RegisterMethod("feed_api.is_following", feedAPI.IsFollowing)
	r.handler.RegisterMethod("feed_api.get_feed", feedAPI.GetFeed)

	for name, fn := range engagementapi.New(r.services.Engagement).Methods() {
		r.handler.RegisterMethod(name, fn)
	}

	trendingAPI := trendingapi.New(r.services.Trending)
	r.handler.RegisterMethod("trending_api.get_trending_topics", trendingAPI.GetTrendingTopics)
}

// healthHandler reports the store and cache state. An unreachable store
// makes the service unhealthy, a missing cache does not.
func (r *Router) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status, code := "OK", http.StatusOK
	storeState := "ok"
	if r.services.Store != nil {
		if err := r.services.Store.Ping(ctx); err != nil {
			r.logger.Warn("Store health check failed", zap.Error(err))
			status, code, storeState = "DEGRADED", http.StatusServiceUnavailable, "unavailable"
		}
	}

	cacheState := "ok"
	if err := r.services.Cache.Health(ctx); errors.Is(err, cache.ErrCacheDisabled) {
		cacheState = "disabled"
	} else if err != nil {
		r.logger.Warn("Cache health check failed", zap.Error(err))
		cacheState = "unavailable"
	}

	c.JSON(code, gin.H{
		"status":  status,
		"service": "snapfeed-api",
		"store":   storeState,
		"cache":   cacheState,
	})
}
