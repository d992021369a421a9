package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/snapshare/snapfeed/internal/engagement"
	"github.com/snapshare/snapfeed/internal/feed"
	"github.com/snapshare/snapfeed/internal/follow"
	"github.com/snapshare/snapfeed/internal/posts"
	"github.com/snapshare/snapfeed/internal/store/memory"
	"github.com/snapshare/snapfeed/internal/trending"
)

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func newTestEngine(t *testing.T, debug bool, pinger Pinger) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	st := memory.New()
	oracle := follow.StoreOracle{Users: st}
	engine := feed.NewEngine(st, feed.Options{MaxFeed: 250, Concurrency: 4, MaxLimit: 100}, logger)
	eng := engagement.NewService(st, oracle, 100, logger)
	tr := trending.NewService(st, nil, trending.Options{Window: 24 * time.Hour, MaxLimit: 100}, logger)
	svc := posts.NewService(st, feed.Inline{Engine: engine}, tr, eng, oracle, 100, logger)

	if pinger == nil {
		pinger = st
	}
	router := NewRouter(Services{Posts: svc, Feed: engine, Engagement: eng, Trending: tr, Store: pinger}, debug)
	g := gin.New()
	router.SetupRoutes(g)
	return g
}

type rpcResult struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int       `json:"code"`
		Message string    `json:"message"`
		Data    ErrorData `json:"data"`
	} `json:"error"`
}

func call(t *testing.T, g *gin.Engine, method string, params interface{}) rpcResult {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	if err != nil {
		t.Fatal(err)
	}
	return post(t, g, body)
}

func post(t *testing.T, g *gin.Engine, body []byte) rpcResult {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	g.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var res rpcResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return res
}

func TestRouter_PostLifecycle(t *testing.T) {
	g := newTestEngine(t, false, nil)

	res := call(t, g, "posts_api.create_post", map[string]interface{}{
		"author_id": "alice", "text": "hello", "hashtags": []string{"#intro"},
	})
	if res.Error != nil {
		t.Fatalf("create_post error = %+v", res.Error)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(res.Result, &created); err != nil || created.ID == "" {
		t.Fatalf("create_post result = %s", res.Result)
	}

	if res = call(t, g, "feed_api.subscribe", map[string]string{"user": "bob", "target": "alice"}); res.Error != nil {
		t.Fatalf("subscribe error = %+v", res.Error)
	}
	res = call(t, g, "feed_api.get_feed", map[string]interface{}{"user": "bob", "limit": 10})
	var feedPosts []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(res.Result, &feedPosts); err != nil || len(feedPosts) != 1 || feedPosts[0].ID != created.ID {
		t.Fatalf("get_feed = %s", res.Result)
	}

	if res = call(t, g, "engagement_api.like", map[string]string{"user": "bob", "post_id": created.ID}); res.Error != nil {
		t.Fatalf("like error = %+v", res.Error)
	}
	res = call(t, g, "posts_api.get_post", map[string]string{"id": created.ID})
	var got struct {
		LikeCount int `json:"like_count"`
	}
	if err := json.Unmarshal(res.Result, &got); err != nil || got.LikeCount != 1 {
		t.Fatalf("get_post = %s", res.Result)
	}

	res = call(t, g, "trending_api.get_trending_topics", map[string]int{"limit": 5})
	var topics []struct {
		Topic string `json:"topic"`
	}
	if err := json.Unmarshal(res.Result, &topics); err != nil || len(topics) != 1 || topics[0].Topic != "#intro" {
		t.Fatalf("get_trending_topics = %s", res.Result)
	}

	res = call(t, g, "posts_api.list_posts", map[string]interface{}{"hashtags": []string{"#intro"}, "limit": 5})
	var entries []struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(res.Result, &entries); err != nil || len(entries) != 1 || entries[0].Kind != "original" {
		t.Fatalf("list_posts = %s", res.Result)
	}
}

func TestRouter_Errors(t *testing.T) {
	g := newTestEngine(t, false, nil)
	created := call(t, g, "posts_api.create_post", map[string]string{"author_id": "alice", "text": "x"})
	var p struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(created.Result, &p)
	call(t, g, "engagement_api.add_favorite", map[string]string{"user": "bob", "post_id": p.ID})

	tests := []struct {
		name   string
		method string
		params interface{}
		code   int
		kind   string
	}{
		{name: "unknown method", method: "nope.nothing", code: ErrMethodNotFound},
		{name: "missing param", method: "posts_api.get_post", params: map[string]string{}, code: ErrInvalidParams, kind: "invalid_argument"},
		{name: "positional params", method: "posts_api.get_post", params: []string{"x"}, code: ErrInvalidParams, kind: "invalid_argument"},
		{name: "bad hashtag", method: "posts_api.create_post", params: map[string]interface{}{"author_id": "a", "hashtags": []string{"bare"}}, code: ErrInvalidParams, kind: "invalid_argument"},
		{name: "zero limit", method: "feed_api.get_feed", params: map[string]interface{}{"user": "bob", "limit": 0}, code: ErrInvalidParams, kind: "invalid_argument"},
		{name: "missing post", method: "posts_api.get_post", params: map[string]string{"id": "missing"}, code: ErrNotFound, kind: "not_found"},
		{name: "duplicate favorite", method: "engagement_api.add_favorite", params: map[string]string{"user": "bob", "post_id": p.ID}, code: ErrConflict, kind: "conflict"},
		{name: "self subscribe", method: "feed_api.subscribe", params: map[string]string{"user": "bob", "target": "bob"}, code: ErrConflict, kind: "conflict"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := call(t, g, tt.method, tt.params)
			if res.Error == nil {
				t.Fatalf("expected error, got %s", res.Result)
			}
			if res.Error.Code != tt.code {
				t.Errorf("code = %d, want %d", res.Error.Code, tt.code)
			}
			if tt.kind != "" && res.Error.Data.Kind != tt.kind {
				t.Errorf("kind = %q, want %q", res.Error.Data.Kind, tt.kind)
			}
			if res.Error.Data.Detail != "" {
				t.Errorf("detail leaked without debug: %q", res.Error.Data.Detail)
			}
		})
	}
}

func TestRouter_ProtocolErrors(t *testing.T) {
	g := newTestEngine(t, true, nil)

	if res := post(t, g, []byte(`{not json`)); res.Error == nil || res.Error.Code != ErrParseError {
		t.Errorf("parse error response = %+v", res.Error)
	}
	if res := post(t, g, []byte(`{"jsonrpc":"1.0","id":1,"method":"posts_api.get_post"}`)); res.Error == nil || res.Error.Code != ErrInvalidRequest {
		t.Errorf("version error response = %+v", res.Error)
	}

	res := call(t, g, "posts_api.get_post", map[string]string{"id": "missing"})
	if res.Error == nil || res.Error.Data.Detail == "" {
		t.Errorf("debug mode should carry detail: %+v", res.Error)
	}
}

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name   string
		pinger Pinger
		code   int
	}{
		{name: "healthy", code: http.StatusOK},
		{name: "store down", pinger: failingPinger{}, code: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestEngine(t, false, tt.pinger)
			w := httptest.NewRecorder()
			g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d", w.Code, tt.code)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body["cache"] != "disabled" {
				t.Errorf("cache = %q, want disabled", body["cache"])
			}
		})
	}
}

func TestRouter_Metrics(t *testing.T) {
	g := newTestEngine(t, false, nil)
	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}
