// Package postsapi serves the posts_api namespace
package postsapi

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/snapshare/snapfeed/internal/api/params"
	"github.com/snapshare/snapfeed/internal/models"
	"github.com/snapshare/snapfeed/internal/posts"
	"github.com/snapshare/snapfeed/internal/query"
)

// API provides the post methods
type API struct {
	posts *posts.Service
}

// New creates the posts API
func New(svc *posts.Service) *API {
	return &API{posts: svc}
}

// CreatePost handles posts_api.create_post
func (a *API) CreatePost(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	const op = "posts_api.create_post"
	p, err := params.Parse(op, raw)
	if err != nil {
		return nil, err
	}
	in := posts.NewPost{AuthorID: p.String("author_id"), Text: p.String("text")}
	if in.MediaURIs, err = p.Strings(op, "media_uris"); err != nil {
		return nil, err
	}
	if in.Hashtags, err = p.Strings(op, "hashtags"); err != nil {
		return nil, err
	}
	if in.IsPrivate, err = p.Bool(op, "is_private", false); err != nil {
		return nil, err
	}
	return a.posts.CreatePost(c.Request.Context(), in)
}

// GetPost handles posts_api.get_post
func (a *API) GetPost(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	const op = "posts_api.get_post"
	p, err := params.Parse(op, raw)
	if err != nil {
		return nil, err
	}
	id, err := p.RequireString(op, "id")
	if err != nil {
		return nil, err
	}
	return a.posts.GetPost(c.Request.Context(), id)
}

// UpdatePost handles posts_api.update_post. Any of text, media_uris,
// hashtags, is_private and is_blocked may be given.
func (a *API) UpdatePost(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	const op = "posts_api.update_post"
	p, err := params.Parse(op, raw)
	if err != nil {
		return nil, err
	}
	id, err := p.RequireString(op, "id")
	if err != nil {
		return nil, err
	}
	var patch models.PostPatch
	if patch.Text, err = p.OptionalString(op, "text"); err != nil {
		return nil, err
	}
	if patch.MediaURIs, err = p.OptionalStrings(op, "media_uris"); err != nil {
		return nil, err
	}
	if patch.Hashtags, err = p.OptionalStrings(op, "hashtags"); err != nil {
		return nil, err
	}
	if patch.IsPrivate, err = p.OptionalBool(op, "is_private"); err != nil {
		return nil, err
	}
	if patch.IsBlocked, err = p.OptionalBool(op, "is_blocked"); err != nil {
		return nil, err
	}
	return a.posts.UpdatePost(c.Request.Context(), p.String("user"), id, patch)
}

// DeletePost handles posts_api.delete_post
func (a *API) DeletePost(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	const op = "posts_api.delete_post"
	p, err := params.Parse(op, raw)
	if err != nil {
		return nil, err
	}
	id, err := p.RequireString(op, "id")
	if err != nil {
		return nil, err
	}
	if err := a.posts.DeletePost(c.Request.Context(), p.String("user"), id); err != nil {
		return nil, err
	}
	return gin.H{"deleted": id}, nil
}

// ListPosts handles posts_api.list_posts. Filter keys are authors, text,
// hashtags and media_uris; public defaults to true.
func (a *API) ListPosts(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	const op = "posts_api.list_posts"
	p, err := params.Parse(op, raw)
	if err != nil {
		return nil, err
	}
	req := posts.ListRequest{
		Requester: p.String("requester"),
		Filter:    query.FilterFromParams(p),
	}
	if req.Public, err = p.Bool(op, "public", true); err != nil {
		return nil, err
	}
	if req.Private, err = p.Bool(op, "private", false); err != nil {
		return nil, err
	}
	if req.Blocked, err = p.Bool(op, "blocked", false); err != nil {
		return nil, err
	}
	if req.Limit, req.Page, err = p.Page(op); err != nil {
		return nil, err
	}
	return a.posts.ListPosts(c.Request.Context(), req)
}

// DeleteUser handles posts_api.delete_user
func (a *API) DeleteUser(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	const op = "posts_api.delete_user"
	p, err := params.Parse(op, raw)
	if err != nil {
		return nil, err
	}
	user, err := p.RequireString(op, "user")
	if err != nil {
		return nil, err
	}
	if err := a.posts.DeleteUser(c.Request.Context(), user); err != nil {
		return nil, err
	}
	return gin.H{"deleted": user}, nil
}
