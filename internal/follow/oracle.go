// Package follow answers "does requester follow target" for visibility decisions.
package follow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/snapshare/snapfeed/internal/apperr"
	"github.com/snapshare/snapfeed/internal/models"
	"github.com/snapshare/snapfeed/internal/store"
)

// DefaultTimeout bounds a remote oracle call
const DefaultTimeout = 2 * time.Second

// Oracle reports follow relationships
type Oracle interface {
	IsFollowing(ctx context.Context, requester, target string) (bool, error)
}

// StoreOracle reads the target's followers array
type StoreOracle struct {
	Users store.Users
}

// IsFollowing reports whether requester is among target's followers
func (o StoreOracle) IsFollowing(ctx context.Context, requester, target string) (bool, error) {
	u, err := o.Users.GetUser(ctx, target)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.Has(models.FieldFollowers, requester), nil
}

// HTTPClient asks a relation service over HTTP
type HTTPClient struct {
	base string
	hc   *http.Client
}

// NewHTTPClient creates a traced client with a per-call timeout
func NewHTTPClient(base string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		base: base,
		hc: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// IsFollowing calls GET {base}/follows?follower=..&following=..
func (c *HTTPClient) IsFollowing(ctx context.Context, requester, target string) (bool, error) {
	q := url.Values{}
	q.Set("follower", requester)
	q.Set("following", target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/follows?"+q.Encode(), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("relation service status %d", resp.StatusCode)
	}
	var out struct {
		Following bool `json:"following"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.Following, nil
}

// Resolve downgrades a private request to public-only unless requester follows
// target or is target. Oracle failures resolve to false.
func Resolve(ctx context.Context, oracle Oracle, logger *zap.Logger, requester, target string, private bool) bool {
	if !private {
		return false
	}
	if requester != "" && requester == target {
		return true
	}
	if oracle == nil || requester == "" {
		return false
	}
	ok, err := oracle.IsFollowing(ctx, requester, target)
	if err != nil {
		logger.Warn("Follow oracle failed, denying private access",
			zap.String("requester", requester),
			zap.String("target", target),
			zap.Error(err))
		return false
	}
	return ok
}
