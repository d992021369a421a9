package store

import (
	"context"
	"time"
)

// Bounded derives a context bounded by timeout; a non-positive timeout leaves ctx unchanged
func Bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
