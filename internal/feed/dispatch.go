package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/snapshare/snapfeed/internal/models"
)

// Dispatcher hands a freshly created post to the fan-out machinery
type Dispatcher interface {
	Dispatch(ctx context.Context, post *models.Post) error
}

// Inline fans out on the calling goroutine
type Inline struct {
	Engine *Engine
}

// Dispatch runs the fan-out before returning
func (d Inline) Dispatch(ctx context.Context, post *models.Post) error {
	_, err := d.Engine.OnPostCreated(ctx, post)
	return err
}

// ErrPoolClosed is returned when dispatching to a stopped pool
var ErrPoolClosed = errors.New("fan-out pool is closed")

// Pool fans out on a fixed set of background workers. Each job runs with its
// own timeout, detached from the request that created the post.
type Pool struct {
	engine     *Engine
	jobs       chan *models.Post
	workers    int
	jobTimeout time.Duration
	logger     *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a pool; call Start before dispatching
func NewPool(engine *Engine, workers, queueSize int, jobTimeout time.Duration, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		engine:     engine,
		jobs:       make(chan *models.Post, queueSize),
		workers:    workers,
		jobTimeout: jobTimeout,
		logger:     logger,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
}

func (p *Pool) work() {
	defer p.wg.Done()
	for post := range p.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), p.jobTimeout)
		if _, err := p.engine.OnPostCreated(ctx, post); err != nil {
			p.logger.Error("Background fan-out failed", zap.String("post_id", post.ID), zap.Error(err))
		}
		cancel()
	}
}

// Dispatch enqueues the post. When the queue is full the fan-out runs inline
// so that no post is dropped.
func (p *Pool) Dispatch(ctx context.Context, post *models.Post) error {
	queued, err := p.enqueue(post)
	if err != nil || queued {
		return err
	}
	p.logger.Warn("Fan-out queue full, delivering inline", zap.String("post_id", post.ID))
	_, err = p.engine.OnPostCreated(ctx, post)
	return err
}

// enqueue holds the lock only for the non-blocking send
func (p *Pool) enqueue(post *models.Post) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false, ErrPoolClosed
	}
	select {
	case p.jobs <- post.Clone():
		return true, nil
	default:
		return false, nil
	}
}

// Stop closes the queue and waits for queued jobs to drain or ctx to end
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
