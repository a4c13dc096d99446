// Package pool provides an ants backed worker pool for retrieval fan-out.
package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

// ErrPoolClosed is returned when submitting to a released pool.
var ErrPoolClosed = errors.New("worker pool is closed")

// Config defines the configuration for the worker pool.
type Config struct {
	// Capacity is the maximum number of concurrent goroutines.
	Capacity int
	// ExpiryDuration is how long idle workers are kept alive.
	ExpiryDuration time.Duration
	// Nonblocking makes Submit return an error when the pool is full
	// instead of blocking.
	Nonblocking bool
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() *Config {
	return &Config{
		Capacity:       64,
		ExpiryDuration: 10 * time.Second,
	}
}

// Pool represents a worker pool.
type Pool struct {
	name      string
	pool      *ants.Pool
	closed    atomic.Bool
	submitted atomic.Int64
	completed atomic.Int64
}

// New creates a new worker pool with the given configuration.
func New(name string, config *Config) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}

	antsPool, err := ants.NewPool(config.Capacity,
		ants.WithExpiryDuration(config.ExpiryDuration),
		ants.WithNonblocking(config.Nonblocking),
		ants.WithPanicHandler(func(p interface{}) {
			logger.Errorw("Worker panic recovered", "pool", name, "panic", p)
		}),
	)
	if err != nil {
		return nil, err
	}

	return &Pool{name: name, pool: antsPool}, nil
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.name
}

// Running returns the number of running workers.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Submit submits a task for execution.
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	return p.pool.Submit(func() {
		p.submitted.Add(1)
		defer p.completed.Add(1)
		task()
	})
}

// SubmitWithContext rejects the task when ctx is already cancelled at
// submit time. An accepted task always runs; it observes later
// cancellation through its own context.
func (p *Pool) SubmitWithContext(ctx context.Context, task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Submit(task)
}

// Stats returns submitted and completed task counts.
func (p *Pool) Stats() (submitted, completed int64) {
	return p.submitted.Load(), p.completed.Load()
}

// Release closes the pool and releases its resources.
func (p *Pool) Release() {
	if p.closed.Swap(true) {
		return
	}
	p.pool.Release()
	logger.Infow("Worker pool released", "name", p.name)
}
