package navigation

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/breatheroute/wayfinder/internal/position"
)

// Runner errors.
var (
	ErrRunnerClosed = errors.New("fix runner closed")
	ErrFixQueueFull = errors.New("fix queue full")
)

// RunnerConfig holds configuration for a Runner.
type RunnerConfig struct {
	// QueueSize bounds pending fixes (default: 32).
	QueueSize int

	// OnResult is called on the runner goroutine after every successful
	// update, in fix order.
	OnResult func(ctx context.Context, fix position.Fix, res Result)

	Logger zerolog.Logger
}

type fixRequest struct {
	ctx   context.Context
	fix   position.Fix
	reply chan fixReply
}

type fixReply struct {
	res Result
	err error
}

// Runner is the single consumer of fixes for one session. Fixes from HTTP,
// websocket and serial sources all pass through its queue, so updates are
// applied one at a time in arrival order.
type Runner struct {
	session  *Session
	onResult func(ctx context.Context, fix position.Fix, res Result)
	logger   zerolog.Logger
	queue    chan fixRequest

	mu     sync.Mutex
	closed bool

	base context.Context
	stop context.CancelFunc
	done chan struct{}
}

// NewRunner starts a runner for s. Close must be called to release it.
func NewRunner(s *Session, cfg RunnerConfig) *Runner {
	size := cfg.QueueSize
	if size <= 0 {
		size = 32
	}

	base, stop := context.WithCancel(context.Background())
	r := &Runner{
		session:  s,
		onResult: cfg.OnResult,
		logger:   cfg.Logger,
		queue:    make(chan fixRequest, size),
		base:     base,
		stop:     stop,
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// Submit queues fix and waits for its result.
func (r *Runner) Submit(ctx context.Context, fix position.Fix) (Result, error) {
	reply := make(chan fixReply, 1)
	if err := r.send(ctx, fixRequest{ctx: ctx, fix: fix, reply: reply}); err != nil {
		return Result{}, err
	}

	select {
	case rep := <-reply:
		return rep.res, rep.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Enqueue queues fix without waiting. It fails with ErrFixQueueFull rather
// than block a streaming source.
func (r *Runner) Enqueue(fix position.Fix) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRunnerClosed
	}

	select {
	case r.queue <- fixRequest{ctx: r.base, fix: fix}:
		return nil
	default:
		return ErrFixQueueFull
	}
}

func (r *Runner) send(ctx context.Context, req fixRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRunnerClosed
	}

	select {
	case r.queue <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) run() {
	defer close(r.done)
	for req := range r.queue {
		if err := req.ctx.Err(); err != nil {
			r.respond(req, Result{}, err)
			continue
		}

		res, err := r.session.Update(req.ctx, req.fix)
		if err != nil {
			r.logger.Debug().Err(err).
				Float64("lat", req.fix.Lat).
				Float64("lon", req.fix.Lon).
				Msg("fix rejected")
		} else if r.onResult != nil {
			r.onResult(req.ctx, req.fix, res)
		}
		r.respond(req, res, err)
	}
}

func (r *Runner) respond(req fixRequest, res Result, err error) {
	if req.reply != nil {
		req.reply <- fixReply{res: res, err: err}
	}
}

// Close stops accepting fixes and waits for the worker to drain the queue.
// Fixes queued by Enqueue are dropped; submitted ones are still applied.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	r.stop()
	close(r.queue)
	r.mu.Unlock()

	<-r.done
}
