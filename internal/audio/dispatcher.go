package audio

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrDispatcherClosed is returned when announcing through a closed Dispatcher.
var ErrDispatcherClosed = errors.New("audio dispatcher closed")

// ErrQueueFull is returned when the dispatch queue cannot accept more work.
var ErrQueueFull = errors.New("audio queue full")

// DispatcherConfig holds configuration for a Dispatcher.
type DispatcherConfig struct {
	// Target receives the announcements.
	Target Announcer

	// QueueSize bounds pending requests (default: 16).
	QueueSize int

	// Logger for delivery failures.
	Logger zerolog.Logger

	// OnError, if set, is called from the worker for every failed delivery
	// other than a superseded one. op is "speak" or "tone".
	OnError func(op string, err error)
}

type job struct {
	speech bool
	text   string
	voice  Voice
	tone   []byte
	volume float64
}

// Dispatcher delivers announcements on a background goroutine so callers
// never wait on the target. A new speech request supersedes the one being
// delivered by cancelling its context. Speech still waiting in the queue is
// never superseded, and tones are never cancelled.
type Dispatcher struct {
	target  Announcer
	logger  zerolog.Logger
	onError func(op string, err error)
	queue   chan job

	mu     sync.Mutex
	closed bool
	// speaking cancels the speech request the worker is delivering, if any.
	speaking context.CancelFunc

	base context.Context
	stop context.CancelFunc
	done chan struct{}
}

// NewDispatcher starts a dispatcher. Close must be called to release it.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	size := cfg.QueueSize
	if size <= 0 {
		size = 16
	}

	base, stop := context.WithCancel(context.Background())
	d := &Dispatcher{
		target:  cfg.Target,
		logger:  cfg.Logger,
		onError: cfg.OnError,
		queue:   make(chan job, size),
		base:    base,
		stop:    stop,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Speak enqueues a speech request and returns immediately.
func (d *Dispatcher) Speak(_ context.Context, text string, voice Voice) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	if d.speaking != nil {
		d.speaking()
		d.speaking = nil
	}
	return d.enqueue(job{speech: true, text: text, voice: voice})
}

// PlayTone enqueues a tone request and returns immediately.
func (d *Dispatcher) PlayTone(_ context.Context, tone []byte, volume float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	return d.enqueue(job{tone: tone, volume: volume})
}

// enqueue must be called with d.mu held.
func (d *Dispatcher) enqueue(j job) error {
	select {
	case d.queue <- j:
		return nil
	default:
		d.logger.Warn().Bool("speech", j.speech).Msg("audio queue full, dropping announcement")
		return ErrQueueFull
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for j := range d.queue {
		if d.base.Err() != nil {
			d.logger.Debug().Str("text", j.text).Msg("dispatcher closed, dropping announcement")
			continue
		}

		var err error
		op := "tone"
		if j.speech {
			op = "speak"
			err = d.deliverSpeech(j)
		} else {
			err = d.target.PlayTone(d.base, j.tone, j.volume)
		}

		if err != nil {
			if errors.Is(err, context.Canceled) {
				d.logger.Debug().Str("text", j.text).Msg("announcement superseded")
				continue
			}
			d.logger.Warn().Err(err).
				Bool("speech", j.speech).
				Str("text", j.text).
				Msg("announcement failed")
			if d.onError != nil {
				d.onError(op, err)
			}
		}
	}
}

func (d *Dispatcher) deliverSpeech(j job) error {
	ctx, cancel := context.WithCancel(d.base)
	d.mu.Lock()
	d.speaking = cancel
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.speaking = nil
		d.mu.Unlock()
		cancel()
	}()
	return d.target.Speak(ctx, j.text, j.voice)
}

// Close stops accepting work, cancels in-flight requests and waits for the
// worker to exit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.stop()
	<-d.done
}

var _ Announcer = (*Dispatcher)(nil)
