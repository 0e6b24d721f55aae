package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is reported through the result callback when a delivery is
// dropped because the queue is saturated.
var ErrQueueFull = errors.New("notification queue full")

// DispatcherConfig sizes the worker pool.
type DispatcherConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// DefaultDispatcherConfig returns 4 workers, a 256-slot queue and a 10s
// per-delivery timeout.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{Workers: 4, QueueSize: 256, Timeout: 10 * time.Second}
}

// Result is the outcome of one delivery.
type Result struct {
	Message Message
	Err     error
	Elapsed time.Duration
}

// Dispatcher delivers messages through a Gateway on a fixed worker pool.
// Submit never blocks the caller.
type Dispatcher struct {
	cfg      DispatcherConfig
	gateway  Gateway
	logger   *zap.Logger
	onResult func(Result)

	queue     chan Message
	done      chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	dropped   atomic.Uint64
	closeOnce sync.Once
}

// NewDispatcher starts cfg.Workers goroutines. onResult, when non-nil, is
// called from a worker after every delivery and synchronously for drops.
func NewDispatcher(cfg DispatcherConfig, gateway Gateway, logger *zap.Logger, onResult func(Result)) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		cfg:      cfg,
		gateway:  gateway,
		logger:   logger,
		onResult: onResult,
		queue:    make(chan Message, cfg.QueueSize),
		done:     make(chan struct{}),
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.run()
	}
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case msg := <-d.queue:
			d.deliver(msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.queue:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := d.gateway.Send(ctx, msg)
	elapsed := time.Since(start)

	if err != nil {
		d.logger.Warn("otp delivery failed",
			zap.String("channel", string(msg.Channel)),
			zap.String("destination", MaskDestination(msg.Destination)),
			zap.String("purpose", msg.Purpose),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	}
	if d.onResult != nil {
		d.onResult(Result{Message: msg, Err: err, Elapsed: elapsed})
	}
}

// Submit enqueues msg. It returns false when the dispatcher is closed or the
// queue is full; the drop is also reported through the result callback.
func (d *Dispatcher) Submit(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.queue <- msg:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("otp delivery dropped",
			zap.String("channel", string(msg.Channel)),
			zap.String("destination", MaskDestination(msg.Destination)),
			zap.Int("queue_size", d.cfg.QueueSize),
		)
		if d.onResult != nil {
			d.onResult(Result{Message: msg, Err: ErrQueueFull})
		}
		return false
	}
}

// Dropped reports how many messages were rejected by a full queue.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops accepting messages, drains the queue and waits for workers.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.done)
		d.wg.Wait()
	})
}
