package proctap

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ColonelBlimp/proctap/internal/convert"
	"github.com/ColonelBlimp/proctap/internal/platform"
	"github.com/ColonelBlimp/proctap/internal/recovery"
)

// workerIdleSleep is how long the worker sleeps after an empty backend read
// before polling again (spec.md §4.6's worker-loop pseudocode).
const workerIdleSleep = 5 * time.Millisecond

// workerJoinTimeout bounds how long Stop waits for the worker to exit
// (spec.md §4.6, §5): the worker is a daemon, so a missed join never blocks
// the caller.
const workerJoinTimeout = 2 * time.Second

// defaultReadTimeout is used by Read when the caller does not override it.
const defaultReadTimeout = 200 * time.Millisecond

// outputQueueCapacity bounds the coordinator's pull-mode output queue
// (spec.md §5: "bounded (100 chunks); drop-oldest on overflow").
const outputQueueCapacity = 100

// resourceExhaustedThreshold is how long the backend's hand-off buffer must
// overflow continuously before the worker reports resource-exhausted
// (spec.md §7: "reported only if the worker cannot keep up for >1s
// continuously").
const resourceExhaustedThreshold = 1 * time.Second

// OnDataFunc is the real-time callback signature of spec.md §6. bytes is
// valid only for the duration of the call.
type OnDataFunc func(bytes []byte, frameCount int)

// Coordinator is the public capture object of spec.md §4.6: it owns a
// platform backend, an optional format converter, an output queue, and the
// worker goroutine that drives data from one to the other.
type Coordinator struct {
	pid     int
	target  AudioFormat
	quality ResamplingQuality
	onData  OnDataFunc

	mu      sync.Mutex
	backend platform.Backend
	conv    *convert.Pipeline
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	queue   chan []byte

	started atomic.Bool
	stopped atomic.Bool
}

// New constructs a Coordinator for pid. If onData is non-nil, Start runs in
// callback mode; otherwise the caller drives Read in pull mode.
func New(pid int, target AudioFormat, quality ResamplingQuality, onData OnDataFunc) *Coordinator {
	return &Coordinator{
		pid:     pid,
		target:  target,
		quality: quality,
		onData:  onData,
	}
}

// Start selects a backend for the host platform, opens it, and spawns the
// worker. On any failure, every resource acquired so far is released before
// returning (spec.md §4.3/§4.4's unwind requirement, surfaced here too).
func (c *Coordinator) Start() (err error) {
	if c.pid <= 0 {
		return NewError("Coordinator.Start", KindInvalidArgument, fmt.Sprintf("invalid pid %d", c.pid))
	}
	if !c.target.Valid() {
		return NewError("Coordinator.Start", KindInvalidArgument, fmt.Sprintf("invalid target format %v", c.target))
	}
	if !c.started.CompareAndSwap(false, true) {
		return NewError("Coordinator.Start", KindInvalidArgument, "already started")
	}

	backend, err := platform.Select(c.pid, c.target)
	if err != nil {
		c.started.Store(false)
		log.Error("select backend", "pid", c.pid, "err", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := backend.Start(ctx); err != nil {
		cancel()
		c.started.Store(false)
		log.Error("start backend", "pid", c.pid, "err", err)
		return err
	}

	native := backend.NativeFormat()

	var conv *convert.Pipeline
	if convert.NeedsConversion(native, c.target) {
		conv = convert.New(native, c.target, c.quality, false)
		log.Debug("converting audio", "native", native, "target", c.target, "quality", c.quality)
	}

	c.mu.Lock()
	c.backend = backend
	c.conv = conv
	c.cancel = cancel
	c.queue = make(chan []byte, outputQueueCapacity)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runWorker(ctx)

	return nil
}

func (c *Coordinator) runWorker(ctx context.Context) {
	defer recovery.HandlePanicFunc(nil)
	defer c.wg.Done()

	reportedExhausted := false

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		backend := c.backend
		conv := c.conv
		c.mu.Unlock()
		if backend == nil {
			return
		}

		if d := backend.Overflowing(); d > resourceExhaustedThreshold {
			if !reportedExhausted {
				reportedExhausted = true
				log.Error("backend overflowing continuously", "pid", c.pid, "duration", d, "err", ErrResourceExhausted)
			}
		} else {
			reportedExhausted = false
		}

		data := backend.Read(4096)
		if len(data) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(workerIdleSleep):
			}
			continue
		}

		if conv != nil {
			converted, err := conv.Convert(data)
			if err != nil {
				log.Warn("drop packet: conversion failed", "pid", c.pid, "err", err)
				continue
			}
			data = converted
		}

		if c.onData != nil {
			frameCount := 0
			if fb := c.target.BytesPerFrame(); fb > 0 {
				frameCount = len(data) / fb
			}
			c.onData(data, frameCount)
			continue
		}

		c.pushDropOldest(data)
	}
}

// pushDropOldest enqueues data onto the output queue, dropping the oldest
// queued chunk to make room on overflow (spec.md §5).
func (c *Coordinator) pushDropOldest(data []byte) {
	c.mu.Lock()
	q := c.queue
	c.mu.Unlock()
	if q == nil {
		return
	}
	for {
		select {
		case q <- data:
			return
		default:
		}
		select {
		case <-q:
		default:
		}
	}
}

// Read pops from the output queue in pull mode, blocking up to timeout (or
// defaultReadTimeout if timeout <= 0) and returning empty on expiry. Valid
// only when the coordinator was constructed without a callback.
func (c *Coordinator) Read(maxBytes int, timeout time.Duration) []byte {
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	c.mu.Lock()
	q := c.queue
	c.mu.Unlock()
	if q == nil {
		return nil
	}

	select {
	case data := <-q:
		if len(data) > maxBytes {
			return data[:maxBytes]
		}
		return data
	case <-time.After(timeout):
		return nil
	}
}

// Format reports the target (post-conversion) format, not the native one
// (spec.md §4.6).
func (c *Coordinator) Format() AudioFormat {
	return c.target
}

// Stop signals the worker, joins it with a bounded timeout, and releases the
// backend. Idempotent: any sequence start; stop; stop; ...; stop behaves
// like start; stop (spec.md §8).
func (c *Coordinator) Stop() error {
	if !c.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if !c.started.Load() {
		return nil
	}

	c.mu.Lock()
	cancel := c.cancel
	backend := c.backend
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() { c.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(workerJoinTimeout):
		log.Warn("worker join timed out", "pid", c.pid, "timeout", workerJoinTimeout)
	}

	if backend != nil {
		return backend.Stop()
	}
	return nil
}
