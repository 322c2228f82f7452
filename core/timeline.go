// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"
	"sync"
	"time"
)

// TimelineCounter is a monotonically increasing 64-bit counter bound to
// exactly one command queue. It gives callers a total order over the
// queue's work and a way to block until any chosen point in that order
// has been reached. Zero is the initial "nothing submitted" sentinel.
//
// Signal, Wait, LastCompleted and Complete are safe from any thread.
// EnqueueSignal and EnqueueWait order with queue submission and are
// render-thread only.
type TimelineCounter struct {
	queue Queue

	mu        sync.Mutex
	current   uint64
	completed uint64
	advanced  chan struct{}
}

// NewTimelineCounter binds a fresh counter to the given queue. The
// queue must not share the counter with any other queue.
func NewTimelineCounter(queue Queue) *TimelineCounter {
	return &TimelineCounter{
		queue:    queue,
		advanced: make(chan struct{}),
	}
}

// Signal publishes value as a CPU-side signal: the counter immediately
// reaches value. Returns ErrInvalidArgument when value is not strictly
// greater than the last issued value.
func (t *TimelineCounter) Signal(value uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if value <= t.current {
		return fmt.Errorf("core.Signal(%d): current value is %d: %w", value, t.current, ErrInvalidArgument)
	}
	t.current = value
	t.completeLocked(value)
	return nil
}

// SignalNext issues a CPU-side signal for the next value and returns
// it. Values returned by consecutive calls are strictly increasing and
// contiguous.
func (t *TimelineCounter) SignalNext() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current++
	t.completeLocked(t.current)
	return t.current
}

// EnqueueSignal appends a signal command to the bound queue: the
// counter reaches value once all prior queue work completes.
func (t *TimelineCounter) EnqueueSignal(value uint64) error {
	if err := t.queue.EnqueueSignal(t, value); err != nil {
		return fmt.Errorf("queue.EnqueueSignal(%d): %w", value, err)
	}
	t.mu.Lock()
	if value > t.current {
		t.current = value
	}
	t.mu.Unlock()
	return nil
}

// EnqueueSignalNext enqueues a signal for the next value on the bound
// queue and returns the value the queue will reach.
func (t *TimelineCounter) EnqueueSignalNext() (uint64, error) {
	t.mu.Lock()
	value := t.current + 1
	t.mu.Unlock()

	if err := t.EnqueueSignal(value); err != nil {
		return 0, err
	}
	return value, nil
}

// EnqueueWait appends a wait command to the bound queue; the queue
// stalls until another signaller brings the counter to value.
func (t *TimelineCounter) EnqueueWait(value uint64) error {
	if err := t.queue.EnqueueWait(t, value); err != nil {
		return fmt.Errorf("queue.EnqueueWait(%d): %w", value, err)
	}
	return nil
}

// Wait blocks until the counter has reached value or timeout elapses.
// A zero timeout polls, a negative timeout blocks indefinitely. The
// return value reports whether value was reached; after an early
// return, LastCompleted distinguishes progress from timeout.
func (t *TimelineCounter) Wait(value uint64, timeout time.Duration) bool {
	t.mu.Lock()
	if t.completed >= value {
		t.mu.Unlock()
		return true
	}
	if timeout == 0 {
		t.mu.Unlock()
		return false
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		advanced := t.advanced
		t.mu.Unlock()

		select {
		case <-advanced:
		case <-expired:
			t.mu.Lock()
			reached := t.completed >= value
			t.mu.Unlock()
			return reached
		}

		t.mu.Lock()
		if t.completed >= value {
			t.mu.Unlock()
			return true
		}
	}
}

// LastCompleted observes the last value the counter is known to have
// reached. It may lag the true value but never decreases.
func (t *TimelineCounter) LastCompleted() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// Current returns the last issued value.
func (t *TimelineCounter) Current() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Complete reports GPU-side completion of value. Queue implementations
// call it once the queue has executed an enqueued signal. Values at or
// below the already completed value are ignored.
func (t *TimelineCounter) Complete(value uint64) {
	t.mu.Lock()
	t.completeLocked(value)
	t.mu.Unlock()
}

func (t *TimelineCounter) completeLocked(value uint64) {
	if value <= t.completed {
		return
	}
	t.completed = value
	close(t.advanced)
	t.advanced = make(chan struct{})
}
