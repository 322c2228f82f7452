// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"errors"
	"sync"

	"github.com/devblok/cadence/core"
)

// fakeQueue implements core.Queue with a controllable GPU: in auto
// mode every enqueued signal completes immediately, otherwise signals
// stay pending until finish is called.
type fakeQueue struct {
	mu   sync.Mutex
	auto bool

	submissions [][]core.CommandList
	waits       []uint64
	pending     []pendingSignal

	submitErr error
	signalErr error
}

type pendingSignal struct {
	counter *core.TimelineCounter
	value   uint64
}

func (q *fakeQueue) Submit(lists ...core.CommandList) error {
	if q.submitErr != nil {
		return q.submitErr
	}
	q.mu.Lock()
	q.submissions = append(q.submissions, lists)
	q.mu.Unlock()
	return nil
}

func (q *fakeQueue) EnqueueSignal(counter *core.TimelineCounter, value uint64) error {
	if q.signalErr != nil {
		return q.signalErr
	}
	if q.auto {
		counter.Complete(value)
		return nil
	}
	q.mu.Lock()
	q.pending = append(q.pending, pendingSignal{counter: counter, value: value})
	q.mu.Unlock()
	return nil
}

func (q *fakeQueue) EnqueueWait(counter *core.TimelineCounter, value uint64) error {
	q.mu.Lock()
	q.waits = append(q.waits, value)
	q.mu.Unlock()
	return nil
}

// finish completes the n oldest pending signals.
func (q *fakeQueue) finish(n int) {
	q.mu.Lock()
	done := q.pending[:n]
	q.pending = q.pending[n:]
	q.mu.Unlock()
	for _, signal := range done {
		signal.counter.Complete(signal.value)
	}
}

type fakeAllocator struct {
	resets    int
	destroyed bool
	resetErr  error
}

func (a *fakeAllocator) Reset() error {
	if a.resetErr != nil {
		return a.resetErr
	}
	a.resets++
	return nil
}

func (a *fakeAllocator) Destroy() {
	a.destroyed = true
}

type fakeList struct {
	closed bool
}

func (l *fakeList) Close() error {
	l.closed = true
	return nil
}

type fakeRecorder struct {
	allocators []*fakeAllocator
	lists      []*fakeList
}

func (r *fakeRecorder) CreateAllocator() (core.CommandAllocator, error) {
	allocator := &fakeAllocator{}
	r.allocators = append(r.allocators, allocator)
	return allocator, nil
}

func (r *fakeRecorder) CreateList(core.CommandAllocator) (core.CommandList, error) {
	list := &fakeList{}
	r.lists = append(r.lists, list)
	return list, nil
}

func newAllocators(n int) []core.CommandAllocator {
	allocators := make([]core.CommandAllocator, n)
	for idx := range allocators {
		allocators[idx] = &fakeAllocator{}
	}
	return allocators
}

type fakeBackBuffer struct {
	released bool
}

func (b *fakeBackBuffer) Release() {
	b.released = true
}

type fakeTexture struct {
	released bool
}

func (t *fakeTexture) Release() {
	t.released = true
}

type fakeDepthAllocator struct {
	created []*fakeTexture

	// failAt makes the allocator fail on the nth creation, 1-based.
	// Zero never fails.
	failAt int
}

func (a *fakeDepthAllocator) CreateDepthTexture(width, height uint32) (core.Texture, error) {
	if a.failAt > 0 && len(a.created)+1 == a.failAt {
		return nil, errors.New("vk.CreateImage(): out of device memory")
	}
	texture := &fakeTexture{}
	a.created = append(a.created, texture)
	return texture, nil
}

type fakeSwapchain struct {
	index     int
	buffers   int
	resizes   [][2]uint32
	presents  int
	acquired  [][]*fakeBackBuffer
	destroyed bool
	resizeErr error
}

func (s *fakeSwapchain) Present() error {
	s.presents++
	return nil
}

func (s *fakeSwapchain) CurrentBackBufferIndex() int {
	return s.index
}

func (s *fakeSwapchain) Resize(width, height uint32) error {
	if s.resizeErr != nil {
		return s.resizeErr
	}
	s.resizes = append(s.resizes, [2]uint32{width, height})
	return nil
}

func (s *fakeSwapchain) AcquireBackBuffers() ([]core.BackBuffer, error) {
	buffers := make([]*fakeBackBuffer, s.buffers)
	acquired := make([]core.BackBuffer, s.buffers)
	for idx := range buffers {
		buffers[idx] = &fakeBackBuffer{}
		acquired[idx] = buffers[idx]
	}
	s.acquired = append(s.acquired, buffers)
	return acquired, nil
}

func (s *fakeSwapchain) Destroy() {
	s.destroyed = true
}
