// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Event is anything posted to an EventStream. The engine's own events
// are below; applications may post their own types.
type Event interface{}

// WindowCloseRequested is posted when the platform asks the window to
// close. Consumed at FrameStart; the engine begins shutdown.
type WindowCloseRequested struct{}

// WindowResized is posted when the platform resized the window. The
// engine latches it onto the first surface at FrameStart.
type WindowResized struct {
	Width  uint32
	Height uint32
}

// WindowAboutToBeDestroyed is posted right before the platform window
// goes away.
type WindowAboutToBeDestroyed struct{}

// EventStream is a small pub/sub registry connecting platform event
// threads to the render thread. Posting is safe from any thread;
// subscribers drain their backlog with Get, which the engine does only
// at FrameStart, never mid-phase.
type EventStream struct {
	mu            sync.Mutex
	events        []Event
	subscriptions map[*EventSubscription]struct{}
}

// EventSubscription is one subscriber's cursor into the stream.
// Subscribers keep it and Unsubscribe in their teardown.
type EventSubscription struct {
	stream *EventStream
	offset int
	source string
}

// NewEventStream creates an empty stream.
func NewEventStream() *EventStream {
	return &EventStream{subscriptions: make(map[*EventSubscription]struct{})}
}

// Subscribe registers a new subscriber. Events posted before the
// subscription are never reported to it.
func (e *EventStream) Subscribe() *EventSubscription {
	// Remember the callsite so stalled subscribers can be tracked down.
	_, fn, line, _ := runtime.Caller(1)

	e.mu.Lock()
	defer e.mu.Unlock()

	sub := &EventSubscription{
		stream: e,
		offset: len(e.events),
		source: fmt.Sprintf("%s:%d", fn, line),
	}
	e.subscriptions[sub] = struct{}{}
	return sub
}

// Post adds an event to the stream. Dropped when nobody subscribes.
func (e *EventStream) Post(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.subscriptions) == 0 {
		return
	}
	e.events = append(e.events, event)
}

// Get returns the events posted since the subscriber's previous Get
// and advances its cursor.
func (s *EventSubscription) Get() []Event {
	e := s.stream
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.subscriptions[s]; !ok {
		log.WithField("source", s.source).Error("get on unregistered event subscription")
		return nil
	}

	// Compaction reuses the backing array for later posts, so the
	// backlog must be copied out before the cursor moves.
	events := append([]Event(nil), e.events[s.offset:]...)
	s.offset = len(e.events)
	e.compactLocked()
	return events
}

// Unsubscribe removes the subscriber from the stream.
func (s *EventSubscription) Unsubscribe() {
	e := s.stream
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.subscriptions[s]; !ok {
		log.WithField("source", s.source).Error("unsubscribe of unregistered event subscription")
		return
	}
	delete(e.subscriptions, s)
	s.stream = nil
	e.compactLocked()
}

// compactLocked drops events every subscriber has consumed.
func (e *EventStream) compactLocked() {
	consumed := len(e.events)
	for sub := range e.subscriptions {
		if sub.offset < consumed {
			consumed = sub.offset
		}
	}
	if consumed == 0 {
		return
	}
	remaining := copy(e.events, e.events[consumed:])
	e.events = e.events[:remaining]
	for sub := range e.subscriptions {
		sub.offset -= consumed
	}
}
