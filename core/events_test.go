// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"sync"
	"testing"

	"github.com/devblok/cadence/core"
)

func TestEventStreamDeliversInOrder(t *testing.T) {
	stream := core.NewEventStream()
	sub := stream.Subscribe()
	defer sub.Unsubscribe()

	stream.Post(core.WindowResized{Width: 640, Height: 480})
	stream.Post(core.WindowCloseRequested{})

	events := sub.Get()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if resized, ok := events[0].(core.WindowResized); !ok || resized.Width != 640 {
		t.Errorf("unexpected first event %#v", events[0])
	}
	if _, ok := events[1].(core.WindowCloseRequested); !ok {
		t.Errorf("unexpected second event %#v", events[1])
	}

	if again := sub.Get(); len(again) != 0 {
		t.Errorf("events delivered twice: %#v", again)
	}
}

func TestEventStreamDropsWithoutSubscribers(t *testing.T) {
	stream := core.NewEventStream()
	stream.Post(core.WindowCloseRequested{})

	sub := stream.Subscribe()
	defer sub.Unsubscribe()

	if events := sub.Get(); len(events) != 0 {
		t.Errorf("subscriber received events posted before subscribing: %#v", events)
	}
}

func TestEventStreamIndependentCursors(t *testing.T) {
	stream := core.NewEventStream()
	first := stream.Subscribe()
	second := stream.Subscribe()
	defer first.Unsubscribe()
	defer second.Unsubscribe()

	stream.Post(core.WindowCloseRequested{})
	if got := first.Get(); len(got) != 1 {
		t.Fatalf("first subscriber got %d events", len(got))
	}

	stream.Post(core.WindowAboutToBeDestroyed{})
	if got := second.Get(); len(got) != 2 {
		t.Errorf("second subscriber got %d events, expected its full backlog", len(got))
	}
	if got := first.Get(); len(got) != 1 {
		t.Errorf("first subscriber got %d events after the second drained", len(got))
	}
}

func TestEventStreamUnsubscribeReleasesBacklog(t *testing.T) {
	stream := core.NewEventStream()
	stalled := stream.Subscribe()
	active := stream.Subscribe()
	defer active.Unsubscribe()

	stream.Post(core.WindowCloseRequested{})
	active.Get()

	// The stalled subscriber holds the backlog; dropping it must not
	// replay anything to the active one.
	stalled.Unsubscribe()
	if got := active.Get(); len(got) != 0 {
		t.Errorf("compaction replayed %d events", len(got))
	}

	stream.Post(core.WindowAboutToBeDestroyed{})
	if got := active.Get(); len(got) != 1 {
		t.Errorf("expected 1 event after compaction, got %d", len(got))
	}
}

func TestEventStreamDeliveredBacklogIsStable(t *testing.T) {
	stream := core.NewEventStream()
	sub := stream.Subscribe()
	defer sub.Unsubscribe()

	stream.Post(core.WindowResized{Width: 640, Height: 480})

	events := sub.Get()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	stream.Post(core.WindowCloseRequested{})

	if resized, ok := events[0].(core.WindowResized); !ok || resized.Width != 640 {
		t.Errorf("delivered backlog changed after a later post: %#v", events[0])
	}
}

func TestEventStreamConcurrentPost(t *testing.T) {
	stream := core.NewEventStream()
	sub := stream.Subscribe()
	defer sub.Unsubscribe()

	const posts = 64
	var wg sync.WaitGroup
	for i := 0; i < posts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stream.Post(core.WindowCloseRequested{})
		}()
	}
	wg.Wait()

	if got := sub.Get(); len(got) != posts {
		t.Errorf("expected %d events, got %d", posts, len(got))
	}
}
