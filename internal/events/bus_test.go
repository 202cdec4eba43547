package events

import (
	"sync"
	"testing"
	"time"
)

func TestNilBus(t *testing.T) {
	var b *Bus
	b.Publish(Event{Source: SourceAgent, Kind: KindRequestStart})
	b.Emit(SourceAgent, KindComplete, nil)
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() on nil bus = %d, want 0", got)
	}
}

func TestEmitStampsTime(t *testing.T) {
	b := New()
	ch := b.Subscribe(4)
	defer b.Unsubscribe(ch)

	before := time.Now()
	b.Emit(SourceAgent, KindAttempt, map[string]any{"attempt": 2})

	select {
	case got := <-ch:
		if got.Kind != KindAttempt || got.Source != SourceAgent {
			t.Errorf("got %s/%s, want agent/attempt", got.Source, got.Kind)
		}
		if got.Timestamp.Before(before) {
			t.Errorf("timestamp %v before publish time %v", got.Timestamp, before)
		}
		if got.Data["attempt"] != 2 {
			t.Errorf("attempt = %v, want 2", got.Data["attempt"])
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestFanOut(t *testing.T) {
	b := New()
	chans := make([]<-chan Event, 3)
	for i := range chans {
		chans[i] = b.Subscribe(4)
	}
	b.Publish(Event{Source: SourceSurface, Kind: KindSurfaceDeleted})

	for i, ch := range chans {
		select {
		case got := <-ch:
			if got.Kind != KindSurfaceDeleted {
				t.Errorf("subscriber %d: kind = %q", i, got.Kind)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out", i)
		}
		b.Unsubscribe(ch)
	}
}

func TestDropOnFull(t *testing.T) {
	b := New()
	ch := b.Subscribe(1)
	defer b.Unsubscribe(ch)

	b.Publish(Event{Kind: "first"})
	b.Publish(Event{Kind: "second"})

	if got := <-ch; got.Kind != "first" {
		t.Errorf("kind = %q, want first", got.Kind)
	}
	select {
	case evt := <-ch:
		t.Errorf("expected dropped event, got %v", evt)
	default:
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch1 := b.Subscribe(4)
	ch2 := b.Subscribe(4)
	if got := b.SubscriberCount(); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}

	b.Unsubscribe(ch1)
	b.Unsubscribe(ch1)
	if _, ok := <-ch1; ok {
		t.Error("channel still open after Unsubscribe")
	}
	if got := b.SubscriberCount(); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
	b.Unsubscribe(ch2)
	b.Publish(Event{Kind: KindError})
}

func TestConcurrentPublish(t *testing.T) {
	b := New()
	ch := b.Subscribe(64)

	var drain sync.WaitGroup
	drain.Add(1)
	go func() {
		defer drain.Done()
		for range ch {
		}
	}()

	var pubs sync.WaitGroup
	for i := range 8 {
		pubs.Add(1)
		go func() {
			defer pubs.Done()
			for j := range 50 {
				b.Emit(SourceAgent, KindToolCall, map[string]any{"publisher": i, "seq": j})
			}
		}()
	}
	pubs.Wait()
	b.Unsubscribe(ch)
	drain.Wait()
}
