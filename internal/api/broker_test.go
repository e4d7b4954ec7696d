package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	topic := "2026-09-01"
	ch := b.Subscribe(topic)

	evt := SSEEvent{Type: "schedule.generated", Data: map[string]any{"inducted": 10}}
	b.Publish(topic, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["inducted"].(int) != 10 {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(topic, ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		// acceptable if already drained and closed
	}
}

func TestBrokerTopicsAreIsolated(t *testing.T) {
	b := NewBroker()
	day := b.Subscribe("2026-09-01")
	all := b.Subscribe("all")
	defer b.Unsubscribe("2026-09-01", day)
	defer b.Unsubscribe("all", all)

	b.Publish("2026-09-02", SSEEvent{Type: "schedule.generated"})

	select {
	case <-day:
		t.Fatal("event leaked across date topics")
	case <-time.After(50 * time.Millisecond):
	}

	// "all" is its own topic; publishers fan out to it explicitly
	select {
	case <-all:
		t.Fatal("publish to a date topic must not reach the all topic")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBrokerPublishNeverBlocks(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("all")
	defer b.Unsubscribe("all", ch)

	// fill past channel capacity; surplus events are dropped, not queued
	for i := 0; i < 50; i++ {
		b.Publish("all", SSEEvent{Type: "schedule.generated", Data: map[string]any{"i": i}})
	}
}
