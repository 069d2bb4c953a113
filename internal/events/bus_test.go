/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "testing"

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventTransition)
	other := bus.Subscribe(EventCue)

	bus.Publish(EventTransition, Payload{"to": "finale"})

	select {
	case p := <-sub:
		if p["to"] != "finale" {
			t.Fatalf("payload = %v", p)
		}
	default:
		t.Fatal("subscriber did not receive payload")
	}
	select {
	case p := <-other:
		t.Fatalf("unrelated subscriber received %v", p)
	default:
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventView)
	for i := 0; i < cap(sub)+4; i++ {
		bus.Publish(EventView, Payload{"i": i})
	}
	if len(sub) != cap(sub) {
		t.Fatalf("buffered = %d, want %d", len(sub), cap(sub))
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventHealth)
	bus.Unsubscribe(EventHealth, sub)
	if _, ok := <-sub; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	bus.Publish(EventHealth, Payload{})
}

func TestSubscribeBufferedAndCount(t *testing.T) {
	bus := NewBus()
	sub := bus.SubscribeBuffered(EventView, 32)
	if cap(sub) != 32 {
		t.Fatalf("cap = %d", cap(sub))
	}
	if n := bus.Subscribers(EventView); n != 1 {
		t.Fatalf("subscribers = %d", n)
	}
	bus.Unsubscribe(EventView, sub)
	bus.Unsubscribe(EventView, sub)
	if n := bus.Subscribers(EventView); n != 0 {
		t.Fatalf("subscribers after unsubscribe = %d", n)
	}
}
