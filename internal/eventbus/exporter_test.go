/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/receiver_portal/internal/events"
)

type fakePublisher struct {
	name string
	err  error

	mu       sync.Mutex
	subjects []string
	messages []Message
	calls    int
	closed   bool
}

func (f *fakePublisher) Name() string { return f.name }

func (f *fakePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	f.subjects = append(f.subjects, subject)
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.err
}

func (f *fakePublisher) snapshot() ([]string, []Message, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subjects...), append([]Message(nil), f.messages...), f.calls
}

func TestExportEnvelope(t *testing.T) {
	pub := &fakePublisher{name: "fake"}
	e := NewExporter(events.NewBus(), Config{NodeID: "node-a", Prefix: "exso"}, zerolog.Nop(), pub)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	e.Export(context.Background(), events.EventTransition, events.Payload{"session_id": "s1", "to": "finale"})

	subjects, msgs, _ := pub.snapshot()
	if len(subjects) != 1 || subjects[0] != "exso.flow.transition" {
		t.Fatalf("subjects = %v", subjects)
	}
	m := msgs[0]
	if m.EventType != events.EventTransition || m.NodeID != "node-a" || m.MessageID == "" || !m.Timestamp.Equal(fixed) {
		t.Fatalf("message = %+v", m)
	}
	if m.Payload["to"] != "finale" {
		t.Fatalf("payload = %v", m.Payload)
	}
}

func TestExportCircuitBreaker(t *testing.T) {
	down := &fakePublisher{name: "down", err: errors.New("connection refused")}
	up := &fakePublisher{name: "up"}
	e := NewExporter(events.NewBus(), Config{MaxFailures: 2, RetryAfter: time.Minute}, zerolog.Nop(), down, up)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		e.Export(ctx, events.EventCue, events.Payload{"cue": "cue-8"})
	}
	if _, _, calls := down.snapshot(); calls != 2 {
		t.Fatalf("down publisher calls = %d, want 2 before the breaker opens", calls)
	}
	if _, msgs, _ := up.snapshot(); len(msgs) != 5 {
		t.Fatalf("healthy publisher got %d messages, want 5", len(msgs))
	}

	now = now.Add(time.Minute)
	e.Export(ctx, events.EventCue, events.Payload{"cue": "cue-16"})
	if _, _, calls := down.snapshot(); calls != 3 {
		t.Fatalf("down publisher calls after retry window = %d, want 3", calls)
	}
}

func TestRunForwardsBusEvents(t *testing.T) {
	bus := events.NewBus()
	pub := &fakePublisher{name: "fake"}
	e := NewExporter(bus, Config{Types: []events.EventType{events.EventSessionCreated, events.EventBridgeOutcome}}, zerolog.Nop(), pub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for bus.Subscribers(events.EventSessionCreated) == 0 || bus.Subscribers(events.EventBridgeOutcome) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("exporter never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	bus.Publish(events.EventSessionCreated, events.Payload{"session_id": "s1"})
	bus.Publish(events.EventView, events.Payload{"session_id": "s1"})
	bus.Publish(events.EventBridgeOutcome, events.Payload{"session_id": "s1", "outcome": "ended"})

	for {
		if _, msgs, _ := pub.snapshot(); len(msgs) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("events not forwarded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if bus.Subscribers(events.EventSessionCreated) != 0 {
		t.Fatal("exporter left subscriptions behind")
	}

	for _, s := range func() []string { s, _, _ := pub.snapshot(); return s }() {
		if s == Subject("portal.events", events.EventView) {
			t.Fatal("view events must not be exported when not configured")
		}
	}
}

func TestCloseClosesPublishers(t *testing.T) {
	a := &fakePublisher{name: "a"}
	b := &fakePublisher{name: "b", err: errors.New("boom")}
	e := NewExporter(events.NewBus(), Config{}, zerolog.Nop(), a, b)

	err := e.Close()
	if err == nil || !a.closed || !b.closed {
		t.Fatalf("err=%v a=%v b=%v", err, a.closed, b.closed)
	}
}
