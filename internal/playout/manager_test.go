/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(DefaultOptions(), 2, zerolog.Nop())
	ctx := context.Background()

	a, err := m.Create(ctx, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	b, err := m.Create(ctx, false)
	if err != nil {
		t.Fatalf("Create wall-clock: %v", err)
	}
	if _, err := m.Create(ctx, true); !errors.Is(err, ErrCapacity) {
		t.Fatalf("third Create = %v, want ErrCapacity", err)
	}

	got, err := m.Get(a.ID())
	if err != nil || got != a {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if _, err := m.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Get missing = %v", err)
	}

	list := m.List()
	if len(list) != 2 {
		t.Fatalf("List = %d entries", len(list))
	}
	ids := map[string]bool{list[0].ID: true, list[1].ID: true}
	if !ids[a.ID()] || !ids[b.ID()] {
		t.Fatalf("List ids = %v", ids)
	}

	if err := m.Stop(b.ID()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := m.Stop(b.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("second Stop = %v", err)
	}
	if err := b.Step(0); err != nil && !errors.Is(err, ErrNotVirtual) {
		t.Fatalf("Step on stopped wall-clock session = %v", err)
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d", m.Len())
	}

	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("Len after shutdown = %d", m.Len())
	}
	if err := a.Step(0); err != nil {
		t.Fatalf("zero Step = %v", err)
	}
	if err := a.Act(ctx, "enter"); !errors.Is(err, ErrDirectorStopped) {
		t.Fatalf("Act after shutdown = %v", err)
	}
}

func TestManagerUnlimited(t *testing.T) {
	m := NewManager(DefaultOptions(), 0, zerolog.Nop())
	defer m.Shutdown()
	for i := 0; i < 5; i++ {
		if _, err := m.Create(context.Background(), true); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}
	if m.Len() != 5 {
		t.Fatalf("Len = %d", m.Len())
	}
}
