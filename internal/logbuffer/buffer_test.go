/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logbuffer

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBufferWrapsOldest(t *testing.T) {
	b := New(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		b.Add(LogEntry{Message: msg})
	}

	all := b.GetAll()
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	for i, want := range []string{"b", "c", "d"} {
		if all[i].Message != want {
			t.Fatalf("entry %d = %q, want %q", i, all[i].Message, want)
		}
	}
}

func TestQueryFilters(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b := New(10)
	b.Add(LogEntry{Timestamp: base, Level: "info", Component: "flow", SessionID: "s1", Message: "phase changed"})
	b.Add(LogEntry{Timestamp: base.Add(time.Second), Level: "warn", Component: "audio", SessionID: "s1", Message: "start rejected"})
	b.Add(LogEntry{Timestamp: base.Add(2 * time.Second), Level: "info", Component: "flow", SessionID: "s2", Message: "Gate held", Fields: map[string]any{"checkpoint": "gate-enter"}})
	b.Add(LogEntry{Timestamp: base.Add(3 * time.Second), Level: "info", Component: "bridge", Message: "clip ended"})

	tests := []struct {
		name string
		q    QueryParams
		want []string
	}{
		{"all", QueryParams{}, []string{"phase changed", "start rejected", "Gate held", "clip ended"}},
		{"level", QueryParams{Level: "warn"}, []string{"start rejected"}},
		{"component", QueryParams{Component: "flow"}, []string{"phase changed", "Gate held"}},
		{"session", QueryParams{SessionID: "s1"}, []string{"phase changed", "start rejected"}},
		{"search message", QueryParams{Search: "gate"}, []string{"Gate held"}},
		{"search fields", QueryParams{Search: "ENTER"}, []string{"Gate held"}},
		{"since", QueryParams{Since: base.Add(2 * time.Second)}, []string{"Gate held", "clip ended"}},
		{"descending limit", QueryParams{Descending: true, Limit: 2}, []string{"clip ended", "Gate held"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Query(tt.q)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].Message != tt.want[i] {
					t.Fatalf("entry %d = %q, want %q", i, got[i].Message, tt.want[i])
				}
			}
		})
	}
}

func TestStatsForSession(t *testing.T) {
	b := New(10)
	b.Add(LogEntry{Level: "info", Component: "flow", SessionID: "s1"})
	b.Add(LogEntry{Level: "warn", Component: "audio", SessionID: "s1"})
	b.Add(LogEntry{Level: "info", Component: "bridge", SessionID: "s2"})

	all := b.Stats()
	if all.Count != 3 || all.LevelCount["info"] != 2 || len(all.Components) != 3 {
		t.Fatalf("stats = %+v", all)
	}
	s1 := b.StatsForSession("s1")
	if s1.Count != 2 || s1.LevelCount["warn"] != 1 {
		t.Fatalf("s1 stats = %+v", s1)
	}
	if len(s1.Components) != 2 || s1.Components[0] != "audio" || s1.Components[1] != "flow" {
		t.Fatalf("s1 components = %v", s1.Components)
	}

	b.Clear()
	if got := b.Stats().Count; got != 0 {
		t.Fatalf("count after clear = %d", got)
	}
}

func TestWriterCapturesZerolog(t *testing.T) {
	b := New(10)
	var out bytes.Buffer
	logger := zerolog.New(NewWriter(b, &out)).With().Timestamp().Logger()

	logger.Warn().
		Str("component", "audio").
		Str("session_id", "s-9").
		Str("channel", "cue2").
		Msg("start rejected")

	entries := b.GetAll()
	if len(entries) != 1 {
		t.Fatalf("captured %d entries", len(entries))
	}
	e := entries[0]
	if e.Level != "warn" || e.Component != "audio" || e.SessionID != "s-9" || e.Message != "start rejected" {
		t.Fatalf("entry = %+v", e)
	}
	if e.Fields["channel"] != "cue2" {
		t.Fatalf("fields = %v", e.Fields)
	}
	if out.Len() == 0 {
		t.Fatal("fallback writer received nothing")
	}
}

func TestWriterSkipsNonJSON(t *testing.T) {
	b := New(10)
	w := NewWriter(b, nil)
	n, err := w.Write([]byte("plain text\n"))
	if err != nil || n != len("plain text\n") {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if len(b.GetAll()) != 0 {
		t.Fatal("non-JSON line captured")
	}
}
