/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps recent structured log lines in memory so the
// operator API can serve them per session.
package logbuffer

import (
	"encoding/json"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// SessionField is the log field that ties an entry to a portal session.
const SessionField = "session_id"

// LogEntry is one captured log line.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer is a fixed-size ring of log entries, safe for concurrent use.
type Buffer struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
	head     int
	count    int
}

// New creates a buffer holding up to capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 5000
	}
	return &Buffer{
		entries:  make([]LogEntry, capacity),
		capacity: capacity,
	}
}

// Add appends an entry, overwriting the oldest when full.
func (b *Buffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// each calls fn for every entry, oldest first. Caller holds the read lock.
func (b *Buffer) each(fn func(LogEntry)) {
	start := 0
	if b.count == b.capacity {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		fn(b.entries[(start+i)%b.capacity])
	}
}

// GetAll returns every entry, oldest first.
func (b *Buffer) GetAll() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]LogEntry, 0, b.count)
	b.each(func(e LogEntry) { out = append(out, e) })
	return out
}

// QueryParams filter Query results. Zero values match everything.
type QueryParams struct {
	Level      string
	Component  string
	SessionID  string
	Search     string // case-insensitive match on message, component or string fields
	Since      time.Time
	Limit      int
	Descending bool
}

func (q QueryParams) match(e LogEntry) bool {
	switch {
	case q.Level != "" && e.Level != q.Level:
		return false
	case q.Component != "" && e.Component != q.Component:
		return false
	case q.SessionID != "" && e.SessionID != q.SessionID:
		return false
	case !q.Since.IsZero() && e.Timestamp.Before(q.Since):
		return false
	}
	if q.Search == "" {
		return true
	}
	needle := strings.ToLower(q.Search)
	if strings.Contains(strings.ToLower(e.Message), needle) || strings.Contains(strings.ToLower(e.Component), needle) {
		return true
	}
	for _, v := range e.Fields {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

// Query returns matching entries, oldest first unless Descending.
func (b *Buffer) Query(q QueryParams) []LogEntry {
	b.mu.RLock()
	var out []LogEntry
	b.each(func(e LogEntry) {
		if q.match(e) {
			out = append(out, e)
		}
	})
	b.mu.RUnlock()

	if q.Descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Stats summarizes buffer contents.
type Stats struct {
	Capacity   int            `json:"capacity"`
	Count      int            `json:"count"`
	LevelCount map[string]int `json:"level_count"`
	Components []string       `json:"components"`
}

// Stats returns statistics for the whole buffer.
func (b *Buffer) Stats() Stats {
	return b.StatsForSession("")
}

// StatsForSession returns statistics restricted to one session. An empty id
// covers all entries.
func (b *Buffer) StatsForSession(sessionID string) Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := Stats{Capacity: b.capacity, LevelCount: make(map[string]int)}
	components := make(map[string]bool)
	b.each(func(e LogEntry) {
		if sessionID != "" && e.SessionID != sessionID {
			return
		}
		stats.Count++
		stats.LevelCount[e.Level]++
		if e.Component != "" {
			components[e.Component] = true
		}
	})

	stats.Components = make([]string, 0, len(components))
	for c := range components {
		stats.Components = append(stats.Components, c)
	}
	sort.Strings(stats.Components)
	return stats
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.count = 0
}

// Writer is an io.Writer for zerolog JSON output that captures each line into
// a Buffer and forwards it to an optional fallback writer.
type Writer struct {
	buffer   *Buffer
	fallback io.Writer
	now      func() time.Time
}

// NewWriter creates a capturing writer.
func NewWriter(buffer *Buffer, fallback io.Writer) *Writer {
	return &Writer{buffer: buffer, fallback: fallback, now: time.Now}
}

// Write implements io.Writer. Lines that are not JSON objects are forwarded
// but not captured.
func (w *Writer) Write(p []byte) (int, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err == nil {
		w.buffer.Add(w.entry(raw))
	}
	if w.fallback != nil {
		return w.fallback.Write(p)
	}
	return len(p), nil
}

func (w *Writer) entry(raw map[string]any) LogEntry {
	e := LogEntry{Timestamp: w.now().UTC()}
	take := func(key string) string {
		s, _ := raw[key].(string)
		delete(raw, key)
		return s
	}
	e.Level = take("level")
	e.Message = take("message")
	e.Component = take("component")
	e.SessionID = take(SessionField)

	switch ts := raw["time"].(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Timestamp = t
		}
	case float64:
		e.Timestamp = time.Unix(int64(ts), 0).UTC()
	}
	delete(raw, "time")

	if len(raw) > 0 {
		e.Fields = raw
	}
	return e
}
