/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer provides an in-memory ring buffer for capturing logs.
package logbuffer

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"
)

// LogEntry represents a single log entry.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer is a thread-safe ring buffer for log entries.
type Buffer struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
	head     int
	count    int
}

// New creates a new log buffer with the specified capacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 2000
	}
	return &Buffer{
		entries:  make([]LogEntry, capacity),
		capacity: capacity,
	}
}

// Add adds a log entry to the buffer, evicting the oldest when full.
func (b *Buffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// GetAll returns all log entries in chronological order.
func (b *Buffer) GetAll() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]LogEntry, b.count)
	if b.count == 0 {
		return result
	}

	start := 0
	if b.count == b.capacity {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		result[i] = b.entries[(start+i)%b.capacity]
	}
	return result
}

// Recent returns up to limit entries, newest first. Limit <= 0 returns all.
func (b *Buffer) Recent(limit int, level string) []LogEntry {
	all := b.GetAll()

	var filtered []LogEntry
	for i := len(all) - 1; i >= 0; i-- {
		if level != "" && all[i].Level != level {
			continue
		}
		filtered = append(filtered, all[i])
		if limit > 0 && len(filtered) >= limit {
			break
		}
	}
	return filtered
}

// Search returns entries whose message or component contains the term,
// newest first.
func (b *Buffer) Search(term string, limit int) []LogEntry {
	all := b.GetAll()
	term = strings.ToLower(term)

	var matched []LogEntry
	for i := len(all) - 1; i >= 0; i-- {
		if !strings.Contains(strings.ToLower(all[i].Message), term) &&
			!strings.Contains(strings.ToLower(all[i].Component), term) {
			continue
		}
		matched = append(matched, all[i])
		if limit > 0 && len(matched) >= limit {
			break
		}
	}
	return matched
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Writer wraps the buffer to implement io.Writer for zerolog.
type Writer struct {
	buffer   *Buffer
	fallback io.Writer
}

// NewWriter creates a writer that captures logs to the buffer.
func NewWriter(buffer *Buffer, fallback io.Writer) *Writer {
	return &Writer{buffer: buffer, fallback: fallback}
}

// Write implements io.Writer by parsing zerolog's JSON lines.
func (w *Writer) Write(p []byte) (n int, err error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err == nil {
		entry := LogEntry{
			Timestamp: time.Now(),
			Fields:    make(map[string]any),
		}
		if lvl, ok := raw["level"].(string); ok {
			entry.Level = lvl
			delete(raw, "level")
		}
		if msg, ok := raw["message"].(string); ok {
			entry.Message = msg
			delete(raw, "message")
		}
		if comp, ok := raw["component"].(string); ok {
			entry.Component = comp
			delete(raw, "component")
		}
		delete(raw, "time")
		for k, v := range raw {
			entry.Fields[k] = v
		}
		w.buffer.Add(entry)
	}

	if w.fallback != nil {
		return w.fallback.Write(p)
	}
	return len(p), nil
}
