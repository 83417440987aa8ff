package logging

import (
	"path/filepath"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultBufferSize is the number of entries kept by Recent.
const DefaultBufferSize = 500

// LogEntry is one captured log line, as served by the debug endpoint.
type LogEntry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Source  string         `json:"source,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// RingBuffer keeps the most recent log entries in memory. It implements logrus.Hook.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	head    int
	count   int
}

// Recent captures the latest entries of the global logger once SetupBaseLogger ran.
var Recent = NewRingBuffer(DefaultBufferSize)

// NewRingBuffer creates a buffer holding capacity entries. capacity <= 0 selects DefaultBufferSize.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &RingBuffer{entries: make([]LogEntry, capacity)}
}

// Levels implements logrus.Hook.
func (rb *RingBuffer) Levels() []log.Level {
	return log.AllLevels
}

// Fire implements logrus.Hook.
func (rb *RingBuffer) Fire(entry *log.Entry) error {
	e := LogEntry{
		Time:    entry.Time,
		Level:   entry.Level.String(),
		Message: entry.Message,
	}
	if e.Level == "warning" {
		e.Level = "warn"
	}
	if entry.Caller != nil {
		e.Source = filepath.Base(entry.Caller.File) + ":" + strconv.Itoa(entry.Caller.Line)
	}
	if len(entry.Data) > 0 {
		e.Fields = make(map[string]any, len(entry.Data))
		for k, v := range entry.Data {
			e.Fields[k] = v
		}
	}
	rb.Write(e)
	return nil
}

// Write appends e, evicting the oldest entry when full.
func (rb *RingBuffer) Write(e LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.head] = e
	rb.head = (rb.head + 1) % len(rb.entries)
	if rb.count < len(rb.entries) {
		rb.count++
	}
}

// Entries returns up to n of the most recent entries, oldest first. n <= 0 returns all.
// Field maps are shared with the buffer and must not be modified.
func (rb *RingBuffer) Entries(n int) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || n > rb.count {
		n = rb.count
	}
	out := make([]LogEntry, n)
	size := len(rb.entries)
	start := (rb.head - n + size) % size
	for i := 0; i < n; i++ {
		out[i] = rb.entries[(start+i)%size]
	}
	return out
}

// Len returns the number of stored entries.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}
