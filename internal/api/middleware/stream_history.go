// Package middleware provides HTTP middleware components for the streambridge server.
// This file keeps an in-memory history of recently finished translation streams.
package middleware

import (
	"sort"
	"sync"
	"time"
)

const maxHistorySize = 500 // Maximum number of streams kept

// StreamRecord summarises one finished translation stream.
type StreamRecord struct {
	MessageID  string    `json:"message_id"`
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Path       string    `json:"path"`
	Outcome    string    `json:"outcome"`
	Lines      int       `json:"lines"`
	Events     int       `json:"events"`
	Dropped    int       `json:"dropped"`
	Unknown    int       `json:"unknown"`
	Oversized  int       `json:"oversized"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// StreamHistoryStats provides aggregated statistics from history.
type StreamHistoryStats struct {
	TotalStreams   int64            `json:"total_streams"`
	ByOutcome      map[string]int64 `json:"by_outcome"`
	TotalLines     int64            `json:"total_lines"`
	TotalDropped   int64            `json:"total_dropped"`
	TotalOversized int64            `json:"total_oversized"`
	AvgDurationMs  int64            `json:"avg_duration_ms"`
}

// StreamHistoryFilter defines filtering options for history queries.
type StreamHistoryFilter struct {
	Outcome    string     `json:"outcome,omitempty"`
	Since      *time.Time `json:"since,omitempty"`
	ErrorsOnly bool       `json:"errors_only,omitempty"`
	Limit      int        `json:"limit,omitempty"`
	Offset     int        `json:"offset,omitempty"`
}

// StreamHistory is a bounded, concurrency-safe list of finished streams.
type StreamHistory struct {
	mu      sync.RWMutex
	entries []StreamRecord
	max     int
}

var (
	globalHistory     *StreamHistory
	globalHistoryOnce sync.Once
)

// GetStreamHistory returns the process-wide history.
func GetStreamHistory() *StreamHistory {
	globalHistoryOnce.Do(func() {
		globalHistory = NewStreamHistory(maxHistorySize)
	})
	return globalHistory
}

// NewStreamHistory returns a history keeping at most max records.
func NewStreamHistory(max int) *StreamHistory {
	if max <= 0 {
		max = maxHistorySize
	}
	return &StreamHistory{max: max}
}

// AddEntry records a finished stream, dropping the oldest record when full.
func (h *StreamHistory) AddEntry(entry StreamRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, entry)
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
}

// GetEntries returns matching records, newest first.
func (h *StreamHistory) GetEntries(filter *StreamHistoryFilter) []StreamRecord {
	h.mu.RLock()
	result := make([]StreamRecord, 0, len(h.entries))
	for _, entry := range h.entries {
		if filter == nil || filter.matches(entry) {
			result = append(result, entry)
		}
	}
	h.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	if filter == nil {
		return result
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []StreamRecord{}
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result
}

// GetStats returns aggregated statistics from history.
func (h *StreamHistory) GetStats() StreamHistoryStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := StreamHistoryStats{ByOutcome: make(map[string]int64)}
	var totalDuration int64
	for _, entry := range h.entries {
		stats.TotalStreams++
		stats.ByOutcome[entry.Outcome]++
		stats.TotalLines += int64(entry.Lines)
		stats.TotalDropped += int64(entry.Dropped)
		stats.TotalOversized += int64(entry.Oversized)
		totalDuration += entry.DurationMs
	}
	if stats.TotalStreams > 0 {
		stats.AvgDurationMs = totalDuration / stats.TotalStreams
	}
	return stats
}

// Clear removes all entries from history.
func (h *StreamHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}

// Count returns the total number of entries in history.
func (h *StreamHistory) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

func (f *StreamHistoryFilter) matches(entry StreamRecord) bool {
	if f.Outcome != "" && entry.Outcome != f.Outcome {
		return false
	}
	if f.Since != nil && entry.Timestamp.Before(*f.Since) {
		return false
	}
	if f.ErrorsOnly && entry.Error == "" {
		return false
	}
	return true
}
