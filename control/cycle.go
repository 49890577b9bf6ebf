package control

import (
	"sync"
	"time"
)

// defaultHistoryCapacity bounds the in-memory cycle history.
const defaultHistoryCapacity = 1000

// CycleStepRecord is one step of a production cycle, kept for the cycle
// summary emitted on completion.
type CycleStepRecord struct {
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	State       string    `json:"state"`
}

// CycleRecord is the outcome of one completed or aborted cycle.
type CycleRecord struct {
	Number    int               `json:"number"`
	Start     time.Time         `json:"start"`
	End       time.Time         `json:"end"`
	Duration  time.Duration     `json:"duration"`
	Success   bool              `json:"success"`
	Detection *DetectionEvent   `json:"detection,omitempty"`
	Steps     []CycleStepRecord `json:"steps,omitempty"`
	Failure   string            `json:"failure,omitempty"`
}

// CycleStats summarizes the recent cycle history.
type CycleStats struct {
	Total           int           `json:"total"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	SuccessRate     float64       `json:"success_rate"`
	AvgDuration     time.Duration `json:"avg_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
	CyclesPerMinute float64       `json:"cycles_per_minute"`
}

// CycleHistory is a bounded ring of recent cycle records.
type CycleHistory struct {
	mu       sync.Mutex
	records  []CycleRecord
	capacity int
}

// NewCycleHistory creates a history keeping the last capacity records.
// A non-positive capacity falls back to the default.
func NewCycleHistory(capacity int) *CycleHistory {
	if capacity <= 0 {
		capacity = defaultHistoryCapacity
	}
	return &CycleHistory{capacity: capacity}
}

// Record appends a cycle, evicting the oldest past capacity.
func (h *CycleHistory) Record(rec CycleRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, rec)
	if len(h.records) > h.capacity {
		h.records = h.records[len(h.records)-h.capacity:]
	}
}

// Recent returns up to n most recent records, newest last.
func (h *CycleHistory) Recent(n int) []CycleRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n <= 0 || n > len(h.records) {
		n = len(h.records)
	}
	out := make([]CycleRecord, n)
	copy(out, h.records[len(h.records)-n:])
	return out
}

// Len returns the number of stored records.
func (h *CycleHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// Stats computes aggregate statistics over the stored records. Durations
// only consider successful cycles.
func (h *CycleHistory) Stats() CycleStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := CycleStats{Total: len(h.records)}
	if stats.Total == 0 {
		return stats
	}

	var totalDuration time.Duration
	var first, last time.Time
	for _, rec := range h.records {
		if !rec.Success {
			stats.Failed++
			continue
		}
		stats.Succeeded++
		totalDuration += rec.Duration
		if stats.MinDuration == 0 || rec.Duration < stats.MinDuration {
			stats.MinDuration = rec.Duration
		}
		if rec.Duration > stats.MaxDuration {
			stats.MaxDuration = rec.Duration
		}
		if first.IsZero() || rec.End.Before(first) {
			first = rec.End
		}
		if rec.End.After(last) {
			last = rec.End
		}
	}

	stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total)
	if stats.Succeeded > 0 {
		stats.AvgDuration = totalDuration / time.Duration(stats.Succeeded)
	}
	if span := last.Sub(first); span > 0 && stats.Succeeded > 1 {
		stats.CyclesPerMinute = float64(stats.Succeeded-1) / span.Minutes()
	}
	return stats
}
