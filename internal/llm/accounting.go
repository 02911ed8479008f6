package llm

import (
	"sync"
	"time"
)

// CallRecord is the accounting entry for one provider attempt, success or
// failure. Records are observability data only; nothing reads them back for
// control flow.
type CallRecord struct {
	Provider   string      `json:"provider"`
	Model      string      `json:"model"`
	Success    bool        `json:"success"`
	LatencyMS  int64       `json:"latency_ms"`
	Tokens     TokenUsage  `json:"token_counts"`
	IsFallback bool        `json:"is_fallback"`
	ErrorKind  FailureKind `json:"error_kind,omitempty"`
	At         time.Time   `json:"at"`
}

// TokenUsage holds token counts for one call, when the backend reports them.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// ProviderStats is the aggregated view of one provider's call history.
type ProviderStats struct {
	Provider       string `json:"provider"`
	Calls          int    `json:"calls"`
	Successes      int    `json:"successes"`
	Failures       int    `json:"failures"`
	Fallbacks      int    `json:"fallbacks"`
	TotalLatencyMS int64  `json:"-"`
	AvgLatencyMS   int64  `json:"avg_latency_ms"`
	Enabled        bool   `json:"enabled"`
}

// CallLog is the append-only accounting log shared by the query engine and the
// drift scheduler. Appends are atomic under a mutex so both paths can record
// concurrently.
type CallLog struct {
	mu      sync.Mutex
	records []CallRecord
}

func NewCallLog() *CallLog {
	return &CallLog{}
}

// Append records one attempt.
func (l *CallLog) Append(rec CallRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	l.records = append(l.records, rec)
}

// Records returns a copy of the log, oldest first.
func (l *CallLog) Records() []CallRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]CallRecord, len(l.records))
	copy(out, l.records)
	return out
}

// StatsByProvider aggregates the log per provider.
func (l *CallLog) StatsByProvider() map[string]*ProviderStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := make(map[string]*ProviderStats)
	for _, rec := range l.records {
		s, ok := stats[rec.Provider]
		if !ok {
			s = &ProviderStats{Provider: rec.Provider}
			stats[rec.Provider] = s
		}
		s.Calls++
		if rec.Success {
			s.Successes++
		} else {
			s.Failures++
		}
		if rec.IsFallback {
			s.Fallbacks++
		}
		s.TotalLatencyMS += rec.LatencyMS
	}
	for _, s := range stats {
		if s.Calls > 0 {
			s.AvgLatencyMS = s.TotalLatencyMS / int64(s.Calls)
		}
	}
	return stats
}
