package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/l3acucm/urepricer/internal/domain"
)

// Stats accumulates processing counters across all workers. All updates are
// atomic; Snapshot may be called concurrently with recording.
type Stats struct {
	messagesProcessed atomic.Int64
	successful        atomic.Int64
	failed            atomic.Int64
	skipped           atomic.Int64
	pricesUpdated     atomic.Int64
	sentToDLQ         atomic.Int64
	processingNanos   atomic.Int64

	startedAt atomic.Int64 // unix nanos of the last reset
}

// NewStats creates a zeroed Stats set with the uptime clock started.
func NewStats() *Stats {
	s := &Stats{}
	s.startedAt.Store(time.Now().UnixNano())
	return s
}

// RecordEvent accounts one source event and its per-listing results.
func (s *Stats) RecordEvent(results []domain.Result) {
	s.messagesProcessed.Add(1)
	for _, r := range results {
		s.processingNanos.Add(int64(r.Elapsed))
		switch r.Outcome {
		case domain.OutcomeOK:
			s.successful.Add(1)
			if r.Written {
				s.pricesUpdated.Add(1)
			}
		case domain.OutcomeSkip:
			s.skipped.Add(1)
		case domain.OutcomeRetry:
			s.failed.Add(1)
		}
	}
}

// RecordDLQ accounts one message handed off to the dead-letter queue.
func (s *Stats) RecordDLQ() {
	s.sentToDLQ.Add(1)
}

// Reset zeroes every counter and restarts the uptime clock.
func (s *Stats) Reset() {
	s.messagesProcessed.Store(0)
	s.successful.Store(0)
	s.failed.Store(0)
	s.skipped.Store(0)
	s.pricesUpdated.Store(0)
	s.sentToDLQ.Store(0)
	s.processingNanos.Store(0)
	s.startedAt.Store(time.Now().UnixNano())
}

// Snapshot is a point-in-time copy of the counters plus derived rates,
// shaped for the stats endpoint.
type Snapshot struct {
	MessagesProcessed   int64   `json:"messages_processed"`
	SuccessfulReprices  int64   `json:"successful_repricings"`
	FailedReprices      int64   `json:"failed_repricings"`
	SkippedReprices     int64   `json:"skipped_repricings"`
	PricesUpdated       int64   `json:"prices_updated"`
	SentToDLQ           int64   `json:"messages_sent_to_dlq"`
	SuccessRate         float64 `json:"success_rate"`
	AvgProcessingTimeMs float64 `json:"average_processing_time_ms"`
	UptimeSeconds       int64   `json:"uptime_seconds"`
}

// Snapshot derives rates from the current counter values.
func (s *Stats) Snapshot() Snapshot {
	ok := s.successful.Load()
	failed := s.failed.Load()
	skipped := s.skipped.Load()
	total := ok + failed + skipped

	snap := Snapshot{
		MessagesProcessed:  s.messagesProcessed.Load(),
		SuccessfulReprices: ok,
		FailedReprices:     failed,
		SkippedReprices:    skipped,
		PricesUpdated:      s.pricesUpdated.Load(),
		SentToDLQ:          s.sentToDLQ.Load(),
		UptimeSeconds:      int64(time.Since(time.Unix(0, s.startedAt.Load())).Seconds()),
	}
	if total > 0 {
		snap.SuccessRate = float64(ok) / float64(total)
		snap.AvgProcessingTimeMs = float64(s.processingNanos.Load()) / float64(total) / float64(time.Millisecond)
	}
	return snap
}
