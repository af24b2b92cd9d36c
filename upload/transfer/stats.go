package transfer

import (
	"sync"
	"time"
)

// Stats tracks aggregate metrics of finished transfers for reporting.
type Stats struct {
	mu            sync.Mutex
	sum           time.Duration
	finished      int64
	uploadedBytes int64
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// Update records one successfully finished transfer.
func (s *Stats) Update(d time.Duration, sizeBytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum += d
	s.finished++
	s.uploadedBytes += sizeBytes
}

// Average returns the average duration of finished transfers.
func (s *Stats) Average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished == 0 {
		return 0
	}
	return s.sum / time.Duration(s.finished)
}

// FinishedCount returns the number of finished transfers.
func (s *Stats) FinishedCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// UploadedBytes returns the total payload bytes of finished transfers.
func (s *Stats) UploadedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploadedBytes
}

// TotalDuration returns the summed duration of finished transfers.
func (s *Stats) TotalDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sum
}
