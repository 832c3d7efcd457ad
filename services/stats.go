package services

import (
	"sync"
	"time"

	"propsync/models"
)

type Outcome string

const (
	OutcomeNew       Outcome = "new"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeError     Outcome = "error"
)

// ListingResult is the outcome of processing one listing.
type ListingResult struct {
	Ref     int64
	Outcome Outcome
	Changes int
	Images  ImageResult
}

// ProcessStats accumulates batch counters. Safe for concurrent use.
type ProcessStats struct {
	mu    sync.Mutex
	stats models.Statistics
}

func NewProcessStats(start time.Time) *ProcessStats {
	return &ProcessStats{stats: models.Statistics{StartedAt: start}}
}

// Aggregate adds a ListingResult to the stats
func (s *ProcessStats) Aggregate(r *ListingResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Processed++
	switch r.Outcome {
	case OutcomeNew:
		s.stats.New++
	case OutcomeUpdated:
		s.stats.Updated++
	case OutcomeUnchanged:
		s.stats.Unchanged++
	case OutcomeError:
		s.stats.Errors++
	}
	s.stats.ImagesDownloaded += r.Images.Downloaded
	s.stats.ImagesDeleted += r.Images.Deleted
	s.stats.ImageErrors += r.Images.Errors
}

func (s *ProcessStats) AddError() {
	s.mu.Lock()
	s.stats.Processed++
	s.stats.Errors++
	s.mu.Unlock()
}

func (s *ProcessStats) AddMarkedInactive(n int) {
	s.mu.Lock()
	s.stats.MarkedInactive += n
	s.mu.Unlock()
}

func (s *ProcessStats) Finish(end time.Time) {
	s.mu.Lock()
	s.stats.EndedAt = &end
	s.mu.Unlock()
}

func (s *ProcessStats) Snapshot() models.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.stats
	if snap.EndedAt != nil {
		end := *snap.EndedAt
		snap.EndedAt = &end
	}
	return snap
}
