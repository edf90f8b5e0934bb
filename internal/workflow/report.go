package workflow

import (
	"sync"
	"time"

	"curator/internal/organizer"
)

// CycleReport summarizes one scan cycle.
type CycleReport struct {
	CycleID            string        `json:"cycleId"`
	StartedAt          time.Time     `json:"startedAt"`
	Duration           time.Duration `json:"duration"`
	Listed             int           `json:"listed"`
	Added              int           `json:"added"`
	Updated            int           `json:"updated"`
	Archived           int           `json:"archived"`
	Resurfaced         int           `json:"resurfaced"`
	ArchivalSuppressed bool          `json:"archivalSuppressed,omitempty"`
	Attempted          int           `json:"attempted"`
	Mapped             int           `json:"mapped"`
	Reused             int           `json:"reused"`
	Failed             int           `json:"failed"`
	Manual             int           `json:"manual"`
	Collisions         int           `json:"collisions"`
	Skipped            int           `json:"skipped,omitempty"`
	LinksCreated       int           `json:"linksCreated"`
	LinksReplaced      int           `json:"linksReplaced"`
	LinksRemoved       int           `json:"linksRemoved"`
	LinksDangling      int           `json:"linksDangling"`
	LinkConflicts      int           `json:"linkConflicts"`
	LinksSkipped       bool          `json:"linksSkipped,omitempty"`
	Refreshed          bool          `json:"refreshed,omitempty"`
	Error              string        `json:"error,omitempty"`
}

func (r *CycleReport) applyLinks(links organizer.Report) {
	r.LinksCreated = links.Created
	r.LinksReplaced = links.Replaced
	r.LinksRemoved = links.Removed
	r.LinksDangling = len(links.Dangling)
	r.LinkConflicts = len(links.Conflicts)
	r.LinksSkipped = links.Skipped
}

type outcome int

const (
	outcomeMapped outcome = iota
	outcomeReused
	outcomeRetryable
	outcomeManual
	outcomeCollision
	outcomeDeferred
	outcomeSkipped
)

// tally collects per-entry outcomes from concurrent workers.
type tally struct {
	mu     sync.Mutex
	counts map[outcome]int
}

func newTally() *tally {
	return &tally{counts: make(map[outcome]int)}
}

func (t *tally) add(o outcome) {
	t.mu.Lock()
	t.counts[o]++
	t.mu.Unlock()
}

func (t *tally) applyTo(r *CycleReport) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r.Mapped = t.counts[outcomeMapped] + t.counts[outcomeReused]
	r.Reused = t.counts[outcomeReused]
	r.Manual = t.counts[outcomeManual]
	r.Collisions = t.counts[outcomeCollision]
	r.Skipped = t.counts[outcomeSkipped]
	r.Failed = t.counts[outcomeRetryable] + t.counts[outcomeManual] + t.counts[outcomeCollision] + t.counts[outcomeDeferred]
}
