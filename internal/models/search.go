package models

import (
	"errors"
	"time"
)

// ErrDuplicateReference is returned when saving a search whose reference
// number already belongs to a different search.
var ErrDuplicateReference = errors.New("reference number already in use")

// SearchStatus represents the lifecycle state of a title search.
// Transitions: pending -> queued -> scraping -> analyzing -> generating -> completed.
// failed and cancelled are reachable from any in-flight state.
type SearchStatus string

const (
	SearchStatusPending    SearchStatus = "pending"
	SearchStatusQueued     SearchStatus = "queued"
	SearchStatusScraping   SearchStatus = "scraping"
	SearchStatusAnalyzing  SearchStatus = "analyzing"
	SearchStatusGenerating SearchStatus = "generating"
	SearchStatusCompleted  SearchStatus = "completed"
	SearchStatusFailed     SearchStatus = "failed"
	SearchStatusCancelled  SearchStatus = "cancelled"
)

// IsTerminal reports whether no further stage may mutate the job.
func (s SearchStatus) IsTerminal() bool {
	return s == SearchStatusCompleted || s == SearchStatusFailed || s == SearchStatusCancelled
}

// IsInFlight reports whether the job is currently being processed.
func (s SearchStatus) IsInFlight() bool {
	return s == SearchStatusQueued || s == SearchStatusScraping ||
		s == SearchStatusAnalyzing || s == SearchStatusGenerating
}

// SearchPriority controls queue ordering preferences for a search.
type SearchPriority string

const (
	PriorityLow    SearchPriority = "low"
	PriorityNormal SearchPriority = "normal"
	PriorityHigh   SearchPriority = "high"
	PriorityUrgent SearchPriority = "urgent"
)

// SearchJob is the persisted record of one title search run. It is mutated
// only by the stage that currently owns it and read concurrently by the API
// layer, so every mutation must go through storage as one atomic save.
type SearchJob struct {
	ID              string `badgerhold:"key"`
	ReferenceNumber string `badgerhold:"index"` // e.g. TS-2026-00042

	// Property under examination
	PropertyAddress string
	County          string
	ParcelNumber    string
	OwnerName       string

	// Request details
	SearchType  string // full, limited, update
	SearchYears int    // how far back to search
	Priority    SearchPriority

	// Status tracking
	Status          SearchStatus `badgerhold:"index"`
	StatusMessage   string
	ProgressPercent int

	// Processing metadata
	TaskHandle string // handle of the orchestrate task in the queue
	RetryCount int    // explicit resumptions, not task-level redeliveries
	ErrorLog   []DiagnosticEntry

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// AdvanceProgress raises progress to pct. Progress is monotonic within a
// run; a lower value is ignored.
func (j *SearchJob) AdvanceProgress(pct int) {
	if pct > 100 {
		pct = 100
	}
	if pct > j.ProgressPercent {
		j.ProgressPercent = pct
	}
}

// AppendDiagnostic appends an entry to the ordered, append-only error log.
func (j *SearchJob) AppendDiagnostic(entry DiagnosticEntry) {
	j.ErrorLog = append(j.ErrorLog, entry)
}

// SearchRequest is the validated intake payload for a new title search.
type SearchRequest struct {
	PropertyAddress string         `json:"property_address" validate:"required,min=5"`
	County          string         `json:"county" validate:"required,min=2"`
	ParcelNumber    string         `json:"parcel_number" validate:"omitempty,min=3"`
	OwnerName       string         `json:"owner_name" validate:"omitempty,min=2"`
	SearchType      string         `json:"search_type" validate:"omitempty,oneof=full limited update"`
	SearchYears     int            `json:"search_years" validate:"omitempty,gte=1,lte=100"`
	Priority        SearchPriority `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
}
