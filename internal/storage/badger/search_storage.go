package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/DataisKing1/title-search-app-sub000/internal/interfaces"
	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

// SearchStorage implements the SearchStorage interface for Badger
type SearchStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSearchStorage creates a new SearchStorage instance
func NewSearchStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SearchStorage {
	return &SearchStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SearchStorage) SaveSearch(ctx context.Context, job *models.SearchJob) error {
	if job.ID == "" {
		return fmt.Errorf("search ID is required")
	}

	// Reference numbers are unique across searches. Upsert keys on ID, so
	// the index has to be checked here before the write.
	if job.ReferenceNumber != "" {
		var existing []models.SearchJob
		if err := s.db.Store().Find(&existing, badgerhold.Where("ReferenceNumber").Eq(job.ReferenceNumber).Index("ReferenceNumber")); err != nil {
			return fmt.Errorf("failed to check reference number: %w", err)
		}
		for i := range existing {
			if existing[i].ID != job.ID {
				return fmt.Errorf("reference %s: %w", job.ReferenceNumber, models.ErrDuplicateReference)
			}
		}
	}

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save search: %w", err)
	}
	return nil
}

func (s *SearchStorage) GetSearch(ctx context.Context, id string) (*models.SearchJob, error) {
	var job models.SearchJob
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("search not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get search: %w", err)
	}
	return &job, nil
}

func (s *SearchStorage) GetSearchByReference(ctx context.Context, reference string) (*models.SearchJob, error) {
	var jobs []models.SearchJob
	if err := s.db.Store().Find(&jobs, badgerhold.Where("ReferenceNumber").Eq(reference).Index("ReferenceNumber")); err != nil {
		return nil, fmt.Errorf("failed to get search by reference: %w", err)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("search not found: %s", reference)
	}
	return &jobs[0], nil
}

func (s *SearchStorage) ListSearchesByStatus(ctx context.Context, status models.SearchStatus) ([]*models.SearchJob, error) {
	var jobs []models.SearchJob
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(status).Index("Status").SortBy("CreatedAt").Reverse()); err != nil {
		return nil, fmt.Errorf("failed to list searches by status: %w", err)
	}

	result := make([]*models.SearchJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// ListStaleSearches returns in-flight searches started before the cutoff.
// Used by the scheduled cleanup to fail abandoned runs.
func (s *SearchStorage) ListStaleSearches(ctx context.Context, startedBefore time.Time) ([]*models.SearchJob, error) {
	var jobs []models.SearchJob
	if err := s.db.Store().Find(&jobs, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}

	var stale []*models.SearchJob
	for i := range jobs {
		job := &jobs[i]
		if !job.Status.IsInFlight() {
			continue
		}
		started := job.CreatedAt
		if job.StartedAt != nil {
			started = *job.StartedAt
		}
		if started.Before(startedBefore) {
			stale = append(stale, job)
		}
	}
	return stale, nil
}

func (s *SearchStorage) DeleteSearch(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.SearchJob{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete search: %w", err)
	}
	return nil
}
