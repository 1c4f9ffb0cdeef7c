package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/DataisKing1/title-search-app-sub000/internal/common"
	"github.com/DataisKing1/title-search-app-sub000/internal/interfaces"
	"github.com/DataisKing1/title-search-app-sub000/internal/models"
	"github.com/DataisKing1/title-search-app-sub000/internal/recovery"
)

// Service is the intake and lifecycle surface for title searches:
// creation, retry, cancellation, and recovery options for failed runs.
type Service struct {
	storage      interfaces.StorageManager
	queue        interfaces.TaskQueue
	recovery     *recovery.Manager
	validate     *validator.Validate
	logger       arbor.ILogger
	newReference func() string
}

// NewService creates the search lifecycle service.
func NewService(storage interfaces.StorageManager, queue interfaces.TaskQueue, recoveryMgr *recovery.Manager, logger arbor.ILogger) *Service {
	if recoveryMgr == nil {
		recoveryMgr = recovery.NewManager(nil)
	}
	return &Service{
		storage:      storage,
		queue:        queue,
		recovery:     recoveryMgr,
		validate:     validator.New(),
		logger:       logger,
		newReference: common.NewReferenceNumber,
	}
}

// CreateSearch validates the request, persists the job, and enqueues the
// orchestration task.
func (s *Service) CreateSearch(ctx context.Context, req *models.SearchRequest) (*models.SearchJob, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	if req.SearchType == "" {
		req.SearchType = "full"
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	if req.SearchYears <= 0 {
		req.SearchYears = defaultSearchYears
	}

	job := &models.SearchJob{
		ID:              common.NewSearchID(),
		PropertyAddress: req.PropertyAddress,
		County:          req.County,
		ParcelNumber:    req.ParcelNumber,
		OwnerName:       req.OwnerName,
		SearchType:      req.SearchType,
		SearchYears:     req.SearchYears,
		Priority:        req.Priority,
		Status:          models.SearchStatusPending,
		StatusMessage:   "Search created",
		CreatedAt:       time.Now().UTC(),
	}

	// The reference sequence restarts with the process, so the first saves
	// after a restart can collide with persisted searches. Each allocation
	// advances the sequence, so the loop clears the persisted range.
	for {
		job.ReferenceNumber = s.newReference()
		err := s.storage.SearchStorage().SaveSearch(ctx, job)
		if err == nil {
			break
		}
		if errors.Is(err, models.ErrDuplicateReference) {
			continue
		}
		return nil, err
	}

	if err := s.enqueueOrchestration(ctx, job, ""); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("search_id", job.ID).
		Str("reference", job.ReferenceNumber).
		Str("county", job.County).
		Str("priority", string(job.Priority)).
		Msg("Search created and queued")
	return job, nil
}

func (s *Service) enqueueOrchestration(ctx context.Context, job *models.SearchJob, resumeStage string) error {
	payload, err := json.Marshal(orchestratePayload{ResumeStage: resumeStage})
	if err != nil {
		return err
	}

	taskID, err := s.queue.Submit(ctx, models.TaskOrchestrate, job.ID, payload, 0)
	if err != nil {
		return fmt.Errorf("enqueue search: %w", err)
	}

	job.Status = models.SearchStatusQueued
	job.StatusMessage = "Queued for processing"
	job.TaskHandle = taskID
	job.CompletedAt = nil
	return s.storage.SearchStorage().SaveSearch(ctx, job)
}

// GetSearch returns one search by ID.
func (s *Service) GetSearch(ctx context.Context, id string) (*models.SearchJob, error) {
	return s.storage.SearchStorage().GetSearch(ctx, id)
}

// GetSearchByReference returns one search by its reference number.
func (s *Service) GetSearchByReference(ctx context.Context, reference string) (*models.SearchJob, error) {
	return s.storage.SearchStorage().GetSearchByReference(ctx, reference)
}

// RetrySearch resumes a failed search from the first stage after its last
// success. The recovery manager gatekeeps; searches it rejects need one
// of the manual actions instead.
func (s *Service) RetrySearch(ctx context.Context, id string) (*models.SearchJob, error) {
	job, err := s.storage.SearchStorage().GetSearch(ctx, id)
	if err != nil {
		return nil, err
	}

	ok, reason := s.recovery.CanResume(job.Status, job.ErrorLog, job.RetryCount)
	if !ok {
		return nil, fmt.Errorf("cannot retry search %s: %s", id, reason)
	}

	resumeStage := s.recovery.ResumeStage(job.ErrorLog)
	job.RetryCount++
	job.StatusMessage = fmt.Sprintf("Retrying from %s (attempt %d)", resumeStage, job.RetryCount)

	if err := s.enqueueOrchestration(ctx, job, resumeStage); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("search_id", job.ID).
		Str("resume_stage", resumeStage).
		Int("retry_count", job.RetryCount).
		Msg("Search retry queued")
	return job, nil
}

// CancelSearch stops a search that has not reached a terminal state. The
// queued task is revoked; a stage already running notices the cancelled
// status at its next boundary.
func (s *Service) CancelSearch(ctx context.Context, id string) (*models.SearchJob, error) {
	job, err := s.storage.SearchStorage().GetSearch(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("search %s is already %s", id, job.Status)
	}

	if job.TaskHandle != "" {
		if err := s.queue.Revoke(ctx, job.TaskHandle); err != nil {
			s.logger.Warn().
				Err(err).
				Str("search_id", job.ID).
				Str("task_id", job.TaskHandle).
				Msg("Failed to revoke queued task")
		}
	}

	now := time.Now().UTC()
	job.Status = models.SearchStatusCancelled
	job.StatusMessage = "Cancelled by user"
	job.CompletedAt = &now
	if err := s.storage.SearchStorage().SaveSearch(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("search_id", job.ID).
		Msg("Search cancelled")
	return job, nil
}

// RecoveryOptions returns the user-facing recovery menu for a search.
func (s *Service) RecoveryOptions(ctx context.Context, id string) (*recovery.Options, error) {
	job, err := s.storage.SearchStorage().GetSearch(ctx, id)
	if err != nil {
		return nil, err
	}
	opts := s.recovery.RecoveryOptions(job.Status, job.ErrorLog, job.RetryCount, job.ProgressPercent)
	return &opts, nil
}

// AcceptPartialResults closes a failed search as completed with whatever
// it gathered, available once progress crossed the partial threshold.
func (s *Service) AcceptPartialResults(ctx context.Context, id string) (*models.SearchJob, error) {
	job, err := s.storage.SearchStorage().GetSearch(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.SearchStatusFailed {
		return nil, fmt.Errorf("search %s is not failed", id)
	}
	if job.ProgressPercent < 30 {
		return nil, fmt.Errorf("search %s has insufficient progress (%d%%) for partial results", id, job.ProgressPercent)
	}

	now := time.Now().UTC()
	job.Status = models.SearchStatusCompleted
	job.StatusMessage = fmt.Sprintf("Completed with partial results (%d%%)", job.ProgressPercent)
	job.CompletedAt = &now
	if err := s.storage.SearchStorage().SaveSearch(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("search_id", job.ID).
		Int("progress", job.ProgressPercent).
		Msg("Search completed with partial results")
	return job, nil
}

// AddManualDocument registers a user-supplied file for a search, the
// fallback when scraping a site keeps failing.
func (s *Service) AddManualDocument(ctx context.Context, searchID, filePath string, docType models.DocumentType) (*models.Document, error) {
	if _, err := s.storage.SearchStorage().GetSearch(ctx, searchID); err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("manual document file: %w", err)
	}
	if docType == "" {
		docType = models.DocTypeUnclassified
	}

	doc := &models.Document{
		ID:           common.NewDocumentID(),
		SearchID:     searchID,
		DocumentType: docType,
		Source:       models.SourceManualUpload,
		FilePath:     filePath,
		FileSize:     info.Size(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.storage.DocumentStorage().SaveDocument(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("search_id", searchID).
		Str("document_id", doc.ID).
		Str("path", filePath).
		Msg("Manual document added")
	return doc, nil
}
