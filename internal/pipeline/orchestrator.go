package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/DataisKing1/title-search-app-sub000/internal/browser"
	"github.com/DataisKing1/title-search-app-sub000/internal/common"
	"github.com/DataisKing1/title-search-app-sub000/internal/interfaces"
	"github.com/DataisKing1/title-search-app-sub000/internal/models"
	"github.com/DataisKing1/title-search-app-sub000/internal/recovery"
	"github.com/DataisKing1/title-search-app-sub000/internal/scrapers"
	"github.com/DataisKing1/title-search-app-sub000/internal/services/report"
)

// orchestratePayload parameterizes one orchestration run. ResumeStage is
// empty for a fresh run and names the restart point on explicit retries.
type orchestratePayload struct {
	ResumeStage string `json:"resume_stage,omitempty"`
}

// childPayload identifies the document a fan-out child task operates on.
type childPayload struct {
	DocumentID string `json:"document_id"`
}

// stageFunc executes one pipeline stage against a search job.
type stageFunc func(ctx context.Context, job *models.SearchJob) error

// stageStatus maps each stage to the coarse user-facing status while it
// runs.
var stageStatus = map[string]models.SearchStatus{
	models.StageScrapeRecords:     models.SearchStatusScraping,
	models.StageCourtSearch:       models.SearchStatusScraping,
	models.StageDownloadDocuments: models.SearchStatusScraping,
	models.StageAnalyzeDocuments:  models.SearchStatusAnalyzing,
	models.StageBuildChain:        models.SearchStatusAnalyzing,
	models.StageGenerateReport:    models.SearchStatusGenerating,
	models.StageFinalize:          models.SearchStatusGenerating,
}

// stageProgress is the progress percentage reached when a stage
// completes. Fan-out stages advance between the previous stage's value
// and their own as children finish.
var stageProgress = map[string]int{
	models.StageScrapeRecords:     15,
	models.StageCourtSearch:       25,
	models.StageDownloadDocuments: 55,
	models.StageAnalyzeDocuments:  75,
	models.StageBuildChain:        82,
	models.StageGenerateReport:    92,
	models.StageFinalize:          100,
}

// Orchestrator executes the fixed stage chain for one search at a time.
// It owns status and progress transitions; stage implementations only do
// domain work and return errors.
type Orchestrator struct {
	storage    interfaces.StorageManager
	queue      interfaces.TaskQueue
	pool       *browser.Pool
	registry   *scrapers.Registry
	analyzer   interfaces.DocumentAnalyzer
	reports    *report.Service
	classifier *recovery.Classifier
	logger     arbor.ILogger

	documentsDir     string
	stageTimeout     time.Duration
	childTimeout     time.Duration
	childConcurrency int

	stages map[string]stageFunc
}

// NewOrchestrator wires the stage chain.
func NewOrchestrator(
	storage interfaces.StorageManager,
	queue interfaces.TaskQueue,
	pool *browser.Pool,
	registry *scrapers.Registry,
	analyzer interfaces.DocumentAnalyzer,
	reports *report.Service,
	classifier *recovery.Classifier,
	cfg *common.Config,
	logger arbor.ILogger,
) *Orchestrator {
	if classifier == nil {
		classifier = recovery.NewClassifier()
	}

	o := &Orchestrator{
		storage:          storage,
		queue:            queue,
		pool:             pool,
		registry:         registry,
		analyzer:         analyzer,
		reports:          reports,
		classifier:       classifier,
		logger:           logger,
		documentsDir:     cfg.Storage.Documents,
		stageTimeout:     cfg.MustDuration(cfg.Pipeline.StageTimeout, 5*time.Minute),
		childTimeout:     cfg.MustDuration(cfg.Pipeline.ChildTimeout, 2*time.Minute),
		childConcurrency: cfg.Pipeline.ChildConcurrency,
	}
	if o.childConcurrency <= 0 {
		o.childConcurrency = 4
	}

	o.stages = map[string]stageFunc{
		models.StageScrapeRecords:     o.stageScrapeRecords,
		models.StageCourtSearch:       o.stageCourtSearch,
		models.StageDownloadDocuments: o.stageDownloadDocuments,
		models.StageAnalyzeDocuments:  o.stageAnalyzeDocuments,
		models.StageBuildChain:        o.stageBuildChain,
		models.StageGenerateReport:    o.stageGenerateReport,
		models.StageFinalize:          o.stageFinalize,
	}
	return o
}

// HandleOrchestrate is the queue handler for the top-level search task.
// It walks the stage chain from the resume point, owning every status and
// progress transition along the way.
func (o *Orchestrator) HandleOrchestrate(ctx context.Context, task *models.TaskMessage) ([]byte, error) {
	var payload orchestratePayload
	if len(task.Payload) > 0 {
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode orchestrate payload: %w", err)
		}
	}

	job, err := o.storage.SearchStorage().GetSearch(ctx, task.SearchID)
	if err != nil {
		return nil, err
	}

	startIdx := 0
	if payload.ResumeStage != "" {
		if idx := models.StageOrdinal(payload.ResumeStage); idx >= 0 {
			startIdx = idx
		}
	}

	o.logger.Info().
		Str("search_id", job.ID).
		Str("reference", job.ReferenceNumber).
		Str("start_stage", models.StepOrder[startIdx]).
		Msg("Starting search pipeline")

	if job.StartedAt == nil {
		now := time.Now().UTC()
		job.StartedAt = &now
		if err := o.storage.SearchStorage().SaveSearch(ctx, job); err != nil {
			return nil, err
		}
	}

	for _, stage := range models.StepOrder[startIdx:] {
		// Cancellation is observed at stage boundaries; a cancelled job is
		// left exactly as the cancel request put it.
		current, err := o.storage.SearchStorage().GetSearch(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == models.SearchStatusCancelled {
			o.logger.Info().
				Str("search_id", job.ID).
				Str("stage", stage).
				Msg("Search cancelled, stopping pipeline")
			return nil, nil
		}
		job = current

		if err := o.enterStage(ctx, job, stage); err != nil {
			return nil, err
		}

		// Each stage runs under its own deadline so a hung scrape or
		// download cannot pin the worker forever.
		stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
		stageErr := o.stages[stage](stageCtx, job)
		cancel()
		if stageErr != nil {
			return nil, o.failStage(ctx, job, stage, stageErr)
		}

		job.AdvanceProgress(stageProgress[stage])
		if stage != models.StageFinalize {
			job.StatusMessage = fmt.Sprintf("Completed %s", stage)
		}
		if err := o.storage.SearchStorage().SaveSearch(ctx, job); err != nil {
			return nil, err
		}
	}

	result, _ := json.Marshal(map[string]string{"status": string(job.Status)})
	return result, nil
}

func (o *Orchestrator) enterStage(ctx context.Context, job *models.SearchJob, stage string) error {
	job.Status = stageStatus[stage]
	job.StatusMessage = fmt.Sprintf("Running %s", stage)
	if err := o.storage.SearchStorage().SaveSearch(ctx, job); err != nil {
		return err
	}

	o.logger.Info().
		Str("search_id", job.ID).
		Str("stage", stage).
		Int("progress", job.ProgressPercent).
		Msg("Entering pipeline stage")
	return nil
}

// failStage records the diagnostic, marks the job failed, and surfaces
// the error so queue-level retry policy still applies to the whole run.
func (o *Orchestrator) failStage(ctx context.Context, job *models.SearchJob, stage string, stageErr error) error {
	entry := o.classifier.NewDiagnosticEntry(stageErr.Error(), stage)
	job.AppendDiagnostic(entry)
	job.Status = models.SearchStatusFailed
	job.StatusMessage = fmt.Sprintf("Failed at %s: %s", stage, stageErr)
	now := time.Now().UTC()
	job.CompletedAt = &now

	if err := o.storage.SearchStorage().SaveSearch(ctx, job); err != nil {
		o.logger.Error().Err(err).Str("search_id", job.ID).Msg("Failed to persist failure state")
	}

	o.logger.Error().
		Err(stageErr).
		Str("search_id", job.ID).
		Str("stage", stage).
		Str("category", string(entry.Category)).
		Str("severity", string(entry.Severity)).
		Msg("Pipeline stage failed")

	return fmt.Errorf("stage %s: %w", stage, stageErr)
}

// childOutcome tallies one fan-out join.
type childOutcome struct {
	Succeeded int
	Failed    int
}

// joinChild waits for one submitted child task and reports whether it
// succeeded. A missing or timed-out result counts as a failure.
func (o *Orchestrator) joinChild(ctx context.Context, taskID string) bool {
	result, err := o.queue.GetResult(ctx, taskID, o.childTimeout)
	if err != nil {
		o.logger.Warn().
			Err(err).
			Str("task_id", taskID).
			Msg("Child task did not report a result")
		return false
	}
	if !result.Success {
		o.logger.Warn().
			Str("task_id", taskID).
			Str("error", result.Error).
			Msg("Child task failed")
		return false
	}
	return true
}

// fanOut submits one child task per document and joins on the batch,
// advancing job progress from the previous stage's mark toward target as
// children complete. At most childConcurrency joins wait at once.
func (o *Orchestrator) fanOut(ctx context.Context, job *models.SearchJob, taskType string, docs []*models.Document, target int) (childOutcome, error) {
	taskIDs := make([]string, 0, len(docs))
	for _, doc := range docs {
		payload, err := json.Marshal(childPayload{DocumentID: doc.ID})
		if err != nil {
			return childOutcome{}, err
		}
		taskID, err := o.queue.Submit(ctx, taskType, job.ID, payload, 0)
		if err != nil {
			return childOutcome{}, fmt.Errorf("submit %s task: %w", taskType, err)
		}
		taskIDs = append(taskIDs, taskID)
	}

	sem := make(chan struct{}, o.childConcurrency)
	joined := make(chan bool, len(taskIDs))
	for _, taskID := range taskIDs {
		taskID := taskID
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			joined <- o.joinChild(ctx, taskID)
		}()
	}

	base := job.ProgressPercent
	var outcome childOutcome
	for i := 0; i < len(taskIDs); i++ {
		if <-joined {
			outcome.Succeeded++
		} else {
			outcome.Failed++
		}

		job.AdvanceProgress(base + (target-base)*(i+1)/len(taskIDs))
		if err := o.storage.SearchStorage().SaveSearch(ctx, job); err != nil {
			return outcome, err
		}
	}
	return outcome, nil
}
