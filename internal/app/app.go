package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/DataisKing1/title-search-app-sub000/internal/browser"
	"github.com/DataisKing1/title-search-app-sub000/internal/common"
	"github.com/DataisKing1/title-search-app-sub000/internal/interfaces"
	"github.com/DataisKing1/title-search-app-sub000/internal/models"
	"github.com/DataisKing1/title-search-app-sub000/internal/pipeline"
	"github.com/DataisKing1/title-search-app-sub000/internal/queue"
	"github.com/DataisKing1/title-search-app-sub000/internal/recovery"
	"github.com/DataisKing1/title-search-app-sub000/internal/scrapers"
	"github.com/DataisKing1/title-search-app-sub000/internal/services/analysis"
	"github.com/DataisKing1/title-search-app-sub000/internal/services/report"
	storage "github.com/DataisKing1/title-search-app-sub000/internal/storage/badger"
)

// App holds all application components and dependencies.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	QueueManager   *queue.Manager
	Processor      *queue.Processor

	BrowserPool     *browser.Pool
	ScraperRegistry *scrapers.Registry

	RecoveryManager *recovery.Manager
	AnalysisService *analysis.Service
	ReportService   *report.Service

	Orchestrator  *pipeline.Orchestrator
	SearchService *pipeline.Service

	cleanup *cron.Cron
}

// New initializes the application with all dependencies. Nothing runs
// yet; Start launches the pool, the workers, and the cleanup sweep.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	if err := app.initCleanup(); err != nil {
		return nil, fmt.Errorf("failed to initialize cleanup sweep: %w", err)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Int("queue_concurrency", cfg.Queue.Concurrency).
		Int("browser_pool_size", cfg.Browser.PoolSize).
		Msg("Application initialization complete")
	return app, nil
}

func (a *App) initStorage() error {
	manager, err := storage.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.StorageManager = manager

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initServices builds everything in dependency order: classifier and
// recovery manager, the queue over the shared badger database, browser
// pool, scraping registry, the analysis and report services, and finally
// the orchestrator plus the task processor it registers with.
func (a *App) initServices() error {
	classifier := recovery.NewClassifier()
	a.RecoveryManager = recovery.NewManager(classifier)
	a.RecoveryManager.SetResumeLimit(a.Config.Pipeline.MaxRetryCount)

	// The queue shares the storage manager's badger database; its keys
	// live under their own prefix.
	badgerMgr, ok := a.StorageManager.(*storage.Manager)
	if !ok {
		return fmt.Errorf("storage manager is not badger-backed (got %T)", a.StorageManager)
	}
	queueMgr, err := queue.NewManager(badgerMgr.DB().Store().Badger(), a.Config.Queue)
	if err != nil {
		return fmt.Errorf("failed to initialize queue manager: %w", err)
	}
	a.QueueManager = queueMgr
	a.Logger.Debug().Str("queue_name", a.Config.Queue.QueueName).Msg("Queue manager initialized")

	a.BrowserPool = browser.NewPool(a.Config.Browser, browser.NewChromedpSession, a.Logger)

	a.ScraperRegistry = scrapers.NewRegistry(a.Config.Scraper, a.Logger)
	scrapers.RegisterBuiltins(a.ScraperRegistry)
	a.Logger.Debug().
		Strs("counties", a.ScraperRegistry.Counties()).
		Msg("Scraper registry initialized")

	analysisService, err := analysis.NewService(a.Config.Anthropic, a.Logger)
	if err != nil {
		a.AnalysisService = nil
		a.Logger.Warn().Err(err).Msg("Document analysis unavailable, searches will skip the analysis stage")
	} else {
		a.AnalysisService = analysisService
		a.Logger.Debug().Str("model", a.Config.Anthropic.Model).Msg("Analysis service initialized")
	}

	a.ReportService = report.NewService(a.Config.Reports, a.Logger)

	var analyzer interfaces.DocumentAnalyzer
	if a.AnalysisService != nil {
		analyzer = a.AnalysisService
	}
	a.Orchestrator = pipeline.NewOrchestrator(
		a.StorageManager,
		queueMgr,
		a.BrowserPool,
		a.ScraperRegistry,
		analyzer,
		a.ReportService,
		classifier,
		a.Config,
		a.Logger,
	)

	a.Processor = queue.NewProcessor(queueMgr, classifier, a.Config.Queue, a.Logger)
	a.Processor.RegisterHandler(models.TaskOrchestrate, a.Orchestrator.HandleOrchestrate)
	a.Processor.RegisterHandler(models.TaskDownloadDocument, a.Orchestrator.HandleDownloadDocument)
	a.Processor.RegisterHandler(models.TaskAnalyzeDocument, a.Orchestrator.HandleAnalyzeDocument)

	a.SearchService = pipeline.NewService(a.StorageManager, queueMgr, a.RecoveryManager, a.Logger)
	return nil
}

func (a *App) initCleanup() error {
	if !a.Config.Cleanup.Enabled {
		a.Logger.Debug().Msg("Stale search cleanup disabled")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(a.Config.Cleanup.Schedule, a.failStaleSearches); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", a.Config.Cleanup.Schedule, err)
	}
	a.cleanup = c

	a.Logger.Debug().
		Str("schedule", a.Config.Cleanup.Schedule).
		Str("stale_after", a.Config.Cleanup.StaleAfter).
		Msg("Stale search cleanup scheduled")
	return nil
}

// failStaleSearches marks searches stuck in flight past the configured
// deadline as failed, with a timeout diagnostic so the recovery menu can
// still offer a resume.
func (a *App) failStaleSearches() {
	ctx := context.Background()
	staleAfter := a.Config.MustDuration(a.Config.Cleanup.StaleAfter, 2*time.Hour)
	cutoff := time.Now().UTC().Add(-staleAfter)

	stale, err := a.StorageManager.SearchStorage().ListStaleSearches(ctx, cutoff)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to check for stale searches")
		return
	}
	if len(stale) == 0 {
		return
	}

	a.Logger.Warn().
		Int("count", len(stale)).
		Msg("Detected stale searches, marking as failed")

	for _, job := range stale {
		entry := a.RecoveryManager.Classifier().NewDiagnosticEntry(
			fmt.Sprintf("search timed out: no activity for over %s", staleAfter),
			stageForStatus(job.Status),
		)
		job.AppendDiagnostic(entry)
		job.Status = models.SearchStatusFailed
		job.StatusMessage = fmt.Sprintf("Timed out after %s with no activity", staleAfter)
		now := time.Now().UTC()
		job.CompletedAt = &now

		if err := a.StorageManager.SearchStorage().SaveSearch(ctx, job); err != nil {
			a.Logger.Warn().
				Err(err).
				Str("search_id", job.ID).
				Msg("Failed to mark stale search as failed")
			continue
		}
		a.Logger.Info().
			Str("search_id", job.ID).
			Str("reference", job.ReferenceNumber).
			Int("progress", job.ProgressPercent).
			Msg("Marked stale search as failed")
	}
}

// stageForStatus guesses which stage a stuck search died in from its
// coarse status, so the timeout diagnostic lands on a resumable stage.
func stageForStatus(status models.SearchStatus) string {
	switch status {
	case models.SearchStatusAnalyzing:
		return models.StageAnalyzeDocuments
	case models.SearchStatusGenerating:
		return models.StageGenerateReport
	default:
		return models.StageScrapeRecords
	}
}

// Start launches the browser pool, the queue workers, and the cleanup
// sweep.
func (a *App) Start() error {
	if err := a.BrowserPool.Start(); err != nil {
		return fmt.Errorf("failed to start browser pool: %w", err)
	}
	if err := a.Processor.Start(); err != nil {
		return fmt.Errorf("failed to start queue processor: %w", err)
	}
	if a.cleanup != nil {
		a.cleanup.Start()
	}

	a.Logger.Info().Msg("Application started")
	return nil
}

// Close shuts everything down in reverse dependency order.
func (a *App) Close() error {
	if a.cleanup != nil {
		<-a.cleanup.Stop().Done()
	}

	if a.Processor != nil {
		if err := a.Processor.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop queue processor")
		}
	}

	if a.BrowserPool != nil {
		a.BrowserPool.Shutdown()
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}
	return nil
}
