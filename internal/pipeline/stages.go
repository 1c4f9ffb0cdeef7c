package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/DataisKing1/title-search-app-sub000/internal/common"
	"github.com/DataisKing1/title-search-app-sub000/internal/interfaces"
	"github.com/DataisKing1/title-search-app-sub000/internal/models"
	"github.com/DataisKing1/title-search-app-sub000/internal/services/report"
)

// defaultSearchYears bounds the records search when the request does not
// specify a period.
const defaultSearchYears = 30

func (o *Orchestrator) searchRange(job *models.SearchJob) interfaces.DateRange {
	years := job.SearchYears
	if years <= 0 {
		years = defaultSearchYears
	}
	now := time.Now().UTC()
	return interfaces.DateRange{
		From: now.AddDate(-years, 0, 0),
		To:   now,
	}
}

// stageScrapeRecords queries the county recorder for every instrument
// touching the property and persists the hits as pending documents.
func (o *Orchestrator) stageScrapeRecords(ctx context.Context, job *models.SearchJob) error {
	adapter := o.registry.ForCounty(job.County)

	handle, err := o.pool.Acquire(ctx, job.County)
	if err != nil {
		return fmt.Errorf("acquire browser session: %w", err)
	}
	defer o.pool.Release(handle)

	ok, err := adapter.Initialize(ctx, handle)
	if err != nil {
		handle.MarkFailed()
		return err
	}
	if !ok {
		return fmt.Errorf("county recorder site for %s is unavailable", job.County)
	}

	dateRange := o.searchRange(job)
	var results []models.SearchResult

	if job.ParcelNumber != "" {
		hits, err := adapter.SearchByParcel(ctx, handle, job.ParcelNumber, dateRange)
		if err != nil {
			handle.MarkFailed()
			return err
		}
		results = append(results, hits...)
	}
	if job.OwnerName != "" {
		hits, err := adapter.SearchByName(ctx, handle, job.OwnerName, dateRange)
		if err != nil {
			handle.MarkFailed()
			return err
		}
		results = append(results, hits...)
	}

	saved, err := o.saveResults(ctx, job, results, models.SourceCountyRecorder)
	if err != nil {
		return err
	}

	o.logger.Info().
		Str("search_id", job.ID).
		Str("county", job.County).
		Int("results", len(results)).
		Int("new_documents", saved).
		Msg("Recorder scrape completed")
	return nil
}

// stageCourtSearch looks for litigation instruments recorded against the
// owner. Hits that are not court-flavored are discarded; the recorder
// scrape already covers them.
func (o *Orchestrator) stageCourtSearch(ctx context.Context, job *models.SearchJob) error {
	if job.OwnerName == "" {
		o.logger.Info().
			Str("search_id", job.ID).
			Msg("No owner name on file, skipping court search")
		return nil
	}

	adapter := o.registry.ForCounty(job.County)

	handle, err := o.pool.Acquire(ctx, job.County)
	if err != nil {
		return fmt.Errorf("acquire browser session: %w", err)
	}
	defer o.pool.Release(handle)

	if ok, err := adapter.Initialize(ctx, handle); err != nil {
		handle.MarkFailed()
		return err
	} else if !ok {
		return fmt.Errorf("court records site for %s is unavailable", job.County)
	}

	hits, err := adapter.SearchByName(ctx, handle, job.OwnerName, o.searchRange(job))
	if err != nil {
		handle.MarkFailed()
		return err
	}

	var courtHits []models.SearchResult
	for _, hit := range hits {
		switch hit.DocumentType {
		case models.DocTypeJudgment, models.DocTypeLisPendens, models.DocTypeCourtFiling:
			courtHits = append(courtHits, hit)
		}
	}

	saved, err := o.saveResults(ctx, job, courtHits, models.SourceCourtRecords)
	if err != nil {
		return err
	}

	o.logger.Info().
		Str("search_id", job.ID).
		Int("court_hits", len(courtHits)).
		Int("new_documents", saved).
		Msg("Court search completed")
	return nil
}

// saveResults persists search hits as document rows, deduplicating by
// instrument number against what the search already holds.
func (o *Orchestrator) saveResults(ctx context.Context, job *models.SearchJob, results []models.SearchResult, source models.DocumentSource) (int, error) {
	existing, err := o.storage.DocumentStorage().ListDocumentsBySearch(ctx, job.ID)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(existing))
	for _, doc := range existing {
		seen[doc.InstrumentNumber] = true
	}

	saved := 0
	for _, result := range results {
		if result.InstrumentNumber == "" || seen[result.InstrumentNumber] {
			continue
		}
		seen[result.InstrumentNumber] = true

		doc := &models.Document{
			ID:               common.NewDocumentID(),
			SearchID:         job.ID,
			DocumentType:     result.DocumentType,
			InstrumentNumber: result.InstrumentNumber,
			RecordingDate:    result.RecordingDate,
			Grantor:          result.Grantor,
			Grantee:          result.Grantee,
			Source:           source,
			SourceURL:        result.DownloadURL,
			CreatedAt:        time.Now().UTC(),
		}
		if err := o.storage.DocumentStorage().SaveDocument(ctx, doc); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

// stageDownloadDocuments fans out one download task per pending document.
// Individual failures are tolerated; the stage fails only when every
// download failed, since analysis with zero files is pointless.
func (o *Orchestrator) stageDownloadDocuments(ctx context.Context, job *models.SearchJob) error {
	docs, err := o.storage.DocumentStorage().ListPendingDownloads(ctx, job.ID)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		o.logger.Info().
			Str("search_id", job.ID).
			Msg("No documents to download")
		return nil
	}

	outcome, err := o.fanOut(ctx, job, models.TaskDownloadDocument, docs, stageProgress[models.StageDownloadDocuments])
	if err != nil {
		return err
	}

	o.logger.Info().
		Str("search_id", job.ID).
		Int("succeeded", outcome.Succeeded).
		Int("failed", outcome.Failed).
		Msg("Document downloads completed")

	if outcome.Succeeded == 0 {
		return fmt.Errorf("all %d document downloads failed", len(docs))
	}
	if outcome.Failed > 0 {
		job.StatusMessage = fmt.Sprintf("Downloaded %d of %d documents", outcome.Succeeded, len(docs))
	}
	return nil
}

// stageAnalyzeDocuments fans out one analysis task per downloaded file.
// Same partial-failure rule as downloads.
func (o *Orchestrator) stageAnalyzeDocuments(ctx context.Context, job *models.SearchJob) error {
	if o.analyzer == nil {
		o.logger.Warn().
			Str("search_id", job.ID).
			Msg("Document analysis is not configured, skipping stage")
		return nil
	}

	docs, err := o.storage.DocumentStorage().ListPendingAnalysis(ctx, job.ID)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		o.logger.Info().
			Str("search_id", job.ID).
			Msg("No documents to analyze")
		return nil
	}

	outcome, err := o.fanOut(ctx, job, models.TaskAnalyzeDocument, docs, stageProgress[models.StageAnalyzeDocuments])
	if err != nil {
		return err
	}

	o.logger.Info().
		Str("search_id", job.ID).
		Int("succeeded", outcome.Succeeded).
		Int("failed", outcome.Failed).
		Msg("Document analysis completed")

	if outcome.Succeeded == 0 {
		return fmt.Errorf("all %d document analyses failed", len(docs))
	}
	return nil
}

// stageBuildChain rebuilds the chain of title from analyzed conveyances.
// The previous chain is dropped first so resumed runs cannot duplicate
// links.
func (o *Orchestrator) stageBuildChain(ctx context.Context, job *models.SearchJob) error {
	if err := o.storage.DocumentStorage().DeleteChainBySearch(ctx, job.ID); err != nil {
		return err
	}

	docs, err := o.storage.DocumentStorage().ListDocumentsBySearch(ctx, job.ID)
	if err != nil {
		return err
	}

	conveyances := chainCandidates(docs)
	for i, doc := range conveyances {
		entry := &models.ChainOfTitleEntry{
			ID:                 common.NewDocumentID(),
			SearchID:           job.ID,
			DocumentID:         doc.ID,
			SequenceNumber:     i + 1,
			TransactionType:    string(doc.DocumentType),
			TransactionDate:    doc.RecordingDate,
			GrantorNames:       doc.Grantor,
			GranteeNames:       doc.Grantee,
			RecordingReference: doc.InstrumentNumber,
			Description:        doc.AISummary,
		}
		if err := o.storage.DocumentStorage().SaveChainEntry(ctx, entry); err != nil {
			return err
		}
	}

	o.logger.Info().
		Str("search_id", job.ID).
		Int("chain_entries", len(conveyances)).
		Msg("Chain of title assembled")
	return nil
}

// chainCandidates selects conveyance instruments and orders them by
// recording date, oldest first. Undated instruments sort last.
func chainCandidates(docs []*models.Document) []*models.Document {
	var conveyances []*models.Document
	for _, doc := range docs {
		switch doc.DocumentType {
		case models.DocTypeDeed, models.DocTypeDeedOfTrust:
			conveyances = append(conveyances, doc)
		}
	}

	// Insertion sort keeps this dependency-free and stable for the small
	// document counts a single property produces.
	for i := 1; i < len(conveyances); i++ {
		for j := i; j > 0 && chainBefore(conveyances[j], conveyances[j-1]); j-- {
			conveyances[j], conveyances[j-1] = conveyances[j-1], conveyances[j]
		}
	}
	return conveyances
}

func chainBefore(a, b *models.Document) bool {
	switch {
	case a.RecordingDate == nil:
		return false
	case b.RecordingDate == nil:
		return true
	default:
		return a.RecordingDate.Before(*b.RecordingDate)
	}
}

// stageGenerateReport renders the PDF and stores the report row.
func (o *Orchestrator) stageGenerateReport(ctx context.Context, job *models.SearchJob) error {
	docs, err := o.storage.DocumentStorage().ListDocumentsBySearch(ctx, job.ID)
	if err != nil {
		return err
	}
	chain, err := o.storage.DocumentStorage().ListChainBySearch(ctx, job.ID)
	if err != nil {
		return err
	}
	encumbrances, err := o.storage.DocumentStorage().ListEncumbrancesBySearch(ctx, job.ID)
	if err != nil {
		return err
	}

	titleReport, err := o.reports.Generate(report.Input{
		Search:       job,
		Documents:    docs,
		Chain:        chain,
		Encumbrances: encumbrances,
	})
	if err != nil {
		return err
	}

	return o.storage.ReportStorage().SaveReport(ctx, titleReport)
}

// stageFinalize closes out a successful run.
func (o *Orchestrator) stageFinalize(ctx context.Context, job *models.SearchJob) error {
	now := time.Now().UTC()
	job.Status = models.SearchStatusCompleted
	job.StatusMessage = "Search completed"
	job.CompletedAt = &now
	job.AdvanceProgress(100)

	o.logger.Info().
		Str("search_id", job.ID).
		Str("reference", job.ReferenceNumber).
		Msg("Search completed")
	return nil
}
