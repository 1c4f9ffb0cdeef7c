package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/DataisKing1/title-search-app-sub000/internal/common"
	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

// HandleDownloadDocument is the queue handler for one document download.
// It runs on any worker, so everything it needs travels in the payload or
// comes from storage.
func (o *Orchestrator) HandleDownloadDocument(ctx context.Context, task *models.TaskMessage) ([]byte, error) {
	var payload childPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode download payload: %w", err)
	}

	doc, err := o.storage.DocumentStorage().GetDocument(ctx, payload.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.FilePath != "" {
		// Already downloaded; redelivery after a crash lands here.
		return nil, nil
	}

	job, err := o.storage.SearchStorage().GetSearch(ctx, doc.SearchID)
	if err != nil {
		return nil, err
	}

	adapter := o.registry.ForCounty(job.County)

	handle, err := o.pool.Acquire(ctx, job.County)
	if err != nil {
		return nil, fmt.Errorf("acquire browser session: %w", err)
	}
	defer o.pool.Release(handle)

	path := filepath.Join(o.documentsDir, job.ID, doc.ID+".pdf")
	downloaded, err := adapter.DownloadDocument(ctx, handle, models.SearchResult{
		InstrumentNumber: doc.InstrumentNumber,
		DownloadURL:      doc.SourceURL,
	}, path)
	if err != nil {
		handle.MarkFailed()
		return nil, err
	}
	if downloaded == nil {
		// The site offered no retrievable image for this instrument. The
		// row stays as an index-only entry.
		o.logger.Info().
			Str("document_id", doc.ID).
			Str("instrument", doc.InstrumentNumber).
			Msg("No downloadable file for instrument")
		doc.SourceURL = ""
		return nil, o.storage.DocumentStorage().SaveDocument(ctx, doc)
	}

	doc.FilePath = downloaded.FilePath
	doc.FileSize = downloaded.FileSize
	doc.ContentHash = downloaded.ContentHash
	if err := o.storage.DocumentStorage().SaveDocument(ctx, doc); err != nil {
		return nil, err
	}

	result, _ := json.Marshal(downloaded)
	return result, nil
}

// HandleAnalyzeDocument is the queue handler for one document analysis.
func (o *Orchestrator) HandleAnalyzeDocument(ctx context.Context, task *models.TaskMessage) ([]byte, error) {
	if o.analyzer == nil {
		return nil, fmt.Errorf("document analysis is not configured, set an Anthropic API key")
	}

	var payload childPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode analysis payload: %w", err)
	}

	doc, err := o.storage.DocumentStorage().GetDocument(ctx, payload.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.AnalyzedAt != nil {
		return nil, nil
	}

	analysis, err := o.analyzer.AnalyzeDocument(ctx, doc)
	if err != nil {
		return nil, err
	}

	// Analysis refines scraped metadata but never erases it.
	if analysis.DocumentType != "" && analysis.DocumentType != models.DocTypeUnclassified {
		doc.DocumentType = analysis.DocumentType
	}
	if len(doc.Grantor) == 0 {
		doc.Grantor = analysis.Grantor
	}
	if len(doc.Grantee) == 0 {
		doc.Grantee = analysis.Grantee
	}
	doc.AISummary = analysis.Summary
	now := time.Now().UTC()
	doc.AnalyzedAt = &now

	if err := o.storage.DocumentStorage().SaveDocument(ctx, doc); err != nil {
		return nil, err
	}

	for _, hint := range analysis.Encumbrances {
		enc := &models.Encumbrance{
			ID:                 common.NewDocumentID(),
			SearchID:           doc.SearchID,
			DocumentID:         doc.ID,
			EncumbranceType:    hint.Type,
			Status:             models.EncumbranceActive,
			HolderName:         hint.HolderName,
			RecordedDate:       doc.RecordingDate,
			RecordingReference: doc.InstrumentNumber,
			Description:        hint.Description,
			RiskLevel:          hint.RiskLevel,
			RequiresAction:     hint.RiskLevel == "high",
		}
		if enc.RequiresAction {
			enc.ActionDescription = "Obtain release or payoff before closing"
		}
		if err := o.storage.DocumentStorage().SaveEncumbrance(ctx, enc); err != nil {
			return nil, err
		}
	}

	result, _ := json.Marshal(analysis)
	return result, nil
}
