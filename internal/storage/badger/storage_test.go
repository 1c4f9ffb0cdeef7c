package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataisKing1/title-search-app-sub000/internal/common"
	"github.com/DataisKing1/title-search-app-sub000/internal/interfaces"
	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

func testStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()
	mgr, err := NewManager(common.GetLogger(), &common.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestSearchStorage_SaveAndGet(t *testing.T) {
	mgr := testStorage(t)
	ctx := context.Background()

	job := &models.SearchJob{
		ID:              common.NewSearchID(),
		ReferenceNumber: "TS-2026-00001",
		PropertyAddress: "123 Main St, Phoenix, AZ",
		County:          "maricopa",
		Status:          models.SearchStatusPending,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, mgr.SearchStorage().SaveSearch(ctx, job))

	got, err := mgr.SearchStorage().GetSearch(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ReferenceNumber, got.ReferenceNumber)
	assert.Equal(t, models.SearchStatusPending, got.Status)

	byRef, err := mgr.SearchStorage().GetSearchByReference(ctx, "TS-2026-00001")
	require.NoError(t, err)
	assert.Equal(t, job.ID, byRef.ID)
}

func TestSearchStorage_RejectsDuplicateReference(t *testing.T) {
	mgr := testStorage(t)
	ctx := context.Background()

	first := &models.SearchJob{
		ID:              common.NewSearchID(),
		ReferenceNumber: "TS-2026-00001",
		Status:          models.SearchStatusPending,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, mgr.SearchStorage().SaveSearch(ctx, first))

	// A different search may not claim the same reference.
	second := &models.SearchJob{
		ID:              common.NewSearchID(),
		ReferenceNumber: "TS-2026-00001",
		Status:          models.SearchStatusPending,
		CreatedAt:       time.Now().UTC(),
	}
	err := mgr.SearchStorage().SaveSearch(ctx, second)
	assert.ErrorIs(t, err, models.ErrDuplicateReference)

	// Updates to the owning search keep working.
	first.Status = models.SearchStatusQueued
	require.NoError(t, mgr.SearchStorage().SaveSearch(ctx, first))

	byRef, err := mgr.SearchStorage().GetSearchByReference(ctx, "TS-2026-00001")
	require.NoError(t, err)
	assert.Equal(t, first.ID, byRef.ID)
}

func TestSearchStorage_GetMissing(t *testing.T) {
	mgr := testStorage(t)

	_, err := mgr.SearchStorage().GetSearch(context.Background(), "srch_missing")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSearchStorage_SaveRequiresID(t *testing.T) {
	mgr := testStorage(t)
	err := mgr.SearchStorage().SaveSearch(context.Background(), &models.SearchJob{})
	assert.Error(t, err)
}

func TestSearchStorage_ListByStatus(t *testing.T) {
	mgr := testStorage(t)
	ctx := context.Background()

	for i, status := range []models.SearchStatus{
		models.SearchStatusPending,
		models.SearchStatusScraping,
		models.SearchStatusScraping,
	} {
		require.NoError(t, mgr.SearchStorage().SaveSearch(ctx, &models.SearchJob{
			ID:        common.NewSearchID(),
			Status:    status,
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}))
	}

	scraping, err := mgr.SearchStorage().ListSearchesByStatus(ctx, models.SearchStatusScraping)
	require.NoError(t, err)
	assert.Len(t, scraping, 2)

	completed, err := mgr.SearchStorage().ListSearchesByStatus(ctx, models.SearchStatusCompleted)
	require.NoError(t, err)
	assert.Empty(t, completed)
}

func TestSearchStorage_ListStaleSearches(t *testing.T) {
	mgr := testStorage(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-3 * time.Hour)
	recent := time.Now().UTC()

	staleJob := &models.SearchJob{
		ID:        common.NewSearchID(),
		Status:    models.SearchStatusScraping,
		CreatedAt: old,
		StartedAt: &old,
	}
	freshJob := &models.SearchJob{
		ID:        common.NewSearchID(),
		Status:    models.SearchStatusScraping,
		CreatedAt: recent,
		StartedAt: &recent,
	}
	// Terminal jobs are never stale regardless of age.
	doneJob := &models.SearchJob{
		ID:        common.NewSearchID(),
		Status:    models.SearchStatusCompleted,
		CreatedAt: old,
		StartedAt: &old,
	}
	for _, job := range []*models.SearchJob{staleJob, freshJob, doneJob} {
		require.NoError(t, mgr.SearchStorage().SaveSearch(ctx, job))
	}

	stale, err := mgr.SearchStorage().ListStaleSearches(ctx, time.Now().UTC().Add(-2*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, staleJob.ID, stale[0].ID)
}

func TestDocumentStorage_PendingQueries(t *testing.T) {
	mgr := testStorage(t)
	ctx := context.Background()
	searchID := common.NewSearchID()
	now := time.Now().UTC()

	discovered := &models.Document{
		ID:        common.NewDocumentID(),
		SearchID:  searchID,
		SourceURL: "https://recorder.example.gov/doc/1",
		CreatedAt: now,
	}
	downloaded := &models.Document{
		ID:        common.NewDocumentID(),
		SearchID:  searchID,
		SourceURL: "https://recorder.example.gov/doc/2",
		FilePath:  "/data/documents/doc2.pdf",
		CreatedAt: now,
	}
	analyzed := &models.Document{
		ID:         common.NewDocumentID(),
		SearchID:   searchID,
		SourceURL:  "https://recorder.example.gov/doc/3",
		FilePath:   "/data/documents/doc3.pdf",
		AISummary:  "Warranty deed conveying fee simple",
		AnalyzedAt: &now,
		CreatedAt:  now,
	}
	for _, doc := range []*models.Document{discovered, downloaded, analyzed} {
		require.NoError(t, mgr.DocumentStorage().SaveDocument(ctx, doc))
	}

	all, err := mgr.DocumentStorage().ListDocumentsBySearch(ctx, searchID)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pendingDownload, err := mgr.DocumentStorage().ListPendingDownloads(ctx, searchID)
	require.NoError(t, err)
	require.Len(t, pendingDownload, 1)
	assert.Equal(t, discovered.ID, pendingDownload[0].ID)

	pendingAnalysis, err := mgr.DocumentStorage().ListPendingAnalysis(ctx, searchID)
	require.NoError(t, err)
	require.Len(t, pendingAnalysis, 1)
	assert.Equal(t, downloaded.ID, pendingAnalysis[0].ID)
}

func TestDocumentStorage_ChainOrderingAndDelete(t *testing.T) {
	mgr := testStorage(t)
	ctx := context.Background()
	searchID := common.NewSearchID()

	// Saved out of order, listed by sequence number.
	for _, seq := range []int{3, 1, 2} {
		require.NoError(t, mgr.DocumentStorage().SaveChainEntry(ctx, &models.ChainOfTitleEntry{
			ID:             common.NewDocumentID(),
			SearchID:       searchID,
			SequenceNumber: seq,
		}))
	}

	chain, err := mgr.DocumentStorage().ListChainBySearch(ctx, searchID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	for i, entry := range chain {
		assert.Equal(t, i+1, entry.SequenceNumber)
	}

	require.NoError(t, mgr.DocumentStorage().DeleteChainBySearch(ctx, searchID))
	chain, err = mgr.DocumentStorage().ListChainBySearch(ctx, searchID)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestDocumentStorage_Encumbrances(t *testing.T) {
	mgr := testStorage(t)
	ctx := context.Background()
	searchID := common.NewSearchID()

	require.NoError(t, mgr.DocumentStorage().SaveEncumbrance(ctx, &models.Encumbrance{
		ID:              common.NewDocumentID(),
		SearchID:        searchID,
		EncumbranceType: "tax_lien",
		Status:          models.EncumbranceActive,
		RiskLevel:       "high",
	}))

	encs, err := mgr.DocumentStorage().ListEncumbrancesBySearch(ctx, searchID)
	require.NoError(t, err)
	require.Len(t, encs, 1)
	assert.Equal(t, "tax_lien", encs[0].EncumbranceType)
}

func TestReportStorage_RoundTrip(t *testing.T) {
	mgr := testStorage(t)
	ctx := context.Background()
	searchID := common.NewSearchID()

	report := &models.TitleReport{
		ID:            common.NewDocumentID(),
		SearchID:      searchID,
		FilePath:      "/data/reports/report.pdf",
		DocumentCount: 7,
		GeneratedAt:   time.Now().UTC(),
	}
	require.NoError(t, mgr.ReportStorage().SaveReport(ctx, report))

	got, err := mgr.ReportStorage().GetReportBySearch(ctx, searchID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.DocumentCount)

	_, err = mgr.ReportStorage().GetReportBySearch(ctx, "srch_other")
	assert.Error(t, err)
}
