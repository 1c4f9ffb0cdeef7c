package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataisKing1/title-search-app-sub000/internal/common"
	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

func testService(t *testing.T) *Service {
	t.Helper()
	return NewService(common.ReportsConfig{OutputDir: t.TempDir()}, common.GetLogger())
}

func sampleSearch() *models.SearchJob {
	return &models.SearchJob{
		ID:              common.NewSearchID(),
		ReferenceNumber: "TS-2026-00042",
		PropertyAddress: "123 Main St, Phoenix, AZ 85001",
		County:          "maricopa",
		ParcelNumber:    "117-22-033",
		OwnerName:       "DOE, ROBERT",
		SearchType:      "full",
	}
}

func TestGenerate_FullReport(t *testing.T) {
	s := testService(t)
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	report, err := s.Generate(Input{
		Search: sampleSearch(),
		Documents: []*models.Document{
			{ID: "doc_1", InstrumentNumber: "2024-0012345", DocumentType: models.DocTypeDeed, RecordingDate: &date, Source: models.SourceCountyRecorder},
			{ID: "doc_2", InstrumentNumber: "2024-0012399", DocumentType: models.DocTypeDeedOfTrust, Source: models.SourceCountyRecorder},
		},
		Chain: []*models.ChainOfTitleEntry{
			{SequenceNumber: 1, TransactionType: "deed", TransactionDate: &date, GrantorNames: []string{"SMITH, JOHN"}, GranteeNames: []string{"DOE, ROBERT"}, RecordingReference: "2024-0012345"},
		},
		Encumbrances: []*models.Encumbrance{
			{EncumbranceType: "deed_of_trust", Status: models.EncumbranceActive, HolderName: "FIRST NATIONAL BANK", RiskLevel: "high", Description: "Secures $300,000 note"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.DocumentCount)
	assert.Equal(t, 1, report.ChainEntryCount)
	assert.Equal(t, 1, report.EncumbranceCount)
	assert.Contains(t, report.RiskSummary, "HIGH RISK")
	assert.Equal(t, "TS-2026-00042.pdf", filepath.Base(report.FilePath))

	info, err := os.Stat(report.FilePath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(500), "rendered PDF should not be empty")
}

func TestGenerate_EmptySectionsStillRender(t *testing.T) {
	s := testService(t)

	report, err := s.Generate(Input{Search: sampleSearch()})
	require.NoError(t, err)
	assert.Zero(t, report.DocumentCount)
	assert.Contains(t, report.RiskSummary, "clear")

	_, err = os.Stat(report.FilePath)
	assert.NoError(t, err)
}

func TestGenerate_RequiresSearch(t *testing.T) {
	s := testService(t)
	_, err := s.Generate(Input{})
	assert.Error(t, err)
}

func TestSummarizeRisk(t *testing.T) {
	tests := []struct {
		name string
		encs []*models.Encumbrance
		want string
	}{
		{"none", nil, "clear"},
		{"high wins", []*models.Encumbrance{{RiskLevel: "low"}, {RiskLevel: "high", Status: models.EncumbranceActive}}, "HIGH RISK"},
		{"medium without high", []*models.Encumbrance{{RiskLevel: "medium"}}, "MODERATE RISK"},
		{"all low", []*models.Encumbrance{{RiskLevel: "low"}, {RiskLevel: "low"}}, "LOW RISK"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, summarizeRisk(tt.encs), tt.want)
		})
	}
}
