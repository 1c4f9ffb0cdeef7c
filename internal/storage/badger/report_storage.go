package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/DataisKing1/title-search-app-sub000/internal/interfaces"
	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

// ReportStorage implements the ReportStorage interface for Badger
type ReportStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewReportStorage creates a new ReportStorage instance
func NewReportStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ReportStorage {
	return &ReportStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ReportStorage) SaveReport(ctx context.Context, report *models.TitleReport) error {
	if report.ID == "" {
		return fmt.Errorf("report ID is required")
	}
	if err := s.db.Store().Upsert(report.ID, report); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

func (s *ReportStorage) GetReportBySearch(ctx context.Context, searchID string) (*models.TitleReport, error) {
	var reports []models.TitleReport
	if err := s.db.Store().Find(&reports, badgerhold.Where("SearchID").Eq(searchID).Index("SearchID")); err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("report not found for search: %s", searchID)
	}
	return &reports[0], nil
}
