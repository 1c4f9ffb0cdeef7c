package interfaces

import (
	"context"
	"time"

	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

// SearchStorage persists SearchJob rows. Saves are atomic; the stage that
// owns a job writes the whole row at each boundary.
type SearchStorage interface {
	SaveSearch(ctx context.Context, job *models.SearchJob) error
	GetSearch(ctx context.Context, id string) (*models.SearchJob, error)
	GetSearchByReference(ctx context.Context, reference string) (*models.SearchJob, error)
	ListSearchesByStatus(ctx context.Context, status models.SearchStatus) ([]*models.SearchJob, error)
	ListStaleSearches(ctx context.Context, startedBefore time.Time) ([]*models.SearchJob, error)
	DeleteSearch(ctx context.Context, id string) error
}

// DocumentStorage persists Document, Encumbrance and ChainOfTitleEntry rows.
type DocumentStorage interface {
	SaveDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsBySearch(ctx context.Context, searchID string) ([]*models.Document, error)
	ListPendingDownloads(ctx context.Context, searchID string) ([]*models.Document, error)
	ListPendingAnalysis(ctx context.Context, searchID string) ([]*models.Document, error)

	SaveEncumbrance(ctx context.Context, enc *models.Encumbrance) error
	ListEncumbrancesBySearch(ctx context.Context, searchID string) ([]*models.Encumbrance, error)

	SaveChainEntry(ctx context.Context, entry *models.ChainOfTitleEntry) error
	ListChainBySearch(ctx context.Context, searchID string) ([]*models.ChainOfTitleEntry, error)
	DeleteChainBySearch(ctx context.Context, searchID string) error
}

// ReportStorage persists finished TitleReport rows.
type ReportStorage interface {
	SaveReport(ctx context.Context, report *models.TitleReport) error
	GetReportBySearch(ctx context.Context, searchID string) (*models.TitleReport, error)
}

// StorageManager bundles the storage interfaces behind one lifecycle.
type StorageManager interface {
	SearchStorage() SearchStorage
	DocumentStorage() DocumentStorage
	ReportStorage() ReportStorage
	Close() error
}
