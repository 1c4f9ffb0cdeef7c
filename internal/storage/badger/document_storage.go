package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/DataisKing1/title-search-app-sub000/internal/interfaces"
	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

// DocumentStorage implements the DocumentStorage interface for Badger
type DocumentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDocumentStorage creates a new DocumentStorage instance
func NewDocumentStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DocumentStorage {
	return &DocumentStorage{
		db:     db,
		logger: logger,
	}
}

func (s *DocumentStorage) SaveDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document ID is required")
	}
	if err := s.db.Store().Upsert(doc.ID, doc); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

func (s *DocumentStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := s.db.Store().Get(id, &doc); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("document not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

func (s *DocumentStorage) ListDocumentsBySearch(ctx context.Context, searchID string) ([]*models.Document, error) {
	var docs []models.Document
	if err := s.db.Store().Find(&docs, badgerhold.Where("SearchID").Eq(searchID).Index("SearchID").SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docPointers(docs), nil
}

// ListPendingDownloads returns documents discovered but not yet fetched.
func (s *DocumentStorage) ListPendingDownloads(ctx context.Context, searchID string) ([]*models.Document, error) {
	var docs []models.Document
	query := badgerhold.Where("SearchID").Eq(searchID).Index("SearchID").
		And("FilePath").Eq("").
		And("SourceURL").Ne("")
	if err := s.db.Store().Find(&docs, query); err != nil {
		return nil, fmt.Errorf("failed to list pending downloads: %w", err)
	}
	return docPointers(docs), nil
}

// ListPendingAnalysis returns downloaded documents without analysis results.
func (s *DocumentStorage) ListPendingAnalysis(ctx context.Context, searchID string) ([]*models.Document, error) {
	var docs []models.Document
	query := badgerhold.Where("SearchID").Eq(searchID).Index("SearchID").
		And("FilePath").Ne("").
		And("AnalyzedAt").IsNil()
	if err := s.db.Store().Find(&docs, query); err != nil {
		return nil, fmt.Errorf("failed to list pending analysis: %w", err)
	}
	return docPointers(docs), nil
}

func (s *DocumentStorage) SaveEncumbrance(ctx context.Context, enc *models.Encumbrance) error {
	if enc.ID == "" {
		return fmt.Errorf("encumbrance ID is required")
	}
	if err := s.db.Store().Upsert(enc.ID, enc); err != nil {
		return fmt.Errorf("failed to save encumbrance: %w", err)
	}
	return nil
}

func (s *DocumentStorage) ListEncumbrancesBySearch(ctx context.Context, searchID string) ([]*models.Encumbrance, error) {
	var encs []models.Encumbrance
	if err := s.db.Store().Find(&encs, badgerhold.Where("SearchID").Eq(searchID).Index("SearchID")); err != nil {
		return nil, fmt.Errorf("failed to list encumbrances: %w", err)
	}

	result := make([]*models.Encumbrance, len(encs))
	for i := range encs {
		result[i] = &encs[i]
	}
	return result, nil
}

func (s *DocumentStorage) SaveChainEntry(ctx context.Context, entry *models.ChainOfTitleEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("chain entry ID is required")
	}
	if err := s.db.Store().Upsert(entry.ID, entry); err != nil {
		return fmt.Errorf("failed to save chain entry: %w", err)
	}
	return nil
}

func (s *DocumentStorage) ListChainBySearch(ctx context.Context, searchID string) ([]*models.ChainOfTitleEntry, error) {
	var entries []models.ChainOfTitleEntry
	if err := s.db.Store().Find(&entries, badgerhold.Where("SearchID").Eq(searchID).Index("SearchID").SortBy("SequenceNumber")); err != nil {
		return nil, fmt.Errorf("failed to list chain entries: %w", err)
	}

	result := make([]*models.ChainOfTitleEntry, len(entries))
	for i := range entries {
		result[i] = &entries[i]
	}
	return result, nil
}

// DeleteChainBySearch removes the assembled chain so a resumed run can
// rebuild it without duplicate links.
func (s *DocumentStorage) DeleteChainBySearch(ctx context.Context, searchID string) error {
	if err := s.db.Store().DeleteMatching(&models.ChainOfTitleEntry{}, badgerhold.Where("SearchID").Eq(searchID)); err != nil {
		return fmt.Errorf("failed to delete chain entries: %w", err)
	}
	return nil
}

func docPointers(docs []models.Document) []*models.Document {
	result := make([]*models.Document, len(docs))
	for i := range docs {
		result[i] = &docs[i]
	}
	return result
}
