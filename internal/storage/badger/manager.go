package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/DataisKing1/title-search-app-sub000/internal/common"
	"github.com/DataisKing1/title-search-app-sub000/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	search   interfaces.SearchStorage
	document interfaces.DocumentStorage
	report   interfaces.ReportStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:       db,
		search:   NewSearchStorage(db, logger),
		document: NewDocumentStorage(db, logger),
		report:   NewReportStorage(db, logger),
		logger:   logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// SearchStorage returns the Search storage interface
func (m *Manager) SearchStorage() interfaces.SearchStorage {
	return m.search
}

// DocumentStorage returns the Document storage interface
func (m *Manager) DocumentStorage() interfaces.DocumentStorage {
	return m.document
}

// ReportStorage returns the Report storage interface
func (m *Manager) ReportStorage() interfaces.ReportStorage {
	return m.report
}

// DB returns the underlying badgerhold store, used by the queue which
// shares the database.
func (m *Manager) DB() *BadgerDB {
	return m.db
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
