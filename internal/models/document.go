package models

import "time"

// DocumentType classifies a recorded instrument.
type DocumentType string

const (
	DocTypeDeed         DocumentType = "deed"
	DocTypeDeedOfTrust  DocumentType = "deed_of_trust"
	DocTypeMortgage     DocumentType = "mortgage"
	DocTypeLien         DocumentType = "lien"
	DocTypeRelease      DocumentType = "release"
	DocTypeEasement     DocumentType = "easement"
	DocTypeJudgment     DocumentType = "judgment"
	DocTypeLisPendens   DocumentType = "lis_pendens"
	DocTypeCourtFiling  DocumentType = "court_filing"
	DocTypePlat         DocumentType = "plat"
	DocTypeOther        DocumentType = "other"
	DocTypeUnclassified DocumentType = "unclassified"
)

// DocumentSource identifies where a document was discovered.
type DocumentSource string

const (
	SourceCountyRecorder DocumentSource = "county_recorder"
	SourceCourtRecords   DocumentSource = "court_records"
	SourceManualUpload   DocumentSource = "manual_upload"
)

// Document is one recorded instrument discovered for a search.
type Document struct {
	ID       string `badgerhold:"key"`
	SearchID string `badgerhold:"index"`

	DocumentType     DocumentType
	InstrumentNumber string
	RecordingDate    *time.Time
	Grantor          []string
	Grantee          []string

	Source    DocumentSource
	SourceURL string

	// Download result; empty until the download stage succeeds for this row.
	FilePath    string
	FileSize    int64
	ContentHash string

	// Analysis result
	AISummary  string
	AnalyzedAt *time.Time

	CreatedAt time.Time
}

// SearchResult is one hit returned by a scraping adapter before the
// document is downloaded or persisted.
type SearchResult struct {
	InstrumentNumber string       `json:"instrument_number"`
	DocumentType     DocumentType `json:"document_type"`
	RecordingDate    *time.Time   `json:"recording_date"`
	Grantor          []string     `json:"grantor"`
	Grantee          []string     `json:"grantee"`
	DownloadURL      string       `json:"download_url"`
	Description      string       `json:"description,omitempty"`
}

// DownloadedDocument describes a successfully fetched document file.
type DownloadedDocument struct {
	FilePath    string `json:"file_path"`
	FileSize    int64  `json:"file_size"`
	ContentHash string `json:"content_hash"`
}

// EncumbranceStatus tracks whether a burden on title is still in force.
type EncumbranceStatus string

const (
	EncumbranceActive   EncumbranceStatus = "active"
	EncumbranceReleased EncumbranceStatus = "released"
	EncumbranceUnknown  EncumbranceStatus = "unknown"
)

// Encumbrance is a burden on title (lien, judgment, lis pendens, easement)
// detected during analysis or court search.
type Encumbrance struct {
	ID         string `badgerhold:"key"`
	SearchID   string `badgerhold:"index"`
	DocumentID string

	EncumbranceType    string
	Status             EncumbranceStatus
	HolderName         string
	RecordedDate       *time.Time
	RecordingReference string
	Description        string
	RiskLevel          string // low, medium, high
	RequiresAction     bool
	ActionDescription  string
}

// ChainOfTitleEntry is one conveyance link in the assembled ownership chain,
// ordered by SequenceNumber.
type ChainOfTitleEntry struct {
	ID         string `badgerhold:"key"`
	SearchID   string `badgerhold:"index"`
	DocumentID string

	SequenceNumber     int
	TransactionType    string
	TransactionDate    *time.Time
	GrantorNames       []string
	GranteeNames       []string
	RecordingReference string
	Description        string
}

// TitleReport is the finished artifact of a completed search.
type TitleReport struct {
	ID       string `badgerhold:"key"`
	SearchID string `badgerhold:"index"`

	FilePath         string
	DocumentCount    int
	ChainEntryCount  int
	EncumbranceCount int
	RiskSummary      string
	GeneratedAt      time.Time
}
