package interfaces

import (
	"context"

	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

// DocumentAnalysis is the structured outcome of analyzing one document.
type DocumentAnalysis struct {
	DocumentType models.DocumentType `json:"document_type"`
	Grantor      []string            `json:"grantor"`
	Grantee      []string            `json:"grantee"`
	Summary      string              `json:"summary"`
	Encumbrances []EncumbranceHint   `json:"encumbrances"`
}

// EncumbranceHint is an encumbrance indicator the analyzer spotted in a
// document. The analyze stage turns these into Encumbrance rows.
type EncumbranceHint struct {
	Type        string `json:"type"`
	HolderName  string `json:"holder_name"`
	Description string `json:"description"`
	RiskLevel   string `json:"risk_level"`
}

// DocumentAnalyzer classifies a document and extracts title-relevant facts.
type DocumentAnalyzer interface {
	AnalyzeDocument(ctx context.Context, doc *models.Document) (*DocumentAnalysis, error)
}
