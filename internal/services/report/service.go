package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"

	"github.com/DataisKing1/title-search-app-sub000/internal/common"
	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

// Input carries everything the report renders for one completed search.
type Input struct {
	Search       *models.SearchJob
	Documents    []*models.Document
	Chain        []*models.ChainOfTitleEntry
	Encumbrances []*models.Encumbrance
}

// Service renders the finished title report PDF.
type Service struct {
	outputDir string
	logger    arbor.ILogger
}

// NewService creates a report service writing into cfg.OutputDir.
func NewService(cfg common.ReportsConfig, logger arbor.ILogger) *Service {
	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = "./data/reports"
	}
	return &Service{
		outputDir: outputDir,
		logger:    logger,
	}
}

// Generate renders the report and returns the persisted TitleReport row.
func (s *Service) Generate(input Input) (*models.TitleReport, error) {
	if input.Search == nil {
		return nil, fmt.Errorf("search is required")
	}

	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create reports directory: %w", err)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	s.renderHeader(pdf, input.Search)
	s.renderPropertySection(pdf, input.Search)
	s.renderChainSection(pdf, input.Chain)
	s.renderEncumbranceSection(pdf, input.Encumbrances)
	s.renderDocumentInventory(pdf, input.Documents)

	risk := summarizeRisk(input.Encumbrances)
	s.renderRiskSection(pdf, risk)

	path := filepath.Join(s.outputDir, fmt.Sprintf("%s.pdf", input.Search.ReferenceNumber))
	if err := pdf.OutputFileAndClose(path); err != nil {
		return nil, fmt.Errorf("write report PDF: %w", err)
	}

	s.logger.Info().
		Str("search_id", input.Search.ID).
		Str("path", path).
		Int("documents", len(input.Documents)).
		Int("chain_entries", len(input.Chain)).
		Int("encumbrances", len(input.Encumbrances)).
		Msg("Title report generated")

	return &models.TitleReport{
		ID:               common.NewDocumentID(),
		SearchID:         input.Search.ID,
		FilePath:         path,
		DocumentCount:    len(input.Documents),
		ChainEntryCount:  len(input.Chain),
		EncumbranceCount: len(input.Encumbrances),
		RiskSummary:      risk,
		GeneratedAt:      time.Now().UTC(),
	}, nil
}

func (s *Service) renderHeader(pdf *fpdf.Fpdf, search *models.SearchJob) {
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Title Search Report", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, fmt.Sprintf("Reference: %s", search.ReferenceNumber), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated: %s", time.Now().UTC().Format("January 2, 2006")), "", 1, "C", false, 0, "")
	pdf.Ln(4)
}

func (s *Service) sectionTitle(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
}

func (s *Service) renderPropertySection(pdf *fpdf.Fpdf, search *models.SearchJob) {
	s.sectionTitle(pdf, "Property")

	rows := [][2]string{
		{"Address", search.PropertyAddress},
		{"County", search.County},
		{"Parcel Number", search.ParcelNumber},
		{"Owner of Record", search.OwnerName},
		{"Search Type", search.SearchType},
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(40, 5, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		pdf.MultiCell(0, 5, row[1], "", "L", false)
	}
	pdf.Ln(4)
}

func (s *Service) renderChainSection(pdf *fpdf.Fpdf, chain []*models.ChainOfTitleEntry) {
	s.sectionTitle(pdf, "Chain of Title")

	if len(chain) == 0 {
		pdf.MultiCell(0, 5, "No conveyances were identified within the search period.", "", "L", false)
		pdf.Ln(4)
		return
	}

	header := []string{"#", "Date", "Type", "Grantor", "Grantee", "Recording Ref"}
	widths := []float64{8, 22, 28, 42, 42, 38}
	s.tableHeader(pdf, header, widths)

	for _, entry := range chain {
		date := ""
		if entry.TransactionDate != nil {
			date = entry.TransactionDate.Format("01/02/2006")
		}
		s.tableRow(pdf, widths, []string{
			fmt.Sprintf("%d", entry.SequenceNumber),
			date,
			entry.TransactionType,
			joinNames(entry.GrantorNames),
			joinNames(entry.GranteeNames),
			entry.RecordingReference,
		})
	}
	pdf.Ln(4)
}

func (s *Service) renderEncumbranceSection(pdf *fpdf.Fpdf, encumbrances []*models.Encumbrance) {
	s.sectionTitle(pdf, "Encumbrances")

	if len(encumbrances) == 0 {
		pdf.MultiCell(0, 5, "No active encumbrances were identified.", "", "L", false)
		pdf.Ln(4)
		return
	}

	header := []string{"Type", "Status", "Holder", "Risk", "Description"}
	widths := []float64{30, 20, 40, 15, 75}
	s.tableHeader(pdf, header, widths)

	for _, enc := range encumbrances {
		s.tableRow(pdf, widths, []string{
			enc.EncumbranceType,
			string(enc.Status),
			enc.HolderName,
			enc.RiskLevel,
			enc.Description,
		})
	}
	pdf.Ln(4)
}

func (s *Service) renderDocumentInventory(pdf *fpdf.Fpdf, documents []*models.Document) {
	s.sectionTitle(pdf, "Document Inventory")

	if len(documents) == 0 {
		pdf.MultiCell(0, 5, "No documents were retrieved for this search.", "", "L", false)
		pdf.Ln(4)
		return
	}

	header := []string{"Instrument", "Type", "Recorded", "Source"}
	widths := []float64{45, 45, 30, 60}
	s.tableHeader(pdf, header, widths)

	for _, doc := range documents {
		date := ""
		if doc.RecordingDate != nil {
			date = doc.RecordingDate.Format("01/02/2006")
		}
		s.tableRow(pdf, widths, []string{
			doc.InstrumentNumber,
			string(doc.DocumentType),
			date,
			string(doc.Source),
		})
	}
	pdf.Ln(4)
}

func (s *Service) renderRiskSection(pdf *fpdf.Fpdf, risk string) {
	s.sectionTitle(pdf, "Risk Summary")
	pdf.MultiCell(0, 5, risk, "", "L", false)
}

func (s *Service) tableHeader(pdf *fpdf.Fpdf, header []string, widths []float64) {
	pdf.SetFont("Arial", "B", 8)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range header {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
	pdf.SetFillColor(255, 255, 255)
}

func (s *Service) tableRow(pdf *fpdf.Fpdf, widths []float64, cells []string) {
	for i, cell := range cells {
		pdf.CellFormat(widths[i], 6, truncate(pdf, cell, widths[i]-2), "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
}

func truncate(pdf *fpdf.Fpdf, text string, width float64) string {
	if pdf.GetStringWidth(text) <= width {
		return text
	}
	for len(text) > 3 && pdf.GetStringWidth(text+"...") > width {
		text = text[:len(text)-1]
	}
	return text + "..."
}

func joinNames(names []string) string {
	return strings.Join(names, "; ")
}

// summarizeRisk reduces the encumbrance list to a one-paragraph overall
// assessment.
func summarizeRisk(encumbrances []*models.Encumbrance) string {
	if len(encumbrances) == 0 {
		return "No encumbrances were identified. Title appears clear based on the records examined."
	}

	high, medium, active := 0, 0, 0
	for _, enc := range encumbrances {
		if enc.Status == models.EncumbranceActive {
			active++
		}
		switch enc.RiskLevel {
		case "high":
			high++
		case "medium":
			medium++
		}
	}

	switch {
	case high > 0:
		return fmt.Sprintf("HIGH RISK: %d high-risk encumbrance(s) identified (%d active of %d total). Resolution is recommended before closing.", high, active, len(encumbrances))
	case medium > 0:
		return fmt.Sprintf("MODERATE RISK: %d medium-risk encumbrance(s) identified (%d active of %d total). Review with a title officer is recommended.", medium, active, len(encumbrances))
	default:
		return fmt.Sprintf("LOW RISK: %d encumbrance(s) identified, none rated above low risk (%d active).", len(encumbrances), active)
	}
}
