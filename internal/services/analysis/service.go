package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/DataisKing1/title-search-app-sub000/internal/common"
	"github.com/DataisKing1/title-search-app-sub000/internal/interfaces"
	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

const systemPrompt = `You are a title examiner's assistant. You classify recorded real
property instruments and extract the facts a title search needs. Respond with a single
JSON object and nothing else, using this schema:
{
  "document_type": "deed|deed_of_trust|mortgage|lien|release|easement|judgment|lis_pendens|court_filing|plat|other",
  "grantor": ["names"],
  "grantee": ["names"],
  "summary": "one to three sentences",
  "encumbrances": [
    {"type": "", "holder_name": "", "description": "", "risk_level": "low|medium|high"}
  ]
}
Use an empty encumbrances array when the instrument creates or evidences no burden on title.`

// maxDocumentChars caps how much extracted text goes into one analysis
// request.
const maxDocumentChars = 100000

// Service analyzes recorded documents with the Anthropic Messages API.
type Service struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	logger    arbor.ILogger
}

// NewService creates a document analyzer.
func NewService(cfg common.AnthropicConfig, logger arbor.ILogger) (*Service, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY or anthropic.api_key in config)")
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	timeout := 120 * time.Second
	if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
		timeout = d
	}

	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
	)

	logger.Debug().
		Str("model", model).
		Int("max_tokens", maxTokens).
		Dur("timeout", timeout).
		Msg("Document analysis service initialized")

	return &Service{
		client:    client,
		model:     model,
		maxTokens: int64(maxTokens),
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// AnalyzeDocument classifies the document and extracts grantor, grantee
// and encumbrance facts from its text.
func (s *Service) AnalyzeDocument(ctx context.Context, doc *models.Document) (*interfaces.DocumentAnalysis, error) {
	text, err := s.documentText(doc)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.Messages.New(timeoutCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: s.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(s.buildPrompt(doc, text)),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}

	var raw strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			raw.WriteString(block.Text)
		}
	}
	if raw.Len() == 0 {
		return nil, fmt.Errorf("analysis returned no content")
	}

	analysis, err := parseAnalysis(raw.String())
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("document_id", doc.ID).
		Str("document_type", string(analysis.DocumentType)).
		Int("encumbrances", len(analysis.Encumbrances)).
		Dur("duration", time.Since(start)).
		Msg("Document analyzed")

	return analysis, nil
}

func (s *Service) buildPrompt(doc *models.Document, text string) string {
	var b strings.Builder
	b.WriteString("Analyze this recorded instrument.\n")
	if doc.InstrumentNumber != "" {
		fmt.Fprintf(&b, "Instrument number: %s\n", doc.InstrumentNumber)
	}
	if doc.RecordingDate != nil {
		fmt.Fprintf(&b, "Recording date: %s\n", doc.RecordingDate.Format("2006-01-02"))
	}
	b.WriteString("\nDocument text:\n")
	b.WriteString(text)
	return b.String()
}

// documentText reads the downloaded file's extractable text. Scanned
// image PDFs yield little or nothing; the caller decides whether an empty
// extraction is fatal.
func (s *Service) documentText(doc *models.Document) (string, error) {
	if doc.FilePath == "" {
		return "", fmt.Errorf("document %s has no downloaded file", doc.ID)
	}

	data, err := os.ReadFile(doc.FilePath)
	if err != nil {
		return "", fmt.Errorf("read document file: %w", err)
	}

	text := extractPrintable(data)
	if len(text) > maxDocumentChars {
		text = text[:maxDocumentChars]
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("document %s contains no extractable text", doc.ID)
	}
	return text, nil
}

// extractPrintable pulls printable runs out of raw file bytes. Good
// enough for text-layer PDFs; OCR is out of scope.
func extractPrintable(data []byte) string {
	var b strings.Builder
	for _, c := range data {
		if c >= 0x20 && c < 0x7f || c == '\n' {
			b.WriteByte(c)
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// parseAnalysis decodes the model's JSON reply, tolerating surrounding
// prose or markdown fences.
func parseAnalysis(raw string) (*interfaces.DocumentAnalysis, error) {
	jsonText := extractJSON(raw)
	if jsonText == "" {
		return nil, fmt.Errorf("analysis response contained no JSON object")
	}

	var analysis interfaces.DocumentAnalysis
	if err := json.Unmarshal([]byte(jsonText), &analysis); err != nil {
		return nil, fmt.Errorf("parse analysis response: %w", err)
	}

	if analysis.DocumentType == "" {
		analysis.DocumentType = models.DocTypeUnclassified
	}
	for i := range analysis.Encumbrances {
		if analysis.Encumbrances[i].RiskLevel == "" {
			analysis.Encumbrances[i].RiskLevel = "medium"
		}
	}
	return &analysis, nil
}

// extractJSON returns the first balanced top-level JSON object in text.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}
