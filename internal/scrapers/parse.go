package scrapers

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

// parseResults extracts search hits from a rendered results page. The
// expected table layout is instrument, type, date, grantor, grantee, with
// the download link anywhere in the row. Rows missing an instrument
// number are skipped rather than failing the whole page.
func (a *GenericAdapter) parseResults(pageHTML string) ([]models.SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	table := doc.Find(a.profile.ResultsSelector)
	if table.Length() == 0 {
		// No results table rendered at all is an empty result set, not an
		// error; portals omit the table when nothing matched.
		return nil, nil
	}

	var results []models.SearchResult
	table.Find("tbody tr, tr").Each(func(_ int, row *goquery.Selection) {
		if row.Find("th").Length() > 0 {
			return // header row
		}

		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}

		result := models.SearchResult{
			InstrumentNumber: cellText(cells, 0),
			DocumentType:     classifyDocumentType(cellText(cells, 1)),
			Grantor:          splitNames(cellText(cells, 3)),
			Grantee:          splitNames(cellText(cells, 4)),
			Description:      cellText(cells, 1),
		}
		if result.InstrumentNumber == "" {
			return
		}

		if date, err := time.Parse(a.profile.DateFormat, cellText(cells, 2)); err == nil {
			result.RecordingDate = &date
		}

		if href, ok := row.Find("a[href]").First().Attr("href"); ok {
			result.DownloadURL = a.resolveURL(href)
		}

		results = append(results, result)
	})

	return results, nil
}

func cellText(cells *goquery.Selection, i int) string {
	if i >= cells.Length() {
		return ""
	}
	return strings.TrimSpace(cells.Eq(i).Text())
}

// splitNames breaks a combined party cell into individual names. Portals
// separate multiple grantors with semicolons or line breaks.
func splitNames(text string) []string {
	if text == "" {
		return nil
	}
	var names []string
	for _, part := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ';' || r == '\n'
	}) {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// resolveURL makes a row link absolute against the site base URL.
func (a *GenericAdapter) resolveURL(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	base, err := url.Parse(a.profile.BaseURL)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// classifyDocumentType maps the free-text type column onto the closed
// instrument taxonomy.
func classifyDocumentType(text string) models.DocumentType {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "deed of trust"):
		return models.DocTypeDeedOfTrust
	case strings.Contains(t, "deed"):
		return models.DocTypeDeed
	case strings.Contains(t, "mortgage"):
		return models.DocTypeMortgage
	case strings.Contains(t, "lis pendens"):
		return models.DocTypeLisPendens
	case strings.Contains(t, "lien"):
		return models.DocTypeLien
	case strings.Contains(t, "release"), strings.Contains(t, "satisfaction"), strings.Contains(t, "reconveyance"):
		return models.DocTypeRelease
	case strings.Contains(t, "easement"):
		return models.DocTypeEasement
	case strings.Contains(t, "judgment"), strings.Contains(t, "judgement"):
		return models.DocTypeJudgment
	case strings.Contains(t, "plat"), strings.Contains(t, "survey"):
		return models.DocTypePlat
	case t == "":
		return models.DocTypeUnclassified
	default:
		return models.DocTypeOther
	}
}
