package scrapers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/DataisKing1/title-search-app-sub000/internal/common"
	"github.com/DataisKing1/title-search-app-sub000/internal/interfaces"
	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

func testAdapter(t *testing.T) *GenericAdapter {
	t.Helper()
	return NewGenericAdapter(DefaultProfile("maricopa"), common.ScraperConfig{RequestsPerMinute: 600}, common.GetLogger())
}

const resultsPage = `
<html><body>
<table class="search-results">
  <tr><th>Instrument</th><th>Type</th><th>Date</th><th>Grantor</th><th>Grantee</th></tr>
  <tr>
    <td>2024-0012345</td>
    <td>Warranty Deed</td>
    <td>03/15/2024</td>
    <td>SMITH, JOHN; SMITH, JANE</td>
    <td>DOE, ROBERT</td>
    <td><a href="/documents/2024-0012345.pdf">View</a></td>
  </tr>
  <tr>
    <td>2024-0012399</td>
    <td>Deed of Trust</td>
    <td>04/02/2024</td>
    <td>DOE, ROBERT</td>
    <td>FIRST NATIONAL BANK</td>
    <td><a href="https://images.example.gov/2024-0012399.pdf">View</a></td>
  </tr>
  <tr>
    <td></td><td>corrupt row</td><td>bad</td>
  </tr>
</table>
</body></html>`

func TestParseResults(t *testing.T) {
	a := testAdapter(t)

	results, err := a.parseResults(resultsPage)
	require.NoError(t, err)
	require.Len(t, results, 2, "rows without an instrument number are skipped")

	first := results[0]
	assert.Equal(t, "2024-0012345", first.InstrumentNumber)
	assert.Equal(t, models.DocTypeDeed, first.DocumentType)
	assert.Equal(t, []string{"SMITH, JOHN", "SMITH, JANE"}, first.Grantor)
	assert.Equal(t, []string{"DOE, ROBERT"}, first.Grantee)
	require.NotNil(t, first.RecordingDate)
	assert.Equal(t, 2024, first.RecordingDate.Year())
	assert.Equal(t, "https://recorder.maricopa.gov/documents/2024-0012345.pdf", first.DownloadURL,
		"relative links resolve against the site base")

	second := results[1]
	assert.Equal(t, models.DocTypeDeedOfTrust, second.DocumentType)
	assert.Equal(t, "https://images.example.gov/2024-0012399.pdf", second.DownloadURL,
		"absolute links pass through")
}

func TestParseResults_NoTableMeansNoHits(t *testing.T) {
	a := testAdapter(t)

	results, err := a.parseResults(`<html><body><p>No records matched your search.</p></body></html>`)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClassifyDocumentType(t *testing.T) {
	tests := []struct {
		text string
		want models.DocumentType
	}{
		{"Warranty Deed", models.DocTypeDeed},
		{"DEED OF TRUST", models.DocTypeDeedOfTrust},
		{"Mortgage", models.DocTypeMortgage},
		{"Federal Tax Lien", models.DocTypeLien},
		{"Lis Pendens", models.DocTypeLisPendens},
		{"Release of Lien", models.DocTypeRelease},
		{"Full Reconveyance", models.DocTypeRelease},
		{"Utility Easement", models.DocTypeEasement},
		{"Judgment", models.DocTypeJudgment},
		{"Plat Map", models.DocTypePlat},
		{"Affidavit of Value", models.DocTypeOther},
		{"", models.DocTypeUnclassified},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyDocumentType(tt.text), "text %q", tt.text)
	}
}

func TestSplitNames(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, splitNames("A; B"))
	assert.Equal(t, []string{"SMITH, JOHN"}, splitNames("  SMITH, JOHN "))
	assert.Nil(t, splitNames(""))
	assert.Nil(t, splitNames(" ; "))
}

func TestRegistry_FallsBackToGeneric(t *testing.T) {
	r := NewRegistry(common.ScraperConfig{}, common.GetLogger())

	adapter := r.ForCounty("Unknown County")
	require.NotNil(t, adapter)
	generic, ok := adapter.(*GenericAdapter)
	require.True(t, ok)
	assert.Equal(t, "unknown county", generic.profile.County)
}

func TestRegistry_ProfileOverridesDefaults(t *testing.T) {
	r := NewRegistry(common.ScraperConfig{}, common.GetLogger())
	r.RegisterProfile("Pima", SiteProfile{
		County:          "pima",
		BaseURL:         "https://www.recorder.pima.gov",
		SearchURL:       "https://www.recorder.pima.gov/public/search",
		SubmitSelector:  `input[type="submit"]`,
		ResultsSelector: `#results table`,
		DateFormat:      "2006-01-02",
	})

	adapter := r.ForCounty("PIMA")
	generic, ok := adapter.(*GenericAdapter)
	require.True(t, ok)
	assert.Equal(t, "https://www.recorder.pima.gov/public/search", generic.profile.SearchURL)
}

func TestRegistry_DedicatedFactoryWins(t *testing.T) {
	r := NewRegistry(common.ScraperConfig{}, common.GetLogger())

	custom := &GenericAdapter{profile: SiteProfile{County: "custom"}}
	r.Register("maricopa", func(cfg common.ScraperConfig, logger arbor.ILogger) interfaces.ScrapingAdapter {
		return custom
	})

	assert.Same(t, custom, r.ForCounty("maricopa"))
	assert.Contains(t, r.Counties(), "maricopa")
}
