package interfaces

import (
	"context"
	"time"

	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

// DateRange bounds a records search.
type DateRange struct {
	From time.Time
	To   time.Time
}

// BrowserSession is the per-invocation browser context handed to an
// adapter. Concretely a chromedp context; typed loosely so adapters can be
// tested without a running browser.
type BrowserSession interface {
	Context() context.Context
}

// ScrapingAdapter is the uniform search/download contract every county
// site implementation exposes. Site-specific HTML logic stays behind it.
type ScrapingAdapter interface {
	// Initialize navigates to the site and prepares the session for
	// searching. Returns false when the site cannot be reached or the
	// search form never appears.
	Initialize(ctx context.Context, session BrowserSession) (bool, error)

	SearchByName(ctx context.Context, session BrowserSession, name string, dateRange DateRange) ([]models.SearchResult, error)
	SearchByParcel(ctx context.Context, session BrowserSession, parcel string, dateRange DateRange) ([]models.SearchResult, error)
	SearchByInstrument(ctx context.Context, session BrowserSession, instrument string) ([]models.SearchResult, error)

	// DownloadDocument fetches one result into path. A nil result with a
	// nil error means the site offered no downloadable file for this hit.
	DownloadDocument(ctx context.Context, session BrowserSession, result models.SearchResult, path string) (*models.DownloadedDocument, error)

	CheckHealth(ctx context.Context) bool
}
