package scrapers

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/DataisKing1/title-search-app-sub000/internal/common"
	"github.com/DataisKing1/title-search-app-sub000/internal/interfaces"
	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

// SiteProfile describes one county recorder site well enough for the
// generic adapter to drive it: URLs, form selectors, and date format.
type SiteProfile struct {
	County    string
	BaseURL   string
	SearchURL string

	NameInputSelector       string
	ParcelInputSelector     string
	InstrumentInputSelector string
	DateFromSelector        string
	DateToSelector          string
	SubmitSelector          string
	ResultsSelector         string

	DateFormat string
}

// DefaultProfile returns the selector conventions most recorder portals
// follow. Counties that deviate register their own profile.
func DefaultProfile(county string) SiteProfile {
	return SiteProfile{
		County:                  county,
		BaseURL:                 fmt.Sprintf("https://recorder.%s.gov", county),
		SearchURL:               fmt.Sprintf("https://recorder.%s.gov/search", county),
		NameInputSelector:       `input[name="name"]`,
		ParcelInputSelector:     `input[name="parcel"]`,
		InstrumentInputSelector: `input[name="instrument"]`,
		DateFromSelector:        `input[name="date_from"]`,
		DateToSelector:          `input[name="date_to"]`,
		SubmitSelector:          `button[type="submit"]`,
		ResultsSelector:         `table.search-results`,
		DateFormat:              "01/02/2006",
	}
}

// GenericAdapter drives a county recorder site through a pooled browser
// session. All requests against the site go through one rate limiter so
// concurrent searches cannot hammer it.
type GenericAdapter struct {
	profile SiteProfile
	limiter *rate.Limiter
	logger  arbor.ILogger

	requestTimeout  time.Duration
	downloadTimeout time.Duration
}

// NewGenericAdapter creates an adapter for the given site profile.
func NewGenericAdapter(profile SiteProfile, cfg common.ScraperConfig, logger arbor.ILogger) *GenericAdapter {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 12
	}
	requestTimeout := 60 * time.Second
	if d, err := time.ParseDuration(cfg.RequestTimeout); err == nil && d > 0 {
		requestTimeout = d
	}
	downloadTimeout := 60 * time.Second
	if d, err := time.ParseDuration(cfg.DownloadTimeout); err == nil && d > 0 {
		downloadTimeout = d
	}

	return &GenericAdapter{
		profile:         profile,
		limiter:         rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		logger:          logger,
		requestTimeout:  requestTimeout,
		downloadTimeout: downloadTimeout,
	}
}

// Initialize navigates to the search page and waits for the form.
func (a *GenericAdapter) Initialize(ctx context.Context, session interfaces.BrowserSession) (bool, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return false, err
	}

	runCtx, cancel := context.WithTimeout(session.Context(), a.requestTimeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(a.profile.SearchURL),
		chromedp.WaitVisible(a.profile.SubmitSelector, chromedp.ByQuery),
	)
	if err != nil {
		a.logger.Warn().
			Err(err).
			Str("county", a.profile.County).
			Str("url", a.profile.SearchURL).
			Msg("Failed to initialize recorder site")
		return false, fmt.Errorf("initialize %s recorder site: %w", a.profile.County, err)
	}
	return true, nil
}

// SearchByName runs a grantor/grantee name search over the date range.
func (a *GenericAdapter) SearchByName(ctx context.Context, session interfaces.BrowserSession, name string, dateRange interfaces.DateRange) ([]models.SearchResult, error) {
	return a.runSearch(ctx, session, "name", name,
		chromedp.SendKeys(a.profile.NameInputSelector, name, chromedp.ByQuery),
		chromedp.SendKeys(a.profile.DateFromSelector, dateRange.From.Format(a.profile.DateFormat), chromedp.ByQuery),
		chromedp.SendKeys(a.profile.DateToSelector, dateRange.To.Format(a.profile.DateFormat), chromedp.ByQuery),
	)
}

// SearchByParcel runs a parcel number search over the date range.
func (a *GenericAdapter) SearchByParcel(ctx context.Context, session interfaces.BrowserSession, parcel string, dateRange interfaces.DateRange) ([]models.SearchResult, error) {
	return a.runSearch(ctx, session, "parcel", parcel,
		chromedp.SendKeys(a.profile.ParcelInputSelector, parcel, chromedp.ByQuery),
		chromedp.SendKeys(a.profile.DateFromSelector, dateRange.From.Format(a.profile.DateFormat), chromedp.ByQuery),
		chromedp.SendKeys(a.profile.DateToSelector, dateRange.To.Format(a.profile.DateFormat), chromedp.ByQuery),
	)
}

// SearchByInstrument looks up a single recorded instrument by number.
func (a *GenericAdapter) SearchByInstrument(ctx context.Context, session interfaces.BrowserSession, instrument string) ([]models.SearchResult, error) {
	return a.runSearch(ctx, session, "instrument", instrument,
		chromedp.SendKeys(a.profile.InstrumentInputSelector, instrument, chromedp.ByQuery),
	)
}

// runSearch fills the form, submits, and parses the results table out of
// the rendered page.
func (a *GenericAdapter) runSearch(ctx context.Context, session interfaces.BrowserSession, kind, term string, fill ...chromedp.Action) ([]models.SearchResult, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(session.Context(), a.requestTimeout)
	defer cancel()

	actions := []chromedp.Action{
		chromedp.Navigate(a.profile.SearchURL),
		chromedp.WaitVisible(a.profile.SubmitSelector, chromedp.ByQuery),
	}
	actions = append(actions, fill...)

	var pageHTML string
	actions = append(actions,
		chromedp.Click(a.profile.SubmitSelector, chromedp.ByQuery),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &pageHTML, chromedp.ByQuery),
	)

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return nil, fmt.Errorf("%s search on %s recorder site: %w", kind, a.profile.County, err)
	}

	results, err := a.parseResults(pageHTML)
	if err != nil {
		return nil, err
	}

	a.logger.Info().
		Str("county", a.profile.County).
		Str("search_type", kind).
		Str("term", term).
		Int("results", len(results)).
		Msg("Recorder search completed")
	return results, nil
}
