package scrapers

import (
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/DataisKing1/title-search-app-sub000/internal/common"
	"github.com/DataisKing1/title-search-app-sub000/internal/interfaces"
)

// AdapterFactory builds a scraping adapter for one county site.
type AdapterFactory func(cfg common.ScraperConfig, logger arbor.ILogger) interfaces.ScrapingAdapter

// Registry maps county keys to adapter factories. Counties without a
// dedicated adapter fall back to the generic recorder-site adapter.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]AdapterFactory
	profiles  map[string]SiteProfile
	cfg       common.ScraperConfig
	logger    arbor.ILogger
}

// NewRegistry creates an adapter registry.
func NewRegistry(cfg common.ScraperConfig, logger arbor.ILogger) *Registry {
	return &Registry{
		factories: make(map[string]AdapterFactory),
		profiles:  make(map[string]SiteProfile),
		cfg:       cfg,
		logger:    logger,
	}
}

// Register installs a dedicated adapter factory for a county.
func (r *Registry) Register(county string, factory AdapterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[normalizeCounty(county)] = factory
}

// RegisterProfile installs a site profile for the generic adapter, used
// when a county needs no custom code beyond selectors and URLs.
func (r *Registry) RegisterProfile(county string, profile SiteProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[normalizeCounty(county)] = profile
}

// ForCounty returns the adapter for a county: dedicated factory first,
// then a generic adapter with the county's registered profile, then a
// generic adapter with the default profile.
func (r *Registry) ForCounty(county string) interfaces.ScrapingAdapter {
	key := normalizeCounty(county)

	r.mu.RLock()
	factory, hasFactory := r.factories[key]
	profile, hasProfile := r.profiles[key]
	r.mu.RUnlock()

	if hasFactory {
		return factory(r.cfg, r.logger)
	}
	if !hasProfile {
		r.logger.Debug().
			Str("county", county).
			Msg("No dedicated adapter or profile, using generic defaults")
		profile = DefaultProfile(key)
	}
	return NewGenericAdapter(profile, r.cfg, r.logger)
}

// Counties lists every county with a dedicated factory or profile.
func (r *Registry) Counties() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var counties []string
	for county := range r.factories {
		if !seen[county] {
			seen[county] = true
			counties = append(counties, county)
		}
	}
	for county := range r.profiles {
		if !seen[county] {
			seen[county] = true
			counties = append(counties, county)
		}
	}
	return counties
}

func normalizeCounty(county string) string {
	return strings.ToLower(strings.TrimSpace(county))
}
