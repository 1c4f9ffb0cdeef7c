package scrapers

// builtinProfiles covers the Arizona counties the generic adapter can
// drive with selectors alone. Counties whose portals need custom flow
// control get a dedicated factory instead.
var builtinProfiles = []SiteProfile{
	{
		County:                  "maricopa",
		BaseURL:                 "https://recorder.maricopa.gov",
		SearchURL:               "https://recorder.maricopa.gov/recdocdata/",
		NameInputSelector:       `input[name="name"]`,
		ParcelInputSelector:     `input[name="parcel"]`,
		InstrumentInputSelector: `input[name="recording_number"]`,
		DateFromSelector:        `input[name="date_from"]`,
		DateToSelector:          `input[name="date_to"]`,
		SubmitSelector:          `button[type="submit"]`,
		ResultsSelector:         `table.search-results`,
		DateFormat:              "01/02/2006",
	},
	{
		County:                  "pima",
		BaseURL:                 "https://www.recorder.pima.gov",
		SearchURL:               "https://www.recorder.pima.gov/PublicSearch",
		NameInputSelector:       `input[name="searchName"]`,
		ParcelInputSelector:     `input[name="parcelNumber"]`,
		InstrumentInputSelector: `input[name="docketNumber"]`,
		DateFromSelector:        `input[name="beginDate"]`,
		DateToSelector:          `input[name="endDate"]`,
		SubmitSelector:          `input[type="submit"]`,
		ResultsSelector:         `table#searchResults`,
		DateFormat:              "01/02/2006",
	},
	{
		County:                  "pinal",
		BaseURL:                 "https://recorder.pinal.gov",
		SearchURL:               "https://recorder.pinal.gov/DocumentSearch",
		NameInputSelector:       `input[name="name"]`,
		ParcelInputSelector:     `input[name="parcel"]`,
		InstrumentInputSelector: `input[name="instrument"]`,
		DateFromSelector:        `input[name="date_from"]`,
		DateToSelector:          `input[name="date_to"]`,
		SubmitSelector:          `button[type="submit"]`,
		ResultsSelector:         `table.results-grid`,
		DateFormat:              "01/02/2006",
	},
}

// RegisterBuiltins installs the shipped county profiles.
func RegisterBuiltins(r *Registry) {
	for _, profile := range builtinProfiles {
		r.RegisterProfile(profile.County, profile)
	}
}
