package model

// WebsiteQuality is a coarse tier for how polished a lead's website looks.
type WebsiteQuality string

const (
	QualityNone         WebsiteQuality = "none"
	QualityBasic        WebsiteQuality = "basic"
	QualityProfessional WebsiteQuality = "professional"
	QualityPremium      WebsiteQuality = "premium"
)

// Quote is a notable passage pulled from a scraped page.
type Quote struct {
	Text      string `json:"text"`
	SourceURL string `json:"source_url"`
}

// ExtractionResult holds the structured signals pulled from a lead's website.
// It is always fully populated: every slice is non-nil and every field carries
// its documented default even when the scrape produced no data, so downstream
// scoring never branches on a missing field.
type ExtractionResult struct {
	OwnerNames        []string       `json:"owner_names"`
	TeamSize          int            `json:"team_size"`
	TeamNames         []string       `json:"team_names"`
	YearsInBusiness   int            `json:"years_in_business"`
	FoundedYear       int            `json:"founded_year"`
	Services          []string       `json:"services"`
	ServesCommercial  bool           `json:"serves_commercial"`
	CommercialClients []string       `json:"commercial_clients"`
	Certifications    []string       `json:"certifications"`
	LocationCount     int            `json:"location_count"`
	PricingSignals    []string       `json:"pricing_signals"`
	CopyrightYear     int            `json:"copyright_year"`
	WebsiteQuality    WebsiteQuality `json:"website_quality"`
	RedFlags          []string       `json:"red_flags"`
	TestimonialCount  int            `json:"testimonial_count"`
	RecurringRevenue  []string       `json:"recurring_revenue_signals"`
	Quotes            []Quote        `json:"quotes"`

	SourceURL   string `json:"source_url,omitempty"`
	RenderedVia string `json:"rendered_via,omitempty"` // "http" or "headless"
	ScrapeError string `json:"scrape_error,omitempty"`
}

// NewExtraction returns an ExtractionResult with every field at its default:
// all slices empty but non-nil, quality "none". Extraction rules fill it in.
func NewExtraction() *ExtractionResult {
	return &ExtractionResult{
		OwnerNames:        []string{},
		TeamNames:         []string{},
		Services:          []string{},
		CommercialClients: []string{},
		Certifications:    []string{},
		PricingSignals:    []string{},
		WebsiteQuality:    QualityNone,
		RedFlags:          []string{},
		RecurringRevenue:  []string{},
		Quotes:            []Quote{},
	}
}

// EmptyExtraction returns the documented empty-default ExtractionResult for a
// lead whose scrape produced no usable data: the defaults plus one red flag
// recording the reason.
func EmptyExtraction(reason string) *ExtractionResult {
	res := NewExtraction()
	res.RedFlags = []string{"no website data available: " + reason}
	res.ScrapeError = reason
	return res
}
