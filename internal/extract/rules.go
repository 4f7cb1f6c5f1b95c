// Package extract pulls structured business signals out of scraped page
// text using an ordered list of pure heuristic rules. Extraction is
// best-effort: unmatched fields keep their documented empty defaults.
package extract

import (
	"time"

	"github.com/sells-group/lead-pipeline/internal/model"
)

// Rule is a single heuristic field extractor. Rules are pure: they read the
// page text and, when they fire, write one field into res and report the
// snippet that matched.
type Rule struct {
	Name  string
	Apply func(text string, res *model.ExtractionResult) (snippet string, ok bool)
}

// Rules returns the ordered rule set. Order matters only for readability;
// each rule owns a distinct field, and within a rule its patterns are tried
// first-match-wins.
func Rules(now time.Time) []Rule {
	return []Rule{
		{Name: "founded_year", Apply: foundedYearRule(now)},
		{Name: "owner_names", Apply: ownerNamesRule},
		{Name: "team", Apply: teamRule},
		{Name: "services", Apply: servicesRule},
		{Name: "commercial", Apply: commercialRule},
		{Name: "certifications", Apply: certificationsRule},
		{Name: "locations", Apply: locationsRule},
		{Name: "pricing", Apply: pricingRule},
		{Name: "copyright_year", Apply: copyrightYearRule(now)},
		{Name: "testimonials", Apply: testimonialsRule},
		{Name: "recurring_revenue", Apply: recurringRevenueRule},
		{Name: "quotes", Apply: quotesRule},
		{Name: "red_flags", Apply: redFlagsRule(now)},
		{Name: "website_quality", Apply: websiteQualityRule},
	}
}

// Apply runs every rule over the text and returns a fully populated
// ExtractionResult. Fields no rule matched keep their empty defaults.
func Apply(text, sourceURL string, now time.Time) *model.ExtractionResult {
	res := model.NewExtraction()
	res.SourceURL = sourceURL

	for _, rule := range Rules(now) {
		rule.Apply(text, res)
	}

	for i := range res.Quotes {
		res.Quotes[i].SourceURL = sourceURL
	}

	return res
}
