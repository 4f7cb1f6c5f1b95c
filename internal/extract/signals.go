package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/lead-pipeline/internal/model"
)

// scanKeywords returns the curated keywords present in the text, preserving
// the vocabulary's order, plus the first surrounding snippet.
func scanKeywords(text string, vocabulary []string) ([]string, string) {
	lower := strings.ToLower(text)
	found := []string{}
	snippet := ""
	for _, kw := range vocabulary {
		idx := strings.Index(lower, kw)
		if idx < 0 {
			continue
		}
		found = append(found, kw)
		if snippet == "" {
			end := min(idx+len(kw)+30, len(text))
			snippet = strings.TrimSpace(text[idx:end])
		}
	}
	return found, snippet
}

func servicesRule(text string, res *model.ExtractionResult) (string, bool) {
	services, snippet := scanKeywords(text, keywords.Services)
	if len(services) == 0 {
		return "", false
	}
	res.Services = services
	return snippet, true
}

func certificationsRule(text string, res *model.ExtractionResult) (string, bool) {
	certs, snippet := scanKeywords(text, keywords.Certifications)
	if len(certs) == 0 {
		return "", false
	}
	res.Certifications = certs
	return snippet, true
}

func pricingRule(text string, res *model.ExtractionResult) (string, bool) {
	signals, snippet := scanKeywords(text, keywords.PricingSignals)
	if len(signals) == 0 {
		return "", false
	}
	res.PricingSignals = signals
	return snippet, true
}

func recurringRevenueRule(text string, res *model.ExtractionResult) (string, bool) {
	signals, snippet := scanKeywords(text, keywords.RecurringRevenue)
	if len(signals) == 0 {
		return "", false
	}
	res.RecurringRevenue = signals
	return snippet, true
}

var (
	commercialRe      = regexp.MustCompile(`(?i)commercial\s+(?:and\s+residential|&\s+residential|clients|customers|services|properties|accounts)`)
	clientsIncludeRe  = regexp.MustCompile(`(?i)(?:clients\s+include|trusted\s+by|proud\s+to\s+serve)[:\s]+([^.\n]{5,150})`)
	clientSeparatorRe = regexp.MustCompile(`\s*(?:,|\band\b|&)\s*`)
)

func commercialRule(text string, res *model.ExtractionResult) (string, bool) {
	m := commercialRe.FindString(text)
	if m == "" {
		return "", false
	}
	res.ServesCommercial = true

	if cm := clientsIncludeRe.FindStringSubmatch(text); cm != nil {
		for _, part := range clientSeparatorRe.Split(cm[1], -1) {
			part = strings.TrimSpace(part)
			if len(part) >= 3 && len(res.CommercialClients) < 10 {
				res.CommercialClients = append(res.CommercialClients, part)
			}
		}
	}
	return m, true
}

var locationsRe = regexp.MustCompile(`(?i)(\d{1,3})\s+(?:locations|offices|branches|showrooms)`)

func locationsRule(text string, res *model.ExtractionResult) (string, bool) {
	if m := locationsRe.FindStringSubmatch(text); m != nil {
		if n, _ := strconv.Atoi(m[1]); n > 0 && n < 1000 {
			res.LocationCount = n
			return m[0], true
		}
	}
	return "", false
}

var testimonialMarkerRe = regexp.MustCompile(`(?i)★{3,5}|⭐{3,5}|5[\s-]star|\btestimonial`)

func testimonialsRule(text string, res *model.ExtractionResult) (string, bool) {
	matches := testimonialMarkerRe.FindAllString(text, -1)
	quoted := quoteRe.FindAllString(text, -1)
	res.TestimonialCount = len(matches) + len(quoted)
	if res.TestimonialCount == 0 {
		return "", false
	}
	snippet := ""
	if len(matches) > 0 {
		snippet = matches[0]
	} else {
		snippet = quoted[0]
	}
	return snippet, true
}

// quoteRe matches quoted passages long enough to be a testimonial or slogan
// rather than punctuation noise.
var quoteRe = regexp.MustCompile(`[“"]([^”"]{25,240})[”"]`)

func quotesRule(text string, res *model.ExtractionResult) (string, bool) {
	for _, m := range quoteRe.FindAllStringSubmatch(text, -1) {
		res.Quotes = append(res.Quotes, model.Quote{Text: strings.TrimSpace(m[1])})
		if len(res.Quotes) >= 5 {
			break
		}
	}
	if len(res.Quotes) == 0 {
		return "", false
	}
	return res.Quotes[0].Text, true
}

func redFlagsRule(now time.Time) func(string, *model.ExtractionResult) (string, bool) {
	return func(text string, res *model.ExtractionResult) (string, bool) {
		flags, snippet := scanKeywords(text, keywords.RedFlags)
		res.RedFlags = append(res.RedFlags, flags...)

		if res.CopyrightYear != 0 && res.CopyrightYear < now.Year()-3 {
			res.RedFlags = append(res.RedFlags,
				"stale copyright year: "+strconv.Itoa(res.CopyrightYear))
		}

		if len(res.RedFlags) == 0 {
			return "", false
		}
		if snippet == "" {
			snippet = res.RedFlags[0]
		}
		return snippet, true
	}
}

// websiteQualityRule runs last: it grades the site on how much signal the
// other rules found plus raw content volume.
func websiteQualityRule(text string, res *model.ExtractionResult) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		res.WebsiteQuality = model.QualityNone
		return "", false
	}

	signals := 0
	if len(res.Services) > 0 {
		signals++
	}
	if len(res.Certifications) > 0 {
		signals++
	}
	if res.TestimonialCount > 0 {
		signals++
	}
	if len(res.OwnerNames) > 0 || res.TeamSize > 0 {
		signals++
	}
	if len(res.PricingSignals) > 0 {
		signals++
	}

	switch {
	case len(trimmed) >= 4000 && signals >= 4:
		res.WebsiteQuality = model.QualityPremium
	case len(trimmed) >= 1500 && signals >= 2:
		res.WebsiteQuality = model.QualityProfessional
	default:
		res.WebsiteQuality = model.QualityBasic
	}
	return "", true
}
