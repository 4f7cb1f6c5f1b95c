package extract

import (
	"regexp"
	"strconv"
	"time"

	"github.com/sells-group/lead-pipeline/internal/model"
)

var (
	foundedInRe   = regexp.MustCompile(`(?i)(?:founded|established|est\.?)\s+(?:in\s+)?(\d{4})`)
	yearsInBizRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d{1,3})\s*\+?\s*years\s+in\s+(?:the\s+)?business`),
		regexp.MustCompile(`(?i)(\d{1,3})\s*\+?\s*years\s+of\s+(?:experience|service|excellence)`),
		regexp.MustCompile(`(?i)serving\D{0,40}?(\d{1,3})\s*\+?\s*years`),
	}
	anniversaryRe = regexp.MustCompile(`(?i)(\d{1,3})(?:st|nd|rd|th)\s+anniversary`)
	sinceYearRe   = regexp.MustCompile(`(?i)(?:family[\s-]owned\D{0,40}?|owned\s+and\s+operated\D{0,40}?)since\s+(\d{4})`)
	copyrightRe   = regexp.MustCompile(`(?i)(?:©|&copy;|copyright)\s*(?:\d{4}\s*[-–]\s*)?(\d{4})`)
)

// ExtractFoundedYear tries the founded-year patterns in order and returns the
// derived year plus the matched snippet. Patterns whose year falls outside
// [1800, currentYear] (or tenure outside (0, 200)) are rejected and the next
// pattern is tried. Returns ok=false when nothing matches.
func ExtractFoundedYear(text string, now time.Time) (int, string, bool) {
	currentYear := now.Year()

	// "founded in YYYY" / "established YYYY"
	if m := foundedInRe.FindStringSubmatch(text); m != nil {
		if year, _ := strconv.Atoi(m[1]); year >= 1800 && year <= currentYear {
			return year, m[0], true
		}
	}

	// "N years in business" / "serving ... for N years"
	for _, re := range yearsInBizRes {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if n, _ := strconv.Atoi(m[1]); n > 0 && n < 200 {
			return currentYear - n, m[0], true
		}
	}

	// "Nth anniversary"
	if m := anniversaryRe.FindStringSubmatch(text); m != nil {
		if n, _ := strconv.Atoi(m[1]); n > 0 && n < 200 {
			return currentYear - n, m[0], true
		}
	}

	// "family owned ... since YYYY"
	if m := sinceYearRe.FindStringSubmatch(text); m != nil {
		if year, _ := strconv.Atoi(m[1]); year >= 1800 && year <= currentYear {
			return year, m[0], true
		}
	}

	return 0, "", false
}

func foundedYearRule(now time.Time) func(string, *model.ExtractionResult) (string, bool) {
	return func(text string, res *model.ExtractionResult) (string, bool) {
		year, snippet, ok := ExtractFoundedYear(text, now)
		if !ok {
			return "", false
		}
		res.FoundedYear = year
		res.YearsInBusiness = now.Year() - year
		return snippet, true
	}
}

// ExtractCopyrightYear returns the latest plausible copyright year in the
// text, typically from the footer.
func ExtractCopyrightYear(text string, now time.Time) (int, string, bool) {
	currentYear := now.Year()
	best := 0
	snippet := ""
	for _, m := range copyrightRe.FindAllStringSubmatch(text, -1) {
		year, _ := strconv.Atoi(m[1])
		if year >= 1990 && year <= currentYear && year > best {
			best = year
			snippet = m[0]
		}
	}
	return best, snippet, best != 0
}

func copyrightYearRule(now time.Time) func(string, *model.ExtractionResult) (string, bool) {
	return func(text string, res *model.ExtractionResult) (string, bool) {
		year, snippet, ok := ExtractCopyrightYear(text, now)
		if !ok {
			return "", false
		}
		res.CopyrightYear = year
		return snippet, true
	}
}
