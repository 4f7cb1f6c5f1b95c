package extract

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/lead-pipeline/internal/model"
)

// personNamePat matches "Jane Smith", "Bob T. Jones", "Liam O'Brien Walsh".
// Case sensitivity is deliberate; the surrounding title words carry their own
// (?i:) group so lowercase prose never leaks into a name capture.
const personNamePat = `([A-Z][a-zA-Z'-]+(?:\s+[A-Z]\.)?(?:\s+[A-Z][a-zA-Z'-]+){1,2})`

var (
	// "Owner: Jane Smith" / "founder Bob T. Jones"
	titleThenNameRe = regexp.MustCompile(`\b(?i:owner|co-owner|founder|co-founder|president|proprietor)[:,]?\s+` + personNamePat)
	// "Jane Smith, owner" / "Bob Jones is the founder"
	nameThenTitleRe = regexp.MustCompile(personNamePat + `,?\s+(?i:is\s+(?:the\s+|our\s+)?)?(?i:owner|co-owner|founder|co-founder|proprietor)\b`)

	teamOfRe     = regexp.MustCompile(`(?i)team\s+of\s+(?:over\s+)?(\d{1,4})`)
	employeesRe  = regexp.MustCompile(`(?i)(\d{1,4})\s*\+?\s*(?:employees|technicians|team\s+members|staff\s+members)`)
	meetTheTeam  = regexp.MustCompile(`(?i)meet\s+(?:the|our)\s+team`)
	teamMemberRe = regexp.MustCompile(`\b(?i:technician|manager|estimator|foreman|dispatcher)[:,]?\s+` + personNamePat)
)

var nameCaser = cases.Title(language.AmericanEnglish)

// normalizeName canonicalizes an extracted person name so "JANE SMITH" and
// "jane smith" dedupe to one entry.
func normalizeName(raw string) string {
	return nameCaser.String(strings.ToLower(strings.TrimSpace(raw)))
}

// looksLikeName rejects captures that are obviously business phrasing rather
// than a person ("Owner Operated Business" and the like).
func looksLikeName(name string) bool {
	lower := strings.ToLower(name)
	for _, stop := range []string{"operated", "business", "company", "services", "family", "local", "your"} {
		if strings.Contains(lower, stop) {
			return false
		}
	}
	parts := strings.Fields(name)
	return len(parts) >= 2 && len(parts) <= 3
}

// ExtractOwnerNames pulls person names appearing next to ownership titles.
func ExtractOwnerNames(text string) ([]string, string) {
	seen := make(map[string]bool)
	var names []string
	var snippet string

	for _, re := range []*regexp.Regexp{titleThenNameRe, nameThenTitleRe} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			name := normalizeName(m[1])
			if !looksLikeName(name) || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
			if snippet == "" {
				snippet = m[0]
			}
			if len(names) >= 5 {
				return names, snippet
			}
		}
	}
	return names, snippet
}

func ownerNamesRule(text string, res *model.ExtractionResult) (string, bool) {
	names, snippet := ExtractOwnerNames(text)
	if len(names) == 0 {
		return "", false
	}
	res.OwnerNames = names
	return snippet, true
}

func teamRule(text string, res *model.ExtractionResult) (string, bool) {
	snippet := ""

	if m := teamOfRe.FindStringSubmatch(text); m != nil {
		if n, _ := strconv.Atoi(m[1]); n > 0 && n < 10000 {
			res.TeamSize = n
			snippet = m[0]
		}
	}
	if res.TeamSize == 0 {
		if m := employeesRe.FindStringSubmatch(text); m != nil {
			if n, _ := strconv.Atoi(m[1]); n > 0 && n < 10000 {
				res.TeamSize = n
				snippet = m[0]
			}
		}
	}

	seen := make(map[string]bool)
	for _, m := range teamMemberRe.FindAllStringSubmatch(text, -1) {
		name := normalizeName(m[1])
		if !looksLikeName(name) || seen[name] {
			continue
		}
		seen[name] = true
		res.TeamNames = append(res.TeamNames, name)
		if len(res.TeamNames) >= 10 {
			break
		}
	}

	if snippet == "" && len(res.TeamNames) == 0 {
		if m := meetTheTeam.FindString(text); m != "" {
			// A team page exists even if we could not count heads.
			return m, true
		}
		return "", false
	}
	return snippet, true
}
