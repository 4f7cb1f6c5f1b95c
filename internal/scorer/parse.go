package scorer

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-pipeline/internal/model"
)

// ParseScoring extracts a ScoringResult from raw classifier output. Models
// sometimes wrap the JSON in markdown fences or lead with prose, so the
// parser slices out the outermost object before unmarshalling.
func ParseScoring(raw string) (*model.ScoringResult, error) {
	body := extractJSONObject(raw)
	if body == "" {
		return nil, eris.New("scorer: no JSON object in classifier output")
	}

	var res model.ScoringResult
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return nil, eris.Wrap(err, "scorer: unmarshal classifier output")
	}
	return &res, nil
}

// extractJSONObject returns the substring from the first '{' to the matching
// final '}', stripping code fences first.
func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// Validate checks a parsed ScoringResult against the persistence contract.
// A validation error triggers a retry with a fresh classifier call.
func Validate(res *model.ScoringResult) error {
	if res == nil {
		return eris.New("scorer: nil result")
	}
	if !model.ValidOwnershipType(string(res.OwnershipType)) {
		return eris.Errorf("scorer: invalid ownership_type %q", res.OwnershipType)
	}
	if strings.TrimSpace(res.Rationale) == "" {
		return eris.New("scorer: empty rationale")
	}
	if res.IsExcluded && strings.TrimSpace(res.ExclusionReason) == "" {
		return eris.New("scorer: excluded without exclusion_reason")
	}
	return nil
}

// Clamp forces both scores into [0,100] and normalizes incidental fields.
// Out-of-range scores are clamped, not rejected.
func Clamp(res *model.ScoringResult) {
	res.BusinessQualityScore = clamp01(res.BusinessQualityScore)
	res.SellLikelihoodScore = clamp01(res.SellLikelihoodScore)

	if res.OwnerName != nil && strings.TrimSpace(*res.OwnerName) == "" {
		res.OwnerName = nil
	}
	if res.Evidence == nil {
		res.Evidence = []model.Evidence{}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
