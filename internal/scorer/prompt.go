// Package scorer assembles classifier prompts, parses the model's JSON
// verdicts, and validates them before persistence.
package scorer

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/stats"
)

// systemPrompt is the scoring rubric. It is identical for every lead in a
// run, so the orchestrator sends it as a cached system block.
const systemPrompt = `You are an acquisition analyst evaluating small service businesses as
acquisition targets. For each lead you receive structured signals extracted
from the business's website plus percentile statistics for its market segment.

Respond with a single JSON object and nothing else:

{
  "owner_name": "string or null",
  "ownership_type": "owner_operated|partnership|family_owned|corporate|franchise|private_equity|absentee|unknown",
  "is_excluded": false,
  "exclusion_reason": "",
  "business_quality_score": 0-100,
  "sell_likelihood_score": 0-100,
  "rationale": "2-4 sentences explaining both scores",
  "evidence": [{"url": "...", "snippet": "..."}]
}

Scoring guidance:
- business_quality_score: weigh tenure, team size, certifications, commercial
  mix, recurring revenue signals, and the lead's review count relative to the
  segment percentiles.
- sell_likelihood_score: weigh owner age signals, long tenure, stale website,
  red flags, and absence of succession signals.
- Set is_excluded=true with a reason only for franchises, private equity
  holdings, or businesses that are clearly not independently owned.
- When the extraction carries a scrape_error, score conservatively from the
  remaining signals and say so in the rationale.`

// promptPayload is the user-message body: everything the classifier sees
// about one lead.
type promptPayload struct {
	Lead       leadSummary             `json:"lead"`
	Extraction *model.ExtractionResult `json:"extraction"`
	Market     stats.MarketStats       `json:"market"`
}

type leadSummary struct {
	Name        string  `json:"name"`
	Segment     string  `json:"segment"`
	ReviewCount int     `json:"review_count"`
	Rating      float64 `json:"rating"`
}

// SystemPrompt returns the shared rubric text.
func SystemPrompt() string {
	return systemPrompt
}

// BuildUserPrompt serializes one lead's scoring context into the user
// message body.
func BuildUserPrompt(lead model.Lead, ext *model.ExtractionResult, market stats.MarketStats) (string, error) {
	payload := promptPayload{
		Lead: leadSummary{
			Name:        lead.Name,
			Segment:     lead.Segment,
			ReviewCount: lead.ReviewCount,
			Rating:      lead.Rating,
		},
		Extraction: ext,
		Market:     market,
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", eris.Wrap(err, "scorer: marshal prompt payload")
	}
	return string(b), nil
}
