package model

// OwnershipType classifies who controls the business.
type OwnershipType string

const (
	OwnerOperated OwnershipType = "owner_operated"
	Partnership   OwnershipType = "partnership"
	FamilyOwned   OwnershipType = "family_owned"
	Corporate     OwnershipType = "corporate"
	Franchise     OwnershipType = "franchise"
	PrivateEquity OwnershipType = "private_equity"
	Absentee      OwnershipType = "absentee"
	OwnerUnknown  OwnershipType = "unknown"
)

// ValidOwnershipType reports whether s is one of the fixed enum values.
func ValidOwnershipType(s string) bool {
	switch OwnershipType(s) {
	case OwnerOperated, Partnership, FamilyOwned, Corporate,
		Franchise, PrivateEquity, Absentee, OwnerUnknown:
		return true
	}
	return false
}

// Evidence is a url+snippet pair supporting a scoring judgement.
type Evidence struct {
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// ScoringResult is the classifier's judgement of a lead's acquisition
// attractiveness. Scores are clamped into [0,100] before persistence.
type ScoringResult struct {
	OwnerName            *string       `json:"owner_name"`
	OwnershipType        OwnershipType `json:"ownership_type"`
	IsExcluded           bool          `json:"is_excluded"`
	ExclusionReason      string        `json:"exclusion_reason,omitempty"`
	BusinessQualityScore float64       `json:"business_quality_score"`
	SellLikelihoodScore  float64       `json:"sell_likelihood_score"`
	Rationale            string        `json:"rationale"`
	Evidence             []Evidence    `json:"evidence"`
}
