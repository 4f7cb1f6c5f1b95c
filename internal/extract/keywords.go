package extract

import (
	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var keywordsYAML []byte

// keywordSet holds the curated signal vocabularies the rules scan for.
type keywordSet struct {
	Services         []string `yaml:"services"`
	Certifications   []string `yaml:"certifications"`
	PricingSignals   []string `yaml:"pricing_signals"`
	RecurringRevenue []string `yaml:"recurring_revenue"`
	RedFlags         []string `yaml:"red_flags"`
}

var keywords = func() keywordSet {
	var ks keywordSet
	if err := yaml.Unmarshal(keywordsYAML, &ks); err != nil {
		panic("extract: bad embedded keywords.yaml: " + err.Error())
	}
	return ks
}()
