package scorer

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-pipeline/internal/config"
	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/resilience"
	"github.com/sells-group/lead-pipeline/internal/stats"
	"github.com/sells-group/lead-pipeline/pkg/anthropic"
)

// Classifier scores leads through the Anthropic API. One instance is shared
// across the scoring workers; the embedded limiter smooths request bursts to
// the provider's rate limit.
type Classifier struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
}

// NewClassifier builds a Classifier from config.
func NewClassifier(client anthropic.Client, anthCfg config.AnthropicConfig, scoreCfg config.ScoreConfig) *Classifier {
	rps := scoreCfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	return &Classifier{
		client:    client,
		model:     anthCfg.Model,
		maxTokens: anthCfg.MaxTokens,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Prime sends one request to warm the prompt cache for the shared rubric.
// Failures are logged and ignored; priming is an optimization, not a
// prerequisite.
func (c *Classifier) Prime(ctx context.Context) {
	if err := c.limiter.Wait(ctx); err != nil {
		return
	}
	resp, err := anthropic.PrimerRequest(ctx, c.client, anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: 16,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: "Acknowledge receipt of the rubric."}},
	})
	if err != nil {
		zap.L().Warn("classifier: primer request failed", zap.Error(err))
		return
	}
	resp.Usage.LogCost(c.model, "scoring_primer")
}

// Score runs one lead through the classifier and returns the validated,
// clamped verdict. All failures carry the classifier failure kind so the
// orchestrator's retry policy treats them uniformly.
func (c *Classifier) Score(ctx context.Context, lead model.Lead, ext *model.ExtractionResult, market stats.MarketStats) (*model.ScoringResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, resilience.NewFailure(resilience.FailureClassifier,
			eris.Wrap(err, "classifier: rate limit wait"))
	}

	userPrompt, err := BuildUserPrompt(lead, ext, market)
	if err != nil {
		return nil, resilience.NewFailure(resilience.FailureClassifier, err)
	}

	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: userPrompt}},
	})
	if err != nil {
		return nil, resilience.NewFailure(resilience.FailureClassifier,
			eris.Wrap(err, "classifier: create message"))
	}
	resp.Usage.LogCost(c.model, "scoring")

	res, err := ParseScoring(resp.FirstText())
	if err != nil {
		return nil, resilience.NewFailure(resilience.FailureClassifier, err)
	}
	if err := Validate(res); err != nil {
		return nil, resilience.NewFailure(resilience.FailureClassifier, err)
	}
	Clamp(res)

	zap.L().Debug("classifier: scored lead",
		zap.String("lead_id", lead.LeadID),
		zap.Float64("business_quality", res.BusinessQualityScore),
		zap.Float64("sell_likelihood", res.SellLikelihoodScore),
		zap.Bool("excluded", res.IsExcluded),
	)
	return res, nil
}
