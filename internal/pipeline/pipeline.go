// Package pipeline runs the vision-pricing flow: identify the item, look up
// comparable listings, then estimate a price. The stages are strictly
// sequential; each depends on the previous stage's output.
package pipeline

import (
	"context"
	"strings"

	"github.com/m3l0x42/flipply/internal/ebay"
	"github.com/m3l0x42/flipply/internal/llm"
	"github.com/rs/zerolog/log"
)

const (
	// maxModelAttempts bounds retries for each model stage.
	maxModelAttempts = 3
	// searchLimit is the fixed number of comparables fetched.
	searchLimit = 10
)

// Searcher looks up comparable marketplace listings for a query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]ebay.ItemSummary, error)
}

// Result is the merged pipeline response: the identification fields plus the
// price estimate.
type Result struct {
	llm.ItemAnalysis
	EstimatedPrice llm.PriceEstimate `json:"estimatedPrice"`
}

// Orchestrator wires the analyzer and the marketplace search into the
// three-stage pipeline.
type Orchestrator struct {
	analyzer llm.Analyzer
	searcher Searcher
}

// New creates an orchestrator.
func New(analyzer llm.Analyzer, searcher Searcher) *Orchestrator {
	return &Orchestrator{analyzer: analyzer, searcher: searcher}
}

// stageFailure classifies a retried stage's error. A canceled or timed-out
// request is propagated as such; only a genuine exhaustion of all attempts
// is reported as RetriesExhausted.
func stageFailure(ctx context.Context, stage string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &StageError{Stage: stage, Err: err, RetriesExhausted: true}
}

// Run executes the full pipeline for one image.
func (o *Orchestrator) Run(ctx context.Context, imageData []byte, mimeType string) (*Result, error) {
	// Stage 1: identify the item.
	analysisResult, err := withRetries(ctx, maxModelAttempts, "analyze item", func() (*llm.AnalysisResult, error) {
		return o.analyzer.AnalyzeItem(ctx, imageData, mimeType)
	})
	if err != nil {
		return nil, stageFailure(ctx, StageAnalysis, err)
	}
	analysis := analysisResult.Analysis

	if len(analysis.SearchKeywords) == 0 {
		return nil, ErrNoKeywords
	}

	// Stage 2: fetch comparables. The keywords are passed verbatim,
	// space-joined. Not retried; search failures are terminal.
	query := strings.Join(analysis.SearchKeywords, " ")
	items, err := o.searcher.Search(ctx, query, searchLimit)
	if err != nil {
		return nil, &StageError{Stage: StageSearch, Err: err}
	}
	log.Info().Str("query", query).Int("comparables", len(items)).Msg("market lookup complete")

	comps := make([]llm.Comparable, len(items))
	for i, item := range items {
		comps[i] = llm.Comparable{
			Title:     item.Title,
			Price:     item.Price.Value + " " + item.Price.Currency,
			Condition: item.Condition,
		}
	}

	// Stage 3: estimate the price against the comparables.
	priceResult, err := withRetries(ctx, maxModelAttempts, "estimate price", func() (*llm.PriceResult, error) {
		return o.analyzer.EstimatePrice(ctx, imageData, mimeType, analysis, comps)
	})
	if err != nil {
		return nil, stageFailure(ctx, StagePricing, err)
	}

	return &Result{
		ItemAnalysis:   *analysis,
		EstimatedPrice: *priceResult.Estimate,
	}, nil
}
