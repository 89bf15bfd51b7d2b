package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/rs/zerolog/log"
)

// AnalysisCache persists identification results keyed by image hash.
type AnalysisCache interface {
	GetAnalysis(hash string) (*ItemAnalysis, error)
	SetAnalysis(hash string, analysis *ItemAnalysis) error
}

// CachedAnalyzer wraps an Analyzer with persistent caching of the
// identification stage. Pricing calls pass through uncached since the
// comparable listings change between invocations.
type CachedAnalyzer struct {
	inner Analyzer
	cache AnalysisCache
}

// NewCachedAnalyzer creates a cached analyzer.
func NewCachedAnalyzer(inner Analyzer, cache AnalysisCache) *CachedAnalyzer {
	return &CachedAnalyzer{inner: inner, cache: cache}
}

// hashImage creates a SHA256 hash from image data.
func hashImage(imageData []byte) string {
	h := sha256.Sum256(imageData)
	return hex.EncodeToString(h[:])
}

// AnalyzeItem implements the Analyzer interface with caching.
func (c *CachedAnalyzer) AnalyzeItem(ctx context.Context, imageData []byte, mimeType string) (*AnalysisResult, error) {
	hash := hashImage(imageData)

	if c.cache != nil {
		cached, err := c.cache.GetAnalysis(hash)
		if err != nil {
			log.Warn().Err(err).Msg("failed to check analysis cache")
		} else if cached != nil {
			log.Debug().Str("hash", hash[:16]).Msg("analysis cache hit")
			// Zero usage for cached result
			return &AnalysisResult{Analysis: cached, Usage: Usage{}}, nil
		}
	}

	result, err := c.inner.AnalyzeItem(ctx, imageData, mimeType)
	if err != nil {
		return nil, err
	}

	if c.cache != nil && result.Analysis != nil {
		if err := c.cache.SetAnalysis(hash, result.Analysis); err != nil {
			log.Warn().Err(err).Msg("failed to cache analysis result")
		} else {
			log.Debug().Str("hash", hash[:16]).Msg("cached analysis result")
		}
	}

	return result, nil
}

// EstimatePrice implements the Analyzer interface. It delegates directly to
// the underlying analyzer.
func (c *CachedAnalyzer) EstimatePrice(ctx context.Context, imageData []byte, mimeType string, analysis *ItemAnalysis, comps []Comparable) (*PriceResult, error) {
	return c.inner.EstimatePrice(ctx, imageData, mimeType, analysis, comps)
}
