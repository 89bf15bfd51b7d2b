package llm

import "context"

// ItemAnalysis is the structured identification of a photographed item,
// produced by the identification stage. It is not mutated after being
// returned.
type ItemAnalysis struct {
	Item           string   `json:"item"`
	Brand          string   `json:"brand"`
	Description    string   `json:"description"`
	SearchKeywords []string `json:"searchKeywords"`
	Condition      string   `json:"condition"`
	ImageQuality   string   `json:"imageQuality"`
}

// PriceEstimate is a bounded price range with a suggested listing price.
// Min <= Suggested <= Max holds for every estimate returned by this package.
type PriceEstimate struct {
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Suggested float64 `json:"suggested"`
}

// Comparable is a marketplace listing passed to the pricing stage as
// evidence of what similar items sell for.
type Comparable struct {
	Title     string `json:"title"`
	Price     string `json:"price"`
	Condition string `json:"condition,omitempty"`
}

// Usage contains token usage and cost information for a model call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

// AnalysisResult contains the item analysis and usage information.
type AnalysisResult struct {
	Analysis *ItemAnalysis
	Usage    Usage
}

// PriceResult contains the price estimate and usage information.
type PriceResult struct {
	Estimate *PriceEstimate
	Usage    Usage
}

// Analyzer identifies items in images and estimates their resale price.
type Analyzer interface {
	// AnalyzeItem identifies the item in the image and returns structured
	// data about it, including search keywords for finding comparables.
	AnalyzeItem(ctx context.Context, imageData []byte, mimeType string) (*AnalysisResult, error)

	// EstimatePrice estimates a price range for the item, given the earlier
	// analysis and comparable marketplace listings.
	EstimatePrice(ctx context.Context, imageData []byte, mimeType string, analysis *ItemAnalysis, comps []Comparable) (*PriceResult, error)
}
