package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const geminiModel = "gemini-3-flash-preview"

// Gemini 3.0 Flash pricing (per million tokens)
const (
	geminiInputPricePerMillion  = 0.50 // $0.50 per 1M input tokens (text/image/video)
	geminiOutputPricePerMillion = 3.00 // $3.00 per 1M output tokens (including thinking)
)

var identifyPrompt = strings.TrimSpace(dedent.Dedent(`
	You are an expert e-commerce analyst. Identify the item in the image and provide structured data about it.
	You MUST respond with ONLY a valid JSON object. Do not include any other text, explanations, or markdown formatting.

	Use the following JSON schema:
	{
	  "item": "The most likely name of the item.",
	  "brand": "The brand of the item, or 'Unknown' if not identifiable.",
	  "description": "A concise, one-sentence description of the item.",
	  "searchKeywords": [
	    "A list of 3-5 precise string keywords for finding this item online."
	  ],
	  "condition": "Item condition (e.g., 'New', 'Used - Like New', 'Used - Good', 'For parts').",
	  "imageQuality": "Quality of the photo for a listing (e.g., 'Good', 'Blurry', 'Poorly lit')."
	}`))

var pricePrompt = strings.TrimSpace(dedent.Dedent(`
	You are an expert e-commerce pricing analyst. Estimate a fair resale price for the item in the image.

	The item was previously identified as:
	%s

	Current marketplace listings for similar items:
	%s

	Base the estimate on the comparable listings, adjusted for the item's condition.
	You MUST respond with ONLY a valid JSON object, no other text or markdown.

	Use the following JSON schema:
	{
	  "estimatedPrice": {
	    "min": 0.0,
	    "max": 0.0,
	    "suggested": 0.0
	  }
	}
	The values must satisfy min <= suggested <= max.`))

// GeminiAnalyzer uses Google's Gemini API for item identification and pricing.
type GeminiAnalyzer struct {
	client *genai.Client
}

// NewGeminiAnalyzer creates a new Gemini-based analyzer.
func NewGeminiAnalyzer(ctx context.Context, apiKey string) (*GeminiAnalyzer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiAnalyzer{client: client}, nil
}

// AnalyzeItem implements the Analyzer interface using Gemini.
func (g *GeminiAnalyzer) AnalyzeItem(ctx context.Context, imageData []byte, mimeType string) (*AnalysisResult, error) {
	text, usage, err := g.generate(ctx, identifyPrompt, imageData, mimeType)
	if err != nil {
		return nil, err
	}

	analysis, err := parseItemAnalysis(text)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("model", geminiModel).
		Str("item", analysis.Item).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("identification llm call")

	return &AnalysisResult{Analysis: analysis, Usage: usage}, nil
}

// EstimatePrice implements the Analyzer interface using Gemini. The earlier
// analysis and the comparable listings are embedded in the prompt as JSON.
func (g *GeminiAnalyzer) EstimatePrice(ctx context.Context, imageData []byte, mimeType string, analysis *ItemAnalysis, comps []Comparable) (*PriceResult, error) {
	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis: %w", err)
	}
	compsJSON, err := json.Marshal(comps)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal comparables: %w", err)
	}

	prompt := fmt.Sprintf(pricePrompt, analysisJSON, compsJSON)
	text, usage, err := g.generate(ctx, prompt, imageData, mimeType)
	if err != nil {
		return nil, err
	}

	estimate, err := parsePriceEstimate(text)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("model", geminiModel).
		Float64("suggested", estimate.Suggested).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("pricing llm call")

	return &PriceResult{Estimate: estimate, Usage: usage}, nil
}

// generate executes a single image+prompt Gemini call and returns the
// response text along with usage information.
func (g *GeminiAnalyzer) generate(ctx context.Context, prompt string, imageData []byte, mimeType string) (string, Usage, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		{InlineData: &genai.Blob{Data: imageData, MIMEType: mimeType}},
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	result, err := g.client.Models.GenerateContent(ctx, geminiModel, contents, config)
	if err != nil {
		return "", Usage{}, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", Usage{}, fmt.Errorf("no response from Gemini")
	}

	usage := Usage{}
	if result.UsageMetadata != nil {
		usage.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int64(result.UsageMetadata.TotalTokenCount)
		usage.CostUSD = calculateGeminiCost(usage.InputTokens, usage.OutputTokens)
	}

	return result.Text(), usage, nil
}

func calculateGeminiCost(inputTokens, outputTokens int64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * geminiInputPricePerMillion
	outputCost := float64(outputTokens) / 1_000_000 * geminiOutputPricePerMillion
	return inputCost + outputCost
}

// extractJSON cleans up a model response, removing markdown code fences and
// any prose around the JSON object.
func extractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response: %s", text)
	}
	return text[start : end+1], nil
}

func parseItemAnalysis(text string) (*ItemAnalysis, error) {
	text, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var analysis ItemAnalysis
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w (response: %s)", err, text)
	}

	return &analysis, nil
}

func parsePriceEstimate(text string) (*PriceEstimate, error) {
	text, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var resp struct {
		EstimatedPrice *PriceEstimate `json:"estimatedPrice"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w (response: %s)", err, text)
	}
	if resp.EstimatedPrice == nil {
		return nil, fmt.Errorf("response missing estimatedPrice: %s", text)
	}

	e := resp.EstimatedPrice
	if e.Min < 0 || e.Min > e.Suggested || e.Suggested > e.Max {
		return nil, fmt.Errorf("price estimate out of order: min=%.2f suggested=%.2f max=%.2f", e.Min, e.Suggested, e.Max)
	}

	return e, nil
}
