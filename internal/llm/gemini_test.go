package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseItemAnalysis(t *testing.T) {
	text := `{"item":"Headphones","brand":"Sony","description":"Wireless noise-cancelling headphones.","searchKeywords":["Sony","WH-1000XM4","headphones"],"condition":"Used - Good","imageQuality":"Good"}`

	analysis, err := parseItemAnalysis(text)
	require.NoError(t, err)
	assert.Equal(t, "Headphones", analysis.Item)
	assert.Equal(t, "Sony", analysis.Brand)
	assert.Equal(t, []string{"Sony", "WH-1000XM4", "headphones"}, analysis.SearchKeywords)
	assert.Equal(t, "Used - Good", analysis.Condition)
}

func TestParseItemAnalysisMarkdownFences(t *testing.T) {
	text := "```json\n{\"item\":\"Mug\",\"brand\":\"Unknown\",\"description\":\"A ceramic mug.\",\"searchKeywords\":[\"ceramic\",\"mug\"],\"condition\":\"Used - Good\",\"imageQuality\":\"Good\"}\n```"

	analysis, err := parseItemAnalysis(text)
	require.NoError(t, err)
	assert.Equal(t, "Mug", analysis.Item)
}

func TestParseItemAnalysisInvalidJSON(t *testing.T) {
	_, err := parseItemAnalysis("not json at all")
	assert.Error(t, err)
}

func TestParsePriceEstimate(t *testing.T) {
	text := `{"estimatedPrice":{"min":120.0,"max":220.0,"suggested":175.0}}`

	estimate, err := parsePriceEstimate(text)
	require.NoError(t, err)
	assert.Equal(t, 120.0, estimate.Min)
	assert.Equal(t, 220.0, estimate.Max)
	assert.Equal(t, 175.0, estimate.Suggested)
}

func TestParsePriceEstimateChattyResponse(t *testing.T) {
	text := "Here is the estimate:\n{\"estimatedPrice\":{\"min\":10,\"max\":30,\"suggested\":20}}\nLet me know if you need anything else."

	estimate, err := parsePriceEstimate(text)
	require.NoError(t, err)
	assert.Equal(t, 20.0, estimate.Suggested)
}

func TestParsePriceEstimateOutOfOrder(t *testing.T) {
	// suggested above max must be rejected so the caller retries
	_, err := parsePriceEstimate(`{"estimatedPrice":{"min":50,"max":100,"suggested":150}}`)
	assert.Error(t, err)

	_, err = parsePriceEstimate(`{"estimatedPrice":{"min":-5,"max":100,"suggested":50}}`)
	assert.Error(t, err)
}

func TestParsePriceEstimateMissingField(t *testing.T) {
	_, err := parsePriceEstimate(`{"price": 50}`)
	assert.Error(t, err)
}
