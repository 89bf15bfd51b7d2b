package ebay

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
)

const (
	SandboxBaseURL    = "https://api.sandbox.ebay.com"
	ProductionBaseURL = "https://api.ebay.com"

	marketplaceID = "EBAY_US"
)

// ItemPrice is the price of a Browse API item summary.
type ItemPrice struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// ItemSummary is a single result from the item summary search.
type ItemSummary struct {
	ItemID     string    `json:"itemId"`
	Title      string    `json:"title"`
	Price      ItemPrice `json:"price"`
	Condition  string    `json:"condition"`
	ItemWebURL string    `json:"itemWebUrl"`
}

type searchResponse struct {
	Total         int           `json:"total"`
	ItemSummaries []ItemSummary `json:"itemSummaries"`
}

// BrowseClient searches the eBay catalog through the Browse API.
type BrowseClient struct {
	httpClient *resty.Client
	tokens     *TokenSource
}

// NewBrowseClient creates a Browse API client. Tokens are acquired lazily
// from the given source on each call.
func NewBrowseClient(baseURL string, tokens *TokenSource) *BrowseClient {
	return &BrowseClient{
		httpClient: resty.New().SetBaseURL(baseURL),
		tokens:     tokens,
	}
}

// Search issues a keyword search and returns matching item summaries in the
// order the API returned them.
func (c *BrowseClient) Search(ctx context.Context, query string, limit int) ([]ItemSummary, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	result := &searchResponse{}
	_, err = handleError(c.httpClient.NewRequest().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("X-EBAY-C-MARKETPLACE-ID", marketplaceID).
		SetQueryParams(map[string]string{
			"q":     query,
			"limit": strconv.Itoa(limit),
		}).
		SetResult(result).
		Get("/buy/browse/v1/item_summary/search"))
	if err != nil {
		return nil, err
	}

	return result.ItemSummaries, nil
}

// handleError is a generic error handler for failing responses (>399 status
// code). Without this, failing responses would have nil error.
func handleError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return res, err
	}
	if res.IsError() {
		return res, fmt.Errorf("request failed: %s %s (status: %d)", res.Request.Method, res.Request.URL, res.StatusCode())
	}

	return res, nil
}
