package ebay

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Item is the AddItem payload. Field order follows the Trading API schema.
type Item struct {
	Title           string `xml:"Title"`
	Description     string `xml:"Description"`
	PrimaryCategory struct {
		CategoryID string `xml:"CategoryID"`
	} `xml:"PrimaryCategory"`
	ConditionID     string `xml:"ConditionID"`
	ListingType     string `xml:"ListingType"`
	ListingDuration string `xml:"ListingDuration"`
	StartPrice      Amount `xml:"StartPrice"`
	Quantity        string `xml:"Quantity"`
	Country         string `xml:"Country"`
	Currency        string `xml:"Currency"`
	PostalCode      string `xml:"PostalCode"`
	DispatchTimeMax string `xml:"DispatchTimeMax"`
	PictureDetails  *struct {
		PictureURL string `xml:"PictureURL"`
	} `xml:"PictureDetails,omitempty"`
	ReturnPolicy struct {
		ReturnsAcceptedOption    string `xml:"ReturnsAcceptedOption"`
		RefundOption             string `xml:"RefundOption"`
		ReturnsWithinOption      string `xml:"ReturnsWithinOption"`
		ShippingCostPaidByOption string `xml:"ShippingCostPaidByOption"`
	} `xml:"ReturnPolicy"`
	ShippingDetails struct {
		ShippingType           string `xml:"ShippingType"`
		ShippingServiceOptions struct {
			ShippingServicePriority string `xml:"ShippingServicePriority"`
			ShippingService         string `xml:"ShippingService"`
			ShippingServiceCost     Amount `xml:"ShippingServiceCost"`
		} `xml:"ShippingServiceOptions"`
	} `xml:"ShippingDetails"`
	Site                   string `xml:"Site"`
	CategoryMappingAllowed string `xml:"CategoryMappingAllowed"`
}

// Amount is a currency-tagged value.
type Amount struct {
	CurrencyID string `xml:"currencyID,attr"`
	Value      string `xml:",chardata"`
}

// ListingPolicy holds the fixed defaults merged into every listing.
type ListingPolicy struct {
	CategoryID      string
	Country         string
	Currency        string
	PostalCode      string
	DispatchTimeMax string
	ListingType     string
	ListingDuration string
	ShippingService string
	ShippingCost    string
	Quantity        string
}

// DefaultListingPolicy returns the policy used by the demo: fixed category,
// 30-day money-back returns paid by the buyer, flat-rate USPS Media shipping
// and a GTC fixed-price listing on the US site.
func DefaultListingPolicy() ListingPolicy {
	return ListingPolicy{
		CategoryID:      "261186",
		Country:         "US",
		Currency:        "USD",
		PostalCode:      "95125",
		DispatchTimeMax: "3",
		ListingType:     "FixedPriceItem",
		ListingDuration: "GTC",
		ShippingService: "USPSMedia",
		ShippingCost:    "2.50",
		Quantity:        "1",
	}
}

// ListingRequest carries the caller-supplied fields of a new listing.
type ListingRequest struct {
	Title         string
	Description   string
	Price         float64
	Condition     string
	ImageData     []byte
	ImageMIMEType string
}

// ListingResult is the confirmation returned after a successful listing.
type ListingResult struct {
	ItemID     string `json:"itemId"`
	ListingURL string `json:"listingUrl"`
	Status     string `json:"status"`
}

// ListingLedger records listings created through this service.
type ListingLedger interface {
	Record(itemID, title string) error
	Remove(itemID string) (bool, error)
}

// ListingService creates and ends listings through the Trading API and keeps
// the local ledger in sync.
type ListingService struct {
	trading *TradingClient
	ledger  ListingLedger
	policy  ListingPolicy

	viewURLBase string

	urlPollRetries int
	urlPollDelay   time.Duration
}

// NewListingService creates a listing service. viewURLBase is the item view
// URL prefix used when the canonical URL is not yet available (e.g.
// "https://sandbox.ebay.com/itm/").
func NewListingService(trading *TradingClient, ledger ListingLedger, viewURLBase string) *ListingService {
	return &ListingService{
		trading:        trading,
		ledger:         ledger,
		policy:         DefaultListingPolicy(),
		viewURLBase:    viewURLBase,
		urlPollRetries: 5,
		urlPollDelay:   time.Second,
	}
}

// conditionID maps a free-form condition to the coarse two-level Trading API
// scale: 1000 (new) or 3000 (used).
func conditionID(condition string) string {
	switch strings.ToLower(strings.TrimSpace(condition)) {
	case "new", "excellent", "like new":
		return "1000"
	default:
		return "3000"
	}
}

// buildItem merges the caller-supplied fields with the fixed policy defaults.
func (s *ListingService) buildItem(req *ListingRequest, pictureURL string) *Item {
	item := &Item{
		Title:                  req.Title,
		Description:            req.Description,
		ConditionID:            conditionID(req.Condition),
		ListingType:            s.policy.ListingType,
		ListingDuration:        s.policy.ListingDuration,
		StartPrice:             Amount{CurrencyID: s.policy.Currency, Value: strconv.FormatFloat(req.Price, 'f', 2, 64)},
		Quantity:               s.policy.Quantity,
		Country:                s.policy.Country,
		Currency:               s.policy.Currency,
		PostalCode:             s.policy.PostalCode,
		DispatchTimeMax:        s.policy.DispatchTimeMax,
		Site:                   "US",
		CategoryMappingAllowed: "true",
	}
	item.PrimaryCategory.CategoryID = s.policy.CategoryID
	item.ReturnPolicy.ReturnsAcceptedOption = "ReturnsAccepted"
	item.ReturnPolicy.RefundOption = "MoneyBack"
	item.ReturnPolicy.ReturnsWithinOption = "Days_30"
	item.ReturnPolicy.ShippingCostPaidByOption = "Buyer"
	item.ShippingDetails.ShippingType = "Flat"
	item.ShippingDetails.ShippingServiceOptions.ShippingServicePriority = "1"
	item.ShippingDetails.ShippingServiceOptions.ShippingService = s.policy.ShippingService
	item.ShippingDetails.ShippingServiceOptions.ShippingServiceCost = Amount{CurrencyID: s.policy.Currency, Value: s.policy.ShippingCost}
	if pictureURL != "" {
		item.PictureDetails = &struct {
			PictureURL string `xml:"PictureURL"`
		}{PictureURL: pictureURL}
	}
	return item
}

// CreateListing uploads the image (when present), submits the listing and
// records it in the ledger. A hosted image is not removed if the listing
// creation later fails.
func (s *ListingService) CreateListing(ctx context.Context, req *ListingRequest) (*ListingResult, error) {
	pictureURL := ""
	if len(req.ImageData) > 0 {
		url, err := s.trading.UploadPicture(ctx, req.ImageData, req.ImageMIMEType)
		if err != nil {
			return nil, fmt.Errorf("failed to upload image: %w", err)
		}
		pictureURL = url
		log.Info().Str("pictureURL", pictureURL).Msg("image uploaded to picture services")
	}

	item := s.buildItem(req, pictureURL)
	itemID, err := s.trading.AddItem(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}
	log.Info().Str("itemID", itemID).Str("title", req.Title).Msg("listing created")

	if err := s.ledger.Record(itemID, req.Title); err != nil {
		log.Error().Err(err).Str("itemID", itemID).Msg("failed to record listing in ledger")
	}

	viewURL := s.viewURLBase + itemID
	if canonical, err := s.trading.GetViewItemURL(ctx, itemID, s.urlPollRetries, s.urlPollDelay); err != nil {
		log.Warn().Err(err).Str("itemID", itemID).Msg("failed to fetch canonical view url")
	} else if canonical != "" {
		viewURL = canonical
	}

	return &ListingResult{ItemID: itemID, ListingURL: viewURL, Status: AckSuccess}, nil
}

// VerifyListing dry-runs the listing through VerifyAddItem without creating
// it. Any image is ignored; the check covers the item payload only.
func (s *ListingService) VerifyListing(ctx context.Context, req *ListingRequest) error {
	return s.trading.VerifyAddItem(ctx, s.buildItem(req, ""))
}

// EndListing ends the listing and removes it from the ledger. Returns
// whether the ledger knew the item.
func (s *ListingService) EndListing(ctx context.Context, itemID string) (bool, error) {
	if err := s.trading.EndItem(ctx, itemID); err != nil {
		return false, fmt.Errorf("failed to end listing: %w", err)
	}

	found, err := s.ledger.Remove(itemID)
	if err != nil {
		return false, fmt.Errorf("failed to remove listing from ledger: %w", err)
	}
	log.Info().Str("itemID", itemID).Bool("found", found).Msg("listing ended")

	return found, nil
}
