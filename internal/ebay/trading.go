package ebay

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	tradingPath        = "/ws/api.dll"
	tradingNamespace   = "urn:ebay:apis:eBLBaseComponents"
	compatibilityLevel = "1193"

	// Site 0 is eBay US.
	siteIDUS = "0"

	SandboxSignInURL    = "https://signin.sandbox.ebay.com/ws/eBayISAPI.dll"
	ProductionSignInURL = "https://signin.ebay.com/ws/eBayISAPI.dll"
)

// AckSuccess, AckWarning and AckFailure are the acknowledgement values the
// Trading API returns. Warning counts as success.
const (
	AckSuccess = "Success"
	AckWarning = "Warning"
	AckFailure = "Failure"
)

// TradingCredentials is the developer keyset required on every Trading API
// call.
type TradingCredentials struct {
	DevID  string
	AppID  string
	CertID string
}

// TradingClient talks to the eBay Trading API (XML over HTTPS POST).
type TradingClient struct {
	httpClient *resty.Client
	creds      TradingCredentials
	authToken  string
}

// NewTradingClient creates a Trading API client for the given API base URL.
func NewTradingClient(baseURL string, creds TradingCredentials) *TradingClient {
	return &TradingClient{
		httpClient: resty.New().SetBaseURL(baseURL),
		creds:      creds,
	}
}

// SetAuthToken sets the user auth token sent as RequesterCredentials on
// calls that act on behalf of a seller.
func (c *TradingClient) SetAuthToken(token string) {
	c.authToken = token
}

func (c *TradingClient) headers(callName string) map[string]string {
	return map[string]string{
		"X-EBAY-API-COMPATIBILITY-LEVEL": compatibilityLevel,
		"X-EBAY-API-DEV-NAME":            c.creds.DevID,
		"X-EBAY-API-APP-NAME":            c.creds.AppID,
		"X-EBAY-API-CERT-NAME":           c.creds.CertID,
		"X-EBAY-API-CALL-NAME":           callName,
		"X-EBAY-API-SITEID":              siteIDUS,
	}
}

// call POSTs a single Trading API request and returns the raw response body.
func (c *TradingClient) call(ctx context.Context, callName string, reqBody any) ([]byte, error) {
	payload, err := xml.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", callName, err)
	}

	res, err := c.httpClient.NewRequest().
		SetContext(ctx).
		SetHeaders(c.headers(callName)).
		SetHeader("Content-Type", "text/xml").
		SetBody([]byte(xml.Header + string(payload))).
		Post(tradingPath)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", callName, err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("%s failed: status %d: %s", callName, res.StatusCode(), res.Body())
	}

	return res.Body(), nil
}

// ackFields are common to every Trading API response.
type ackFields struct {
	Ack    string     `xml:"Ack"`
	Errors []APIError `xml:"Errors"`
}

func (a *ackFields) check(callName string) error {
	if a.Ack == AckFailure {
		return &AckError{Call: callName, Errors: a.Errors}
	}
	if a.Ack == AckWarning {
		log.Warn().Str("call", callName).Interface("errors", a.Errors).Msg("trading call returned warning")
	}
	return nil
}

type requesterCredentials struct {
	EBayAuthToken string `xml:"eBayAuthToken"`
}

func (c *TradingClient) credentials() requesterCredentials {
	return requesterCredentials{EBayAuthToken: c.authToken}
}

// GetSessionID starts the auth-and-auth sign-in flow for the given RuName.
func (c *TradingClient) GetSessionID(ctx context.Context, ruName string) (string, error) {
	req := struct {
		XMLName xml.Name `xml:"urn:ebay:apis:eBLBaseComponents GetSessionIDRequest"`
		RuName  string   `xml:"RuName"`
	}{RuName: ruName}

	body, err := c.call(ctx, "GetSessionID", &req)
	if err != nil {
		return "", err
	}

	var resp struct {
		ackFields
		SessionID string `xml:"SessionID"`
	}
	if err := xml.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse GetSessionID response: %w", err)
	}
	if err := resp.check("GetSessionID"); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("GetSessionID returned no session id")
	}

	return resp.SessionID, nil
}

// SignInURL builds the URL a seller must open to approve the session.
func SignInURL(signInBase, ruName, sessionID string) string {
	return fmt.Sprintf("%s?SignIn&RuName=%s&SessID=%s",
		signInBase, url.QueryEscape(ruName), url.QueryEscape(sessionID))
}

// FetchToken exchanges an approved session id for a user auth token.
// Returns the token and its hard expiration time (may be zero if the API
// omits it).
func (c *TradingClient) FetchToken(ctx context.Context, sessionID string) (string, time.Time, error) {
	req := struct {
		XMLName   xml.Name `xml:"urn:ebay:apis:eBLBaseComponents FetchTokenRequest"`
		SessionID string   `xml:"SessionID"`
	}{SessionID: sessionID}

	body, err := c.call(ctx, "FetchToken", &req)
	if err != nil {
		return "", time.Time{}, err
	}

	var resp struct {
		ackFields
		EBayAuthToken      string `xml:"eBayAuthToken"`
		HardExpirationTime string `xml:"HardExpirationTime"`
	}
	if err := xml.Unmarshal(body, &resp); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to parse FetchToken response: %w", err)
	}
	if err := resp.check("FetchToken"); err != nil {
		return "", time.Time{}, err
	}
	if resp.EBayAuthToken == "" {
		return "", time.Time{}, fmt.Errorf("FetchToken returned no token")
	}

	var expiry time.Time
	if resp.HardExpirationTime != "" {
		expiry, _ = time.Parse(time.RFC3339, resp.HardExpirationTime)
	}

	return resp.EBayAuthToken, expiry, nil
}

// UploadPicture uploads image bytes to eBay Picture Services and returns the
// hosted image URL.
func (c *TradingClient) UploadPicture(ctx context.Context, imageData []byte, mimeType string) (string, error) {
	req := struct {
		XMLName              xml.Name             `xml:"urn:ebay:apis:eBLBaseComponents UploadSiteHostedPicturesRequest"`
		RequesterCredentials requesterCredentials `xml:"RequesterCredentials"`
		PictureName          string               `xml:"PictureName"`
		ExtensionInDays      int                  `xml:"ExtensionInDays"`
	}{
		RequesterCredentials: c.credentials(),
		PictureName:          "ListingImage",
		ExtensionInDays:      30,
	}

	payload, err := xml.Marshal(&req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal UploadSiteHostedPictures request: %w", err)
	}

	// The XML payload must precede the file part in the multipart body.
	res, err := c.httpClient.NewRequest().
		SetContext(ctx).
		SetHeaders(c.headers("UploadSiteHostedPictures")).
		SetMultipartFields(
			&resty.MultipartField{
				Param:       "XMLPayload",
				ContentType: "text/xml",
				Reader:      strings.NewReader(xml.Header + string(payload)),
			},
			&resty.MultipartField{
				Param:       "file",
				FileName:    "image",
				ContentType: mimeType,
				Reader:      bytes.NewReader(imageData),
			},
		).
		Post(tradingPath)
	if err != nil {
		return "", fmt.Errorf("UploadSiteHostedPictures request failed: %w", err)
	}
	if res.IsError() {
		return "", fmt.Errorf("UploadSiteHostedPictures failed: status %d: %s", res.StatusCode(), res.Body())
	}

	var resp struct {
		ackFields
		SiteHostedPictureDetails struct {
			FullURL string `xml:"FullURL"`
		} `xml:"SiteHostedPictureDetails"`
	}
	if err := xml.Unmarshal(res.Body(), &resp); err != nil {
		return "", fmt.Errorf("failed to parse UploadSiteHostedPictures response: %w", err)
	}
	if err := resp.check("UploadSiteHostedPictures"); err != nil {
		return "", err
	}
	if resp.SiteHostedPictureDetails.FullURL == "" {
		return "", fmt.Errorf("UploadSiteHostedPictures returned no picture URL")
	}

	return resp.SiteHostedPictureDetails.FullURL, nil
}

// AddItem creates a listing and returns the marketplace-assigned item id.
func (c *TradingClient) AddItem(ctx context.Context, item *Item) (string, error) {
	req := struct {
		XMLName              xml.Name             `xml:"urn:ebay:apis:eBLBaseComponents AddItemRequest"`
		RequesterCredentials requesterCredentials `xml:"RequesterCredentials"`
		Item                 *Item                `xml:"Item"`
	}{RequesterCredentials: c.credentials(), Item: item}

	body, err := c.call(ctx, "AddItem", &req)
	if err != nil {
		return "", err
	}

	var resp struct {
		ackFields
		ItemID string `xml:"ItemID"`
	}
	if err := xml.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse AddItem response: %w", err)
	}
	if err := resp.check("AddItem"); err != nil {
		return "", err
	}
	if resp.ItemID == "" {
		return "", fmt.Errorf("AddItem returned no item id")
	}

	return resp.ItemID, nil
}

// VerifyAddItem dry-runs a listing without creating it.
func (c *TradingClient) VerifyAddItem(ctx context.Context, item *Item) error {
	req := struct {
		XMLName              xml.Name             `xml:"urn:ebay:apis:eBLBaseComponents VerifyAddItemRequest"`
		RequesterCredentials requesterCredentials `xml:"RequesterCredentials"`
		Item                 *Item                `xml:"Item"`
	}{RequesterCredentials: c.credentials(), Item: item}

	body, err := c.call(ctx, "VerifyAddItem", &req)
	if err != nil {
		return err
	}

	var resp struct {
		ackFields
	}
	if err := xml.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to parse VerifyAddItem response: %w", err)
	}
	return resp.check("VerifyAddItem")
}

// EndItem ends an active listing.
func (c *TradingClient) EndItem(ctx context.Context, itemID string) error {
	req := struct {
		XMLName              xml.Name             `xml:"urn:ebay:apis:eBLBaseComponents EndItemRequest"`
		RequesterCredentials requesterCredentials `xml:"RequesterCredentials"`
		ItemID               string               `xml:"ItemID"`
		EndingReason         string               `xml:"EndingReason"`
	}{RequesterCredentials: c.credentials(), ItemID: itemID, EndingReason: "NotAvailable"}

	body, err := c.call(ctx, "EndItem", &req)
	if err != nil {
		return err
	}

	var resp struct {
		ackFields
	}
	if err := xml.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to parse EndItem response: %w", err)
	}
	return resp.check("EndItem")
}

// GetViewItemURL fetches the canonical ViewItemURL for a newly created
// listing. The URL is not always populated immediately, so the call retries
// a bounded number of times with a fixed delay.
func (c *TradingClient) GetViewItemURL(ctx context.Context, itemID string, retries int, delay time.Duration) (string, error) {
	req := struct {
		XMLName              xml.Name             `xml:"urn:ebay:apis:eBLBaseComponents GetItemRequest"`
		RequesterCredentials requesterCredentials `xml:"RequesterCredentials"`
		ItemID               string               `xml:"ItemID"`
		DetailLevel          string               `xml:"DetailLevel"`
	}{RequesterCredentials: c.credentials(), ItemID: itemID, DetailLevel: "ReturnAll"}

	for attempt := 0; attempt < retries; attempt++ {
		body, err := c.call(ctx, "GetItem", &req)
		if err != nil {
			return "", err
		}

		var resp struct {
			ackFields
			ViewItemURL string `xml:"Item>ListingDetails>ViewItemURL"`
		}
		if err := xml.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to parse GetItem response: %w", err)
		}
		if err := resp.check("GetItem"); err != nil {
			return "", err
		}
		if resp.ViewItemURL != "" {
			return resp.ViewItemURL, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}

	return "", nil
}
