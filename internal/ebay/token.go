package ebay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// tokenSafetyMargin is how much validity must remain before a cached token
// is considered stale and refreshed.
const tokenSafetyMargin = 60 * time.Second

const tokenPath = "/identity/v1/oauth2/token"

// TokenSource obtains and caches an application OAuth token for Browse API
// calls. The cached token is reused until less than tokenSafetyMargin of its
// validity remains. Safe for concurrent use.
type TokenSource struct {
	httpClient   *resty.Client
	clientID     string
	clientSecret string

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now func() time.Time
}

// NewTokenSource creates a token source performing client-credential
// exchanges against the given API base URL.
func NewTokenSource(baseURL, clientID, clientSecret string) *TokenSource {
	return &TokenSource{
		httpClient:   resty.New().SetBaseURL(baseURL),
		clientID:     clientID,
		clientSecret: clientSecret,
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token returns a valid bearer token, refreshing the cache if needed.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && t.now().Add(tokenSafetyMargin).Before(t.expiresAt) {
		return t.token, nil
	}

	result := &tokenResponse{}
	res, err := t.httpClient.NewRequest().
		SetContext(ctx).
		SetBasicAuth(t.clientID, t.clientSecret).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
			"scope":      "https://api.ebay.com/oauth/api_scope",
		}).
		SetResult(result).
		Post(tokenPath)
	if err != nil {
		return "", fmt.Errorf("token exchange request failed: %w", err)
	}
	if res.IsError() {
		return "", &AuthError{StatusCode: res.StatusCode(), Body: string(res.Body())}
	}
	if result.AccessToken == "" {
		return "", &AuthError{StatusCode: res.StatusCode(), Body: "no access_token in response"}
	}

	t.token = result.AccessToken
	t.expiresAt = t.now().Add(time.Duration(result.ExpiresIn) * time.Second)
	log.Debug().Time("expiresAt", t.expiresAt).Msg("refreshed ebay application token")

	return t.token, nil
}
