package ebay

import (
	"fmt"
	"strings"
)

// APIError is a single error entry in a Trading API response.
type APIError struct {
	ShortMessage string `xml:"ShortMessage"`
	LongMessage  string `xml:"LongMessage"`
	ErrorCode    string `xml:"ErrorCode"`
	SeverityCode string `xml:"SeverityCode"`
}

// AckError is returned when a Trading API call responds with Ack=Failure.
// It carries the remote error messages verbatim.
type AckError struct {
	Call   string
	Errors []APIError
}

func (e *AckError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("%s failed with no error details", e.Call)
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, apiErr := range e.Errors {
		msg := apiErr.LongMessage
		if msg == "" {
			msg = apiErr.ShortMessage
		}
		if apiErr.ShortMessage != "" && apiErr.ShortMessage != msg {
			msg = apiErr.ShortMessage + ": " + msg
		}
		msgs = append(msgs, msg)
	}
	return fmt.Sprintf("%s failed: %s", e.Call, strings.Join(msgs, ", "))
}

// AuthError is returned when the OAuth client credential exchange fails.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("token exchange failed: status %d: %s", e.StatusCode, e.Body)
}
