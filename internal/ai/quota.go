package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrQuotaExhausted marks provider errors caused by rate limits or quota.
var ErrQuotaExhausted = errors.New("quota exhausted")

var quotaMarkers = []string{
	"RESOURCE_EXHAUSTED",
	"Resource has been exhausted",
	"rate_limit_exceeded",
	"insufficient_quota",
}

// apiError builds the error for a non-200 provider response, wrapping
// ErrQuotaExhausted when the response signals a quota problem.
func apiError(provider string, status int, body []byte) error {
	if status == http.StatusTooManyRequests || isQuotaBody(string(body)) {
		return fmt.Errorf("%s api error (status %d): %s: %w", provider, status, body, ErrQuotaExhausted)
	}
	return fmt.Errorf("%s api error (status %d): %s", provider, status, body)
}

func isQuotaBody(body string) bool {
	for _, m := range quotaMarkers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}
