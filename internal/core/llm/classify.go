package llm

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/fieldscope-hq/fieldscope/internal/core"
)

// classify wraps a Gemini failure in a typed provider error. Auth and quota
// problems must be distinguishable from plain rate limiting: the request path
// falls back on the former and surfaces the latter. Gemini reports both quota
// exhaustion and rate limiting as HTTP 429, so the message decides.
func classify(op string, err error) *core.ProviderError {
	code := core.ProviderUnknown

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			code = core.ProviderAuthFailed
		case http.StatusTooManyRequests:
			if strings.Contains(strings.ToLower(gerr.Message), "quota") {
				code = core.ProviderQuotaExceeded
			} else {
				code = core.ProviderRateLimited
			}
		}
	}

	if code == core.ProviderUnknown {
		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "api key") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "permission"):
			code = core.ProviderAuthFailed
		case strings.Contains(msg, "quota"):
			code = core.ProviderQuotaExceeded
		case strings.Contains(msg, "rate limit") || strings.Contains(msg, "resource exhausted") || strings.Contains(msg, "429"):
			code = core.ProviderRateLimited
		}
	}

	return &core.ProviderError{Code: code, Op: op, Err: err}
}
