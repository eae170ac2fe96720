package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
)

// Classify maps an upstream SDK error onto the provider error taxonomy.
// Timeouts and rate limits get their own kinds so the actor can report
// them distinctly; connection and 5xx failures are Unavailable; anything
// the provider rejected or returned malformed is Protocol.
func Classify(err error) apperr.Kind {
	if err == nil {
		return apperr.KindProviderProtocol
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.KindProviderTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "timed out"):
		return apperr.KindProviderTimeout
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "429"):
		return apperr.KindProviderRateLimited
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "service unavailable"),
		strings.Contains(msg, "overloaded"),
		strings.Contains(msg, "unavailable"),
		strings.Contains(msg, "internal server"),
		strings.Contains(msg, "server error"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "504"):
		return apperr.KindProviderUnavailable
	default:
		return apperr.KindProviderProtocol
	}
}

// ClassifyStatus maps an HTTP status from a provider response.
func ClassifyStatus(status int) apperr.Kind {
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return apperr.KindProviderTimeout
	case status == http.StatusTooManyRequests:
		return apperr.KindProviderRateLimited
	case status >= 500:
		return apperr.KindProviderUnavailable
	default:
		return apperr.KindProviderProtocol
	}
}

// CanRetry reports whether a fresh attempt against the same provider
// may succeed. Protocol failures never qualify.
func CanRetry(kind apperr.Kind) bool {
	switch kind {
	case apperr.KindProviderTimeout, apperr.KindProviderRateLimited, apperr.KindProviderUnavailable:
		return true
	}
	return false
}

// IsRetryable classifies err and reports whether retrying makes sense.
func IsRetryable(err error) bool {
	return CanRetry(Classify(err))
}
