package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these sentinels so the
// core can branch with errors.Is without knowing the adapter.
var (
	// General
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Quote provider
	ErrProviderUnavailable = errors.New("quote provider is unavailable")
	ErrRateLimited         = errors.New("quote provider rate limit exceeded")
	ErrMalformedResponse   = errors.New("quote provider returned a malformed response")
	ErrMissingCredentials  = errors.New("no quote provider API key configured")

	// Database
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrTxFailed     = errors.New("database transaction failed")
)

// IsRetriable reports whether a quote-provider error is worth another
// attempt (rate limiting, upstream outage, timeout). Malformed payloads and
// request errors short-circuit to the fallback path instead.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrTimeout)
}
