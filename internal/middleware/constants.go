// Package middleware provides HTTP middleware components for the API Gateway.
package middleware

// HTTP header constants.
const (
	// HeaderContentType is the Content-Type header name.
	HeaderContentType = "Content-Type"

	// HeaderRetryAfter is the Retry-After header name.
	HeaderRetryAfter = "Retry-After"

	// HeaderXAPIKey is the partner credential header name.
	HeaderXAPIKey = "X-API-Key"

	// HeaderXRequestID is the X-Request-ID header name.
	HeaderXRequestID = "X-Request-ID"

	// HeaderXForwardedFor is the X-Forwarded-For header name.
	HeaderXForwardedFor = "X-Forwarded-For"

	// HeaderRateLimitLimit exposes the partner's quota per window.
	HeaderRateLimitLimit = "X-RateLimit-Limit"

	// HeaderRateLimitRemaining exposes the quota left in the window.
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"

	// HeaderRateLimitReset exposes seconds until quota is available again.
	HeaderRateLimitReset = "X-RateLimit-Reset"
)

// Content type constants.
const (
	// ContentTypeJSON is the JSON content type.
	ContentTypeJSON = "application/json"
)

// Error response constants.
const (
	// ErrInternalServerError is the error body for recovered panics.
	ErrInternalServerError = `{"error":"internal","detail":"internal server error"}`

	// ErrTooManyRequests is the error body for the listener flood guard.
	ErrTooManyRequests = `{"error":"rate_limited","detail":"too many requests"}`
)
