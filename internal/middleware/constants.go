// Package middleware provides the HTTP middleware chain for the gateway.
package middleware

// unknownRoute is the fallback label value used when the route name is not
// available in the request context.
const unknownRoute = "unknown"

// HTTP header constants.
const (
	// HeaderContentType is the Content-Type header name.
	HeaderContentType = "Content-Type"

	// HeaderRetryAfter is the Retry-After header name.
	HeaderRetryAfter = "Retry-After"

	// HeaderXRequestID is the X-Request-ID header name.
	HeaderXRequestID = "X-Request-ID"

	// HeaderXForwardedFor is the X-Forwarded-For header name.
	HeaderXForwardedFor = "X-Forwarded-For"

	// HeaderXRealIP is the X-Real-IP header name.
	HeaderXRealIP = "X-Real-IP"

	// HeaderRateLimitLimit is the X-RateLimit-Limit header name.
	HeaderRateLimitLimit = "X-RateLimit-Limit"

	// HeaderRateLimitRemaining is the X-RateLimit-Remaining header name.
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"

	// HeaderRateLimitReset is the X-RateLimit-Reset header name.
	HeaderRateLimitReset = "X-RateLimit-Reset"
)

// Content type constants.
const (
	// ContentTypeJSON is the JSON content type.
	ContentTypeJSON = "application/json"
)

// Stable error codes used in error envelopes.
const (
	// CodeAdmissionDenied is returned when the rate limiter denies a
	// request.
	CodeAdmissionDenied = "ADMISSION_DENIED"

	// CodeCircuitOpen is returned when a downstream circuit is open.
	CodeCircuitOpen = "CIRCUIT_OPEN"

	// CodeDownstreamUnavailable is returned when a downstream call fails
	// after retries.
	CodeDownstreamUnavailable = "DOWNSTREAM_UNAVAILABLE"

	// CodeInternalError is returned on unexpected gateway failures.
	CodeInternalError = "INTERNAL_ERROR"
)
