package constants

// Error codes used in API responses.
// These are the machine-readable codes returned in the "error" field.
const (
	// Common error codes
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInternalError  = "INTERNAL_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeUnauthorized   = "UNAUTHORIZED"

	// Shortener-specific codes
	CodeInvalidURL   = "INVALID_URL"
	CodeInvalidCode  = "INVALID_SHORT_CODE"
	CodeCodeTaken    = "SHORT_CODE_TAKEN"
	CodeLinkExpired  = "LINK_EXPIRED"
	CodeLinkNotFound = "LINK_NOT_FOUND"

	// Success codes
	CodeLinkCreated    = "LINK_CREATED"
	CodeLinkDeleted    = "LINK_DELETED"
	CodeLinksFound     = "LINKS_FOUND"
	CodeAnalyticsFound = "ANALYTICS_FOUND"
	CodeStatsFound     = "STATS_FOUND"
	CodeActivityFound  = "ACTIVITY_FOUND"
)
