package constants

// Error messages used in API responses.
// These are the human-readable messages returned in the "message" field.
const (
	// Common messages
	MsgInvalidRequestBody = "Invalid request body"
	MsgInternalError      = "An internal error occurred"
	MsgUnauthorized       = "Unauthorized"

	// Shortener-specific messages
	MsgInvalidURL   = "Invalid URL (must be an absolute http or https URL)"
	MsgInvalidCode  = "Custom code may only contain letters, numbers, hyphens, and underscores"
	MsgCodeTaken    = "Custom short code already exists"
	MsgLinkExpired  = "Short link has expired"
	MsgLinkNotFound = "Short link not found"
)
