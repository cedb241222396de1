package response

const (
	CodeSuccess         = 2000 // Success
	CodeParamInvalid    = 4000 // Request body or path invalid
	CodeUnauthenticated = 4001 // Missing, invalid or expired token
	CodeAccountDisabled = 4003 // Account deactivated
	CodeForbidden       = 4030 // Admin role required
	CodeNotFound        = 4040 // Target user does not exist
	CodeTooManyRequests = 4290 // Rate limit exceeded
	CodeInternal        = 5000 // Unexpected failure
	CodeUnavailable     = 5030 // Optional backend disabled or unreachable
)

// message
var msg = map[int]string{
	CodeSuccess:         "success",
	CodeParamInvalid:    "invalid request",
	CodeUnauthenticated: "authentication required",
	CodeAccountDisabled: "account disabled",
	CodeForbidden:       "administrator role required",
	CodeNotFound:        "user not found",
	CodeTooManyRequests: "too many requests",
	CodeInternal:        "internal server error",
	CodeUnavailable:     "service unavailable",
}

// Message returns the default text for a code, or an empty string.
func Message(code int) string {
	return msg[code]
}
