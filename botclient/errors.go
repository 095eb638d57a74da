package botclient

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	ErrTokenRequired    = errors.New("botclient: bot token required")
	ErrClosed           = errors.New("botclient: client closed")
	ErrAlreadyPolling   = errors.New("botclient: already polling")
	ErrResponseTooLarge = errors.New("botclient: response too large")
)

// APIError represents a failed Bot API call: either an error answer from the
// API (Code and Description set) or a transport failure (Err set).
type APIError struct {
	Method      string
	Code        int
	Description string
	Err         error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("botclient: %s failed: %s: %v", e.Method, e.Description, e.Err)
	}
	return fmt.Sprintf("botclient: %s failed: %s (code=%d)", e.Method, e.Description, e.Code)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsAuth reports whether the API rejected the bot's credentials.
func (e *APIError) IsAuth() bool {
	return e.Code == 401 || e.Code == 403
}
