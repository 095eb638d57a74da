package vigil

import (
	"fmt"
	"strings"
)

// FailureClass buckets a connecting or polling failure for retry decisions.
type FailureClass int

const (
	// ClassUnknown is any failure no keyword group claims. Still
	// retryable, but logged at error level since it is unexpected.
	ClassUnknown FailureClass = iota

	// ClassNetwork is a transport-level failure, assumed transient.
	ClassNetwork

	// ClassAuth is a credential rejection by the remote API.
	ClassAuth

	// ClassHandlerLoad is a handler registration failure. Assigned at the
	// load gate, never produced by Classify.
	ClassHandlerLoad
)

func (c FailureClass) String() string {
	switch c {
	case ClassNetwork:
		return "network"
	case ClassAuth:
		return "auth"
	case ClassHandlerLoad:
		return "handler_load"
	}
	return "unknown"
}

// Retryable reports whether a failure of this class is eligible for backoff.
// Auth failures are terminal: retrying would hammer the API with credentials
// it has already rejected.
func (c FailureClass) Retryable() bool {
	return c != ClassAuth
}

// Keyword groups checked in priority order; first match wins.
var (
	authKeywords      = []string{"forbidden", "unauthorized"}
	transportKeywords = []string{"network", "connect", "disconnect", "timeout", "ssl", "tls"}
)

// Classify maps an arbitrary failure to a FailureClass using case-insensitive
// substring matching against the error text and its dynamic type name. The
// classification is total: every non-nil error lands in exactly one class.
func Classify(err error) FailureClass {
	if err == nil {
		return ClassUnknown
	}
	haystack := strings.ToLower(err.Error() + " " + fmt.Sprintf("%T", err))

	for _, kw := range authKeywords {
		if strings.Contains(haystack, kw) {
			return ClassAuth
		}
	}
	for _, kw := range transportKeywords {
		if strings.Contains(haystack, kw) {
			return ClassNetwork
		}
	}
	return ClassUnknown
}
