package botclient

import (
	"time"

	"github.com/prilive-com/vigil/tg"
)

// Config holds bot client configuration.
type Config struct {
	// Token authenticates against the Bot API. Required.
	Token tg.SecretToken

	// BaseURL defaults to the public Bot API endpoint.
	BaseURL string

	// Long polling
	PollTimeout int // Seconds the API holds the getUpdates call (0-60)
	PollLimit   int // Max updates per request (1-100)

	// MaxErrors is the number of consecutive getUpdates failures tolerated
	// before StartPolling gives up and returns the last error
	// (0 = unlimited).
	MaxErrors int

	// RetryDelay is the base wait between failed getUpdates calls inside a
	// polling run. Grows linearly with the consecutive error count, capped
	// at three times the base.
	RetryDelay time.Duration

	// Rate limiting across all API calls
	RequestRPS   float64
	RequestBurst int

	// Circuit breaker
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:            defaultBaseURL,
		PollTimeout:        30,
		PollLimit:          100,
		MaxErrors:          10,
		RetryDelay:         time.Second,
		RequestRPS:         25,
		RequestBurst:       5,
		BreakerMaxRequests: 5,
		BreakerInterval:    2 * time.Minute,
		BreakerTimeout:     60 * time.Second,
	}
}
