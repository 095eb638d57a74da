package vigil

import (
	"log/slog"
	"time"
)

type config struct {
	logger     *slog.Logger
	maxRetries uint
	baseDelay  time.Duration
	capFactor  uint
	delay      DelayPolicy
	sleeper    Sleeper
	preflight  bool
	onStartup  Hook
	onShutdown Hook
	onState    func(from, to State)
}

// Option configures the Supervisor.
type Option func(*config)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMaxRetries bounds the retry loop. Once spent, the supervisor
// terminates and does not restart itself.
func WithMaxRetries(max uint) Option {
	return func(c *config) {
		c.maxRetries = max
	}
}

// WithBaseDelay sets the backoff base delay.
func WithBaseDelay(d time.Duration) Option {
	return func(c *config) {
		c.baseDelay = d
	}
}

// WithCapFactor caps the linear backoff growth at baseDelay*factor.
func WithCapFactor(factor uint) Option {
	return func(c *config) {
		c.capFactor = factor
	}
}

// WithDelayPolicy replaces the default linear capped policy entirely.
// Overrides WithBaseDelay and WithCapFactor.
func WithDelayPolicy(policy DelayPolicy) Option {
	return func(c *config) {
		c.delay = policy
	}
}

// WithSleeper replaces the backoff sleeper. Tests use this to verify retry
// timing without real delays.
func WithSleeper(sleeper Sleeper) Option {
	return func(c *config) {
		c.sleeper = sleeper
	}
}

// WithPreflight makes Run probe the identity check once before entering the
// main loop, failing fast on a clearly invalid token instead of spending a
// retry cycle on it.
func WithPreflight() Option {
	return func(c *config) {
		c.preflight = true
	}
}

// WithStartupHook registers a hook invoked on entry to Polling.
// Hook errors are logged, never propagated.
func WithStartupHook(hook Hook) Option {
	return func(c *config) {
		c.onStartup = hook
	}
}

// WithShutdownHook registers a hook invoked on entry to ShuttingDown.
// Hook errors are logged, never propagated.
func WithShutdownHook(hook Hook) Option {
	return func(c *config) {
		c.onShutdown = hook
	}
}

// WithStateChange registers a callback fired on every state transition.
func WithStateChange(fn func(from, to State)) Option {
	return func(c *config) {
		c.onState = fn
	}
}
