package vigil

import "time"

// DelayPolicy computes the backoff delay for a 0-based retry attempt.
type DelayPolicy func(attempt uint) time.Duration

// LinearDelay returns a policy growing the delay linearly with the attempt
// number, capped at base*capFactor:
//
//	delay(n) = base * min(n+1, capFactor)
//
// Linear capped growth is deliberate for an operator-facing bot: exponential
// policies leave it unreachable for minutes after a burst of failures.
func LinearDelay(base time.Duration, capFactor uint) DelayPolicy {
	if capFactor == 0 {
		capFactor = 1
	}
	return func(attempt uint) time.Duration {
		factor := attempt + 1
		if factor > capFactor {
			factor = capFactor
		}
		return base * time.Duration(factor)
	}
}
