package dispatch

import (
	"strconv"
	"time"
)

// Backoff delays for each delivery attempt (0-indexed). The first attempt is
// immediate; later ones spread out to a day.
var backoffDelays = []time.Duration{
	0,                // Attempt 1: immediate
	1 * time.Minute,  // Attempt 2
	5 * time.Minute,  // Attempt 3
	15 * time.Minute, // Attempt 4
	1 * time.Hour,    // Attempt 5
	3 * time.Hour,    // Attempt 6
	8 * time.Hour,    // Attempt 7
	24 * time.Hour,   // Attempt 8
}

// CalculateBackoffDelay returns the wait before the given attempt.
// attemptCount is 1-indexed; values past the table reuse the last delay.
func CalculateBackoffDelay(attemptCount int) time.Duration {
	index := attemptCount - 1

	if index < 0 {
		index = 0
	}
	if index >= len(backoffDelays) {
		index = len(backoffDelays) - 1
	}

	return backoffDelays[index]
}

// ParseRetryAfterHeader parses a Retry-After header value given in seconds.
// HTTP-date values are not handled and report false.
func ParseRetryAfterHeader(retryAfter string) (time.Duration, bool) {
	if retryAfter == "" {
		return 0, false
	}

	seconds, err := strconv.Atoi(retryAfter)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}
