package platform

import (
	"fmt"
	"time"
)

// RateLimitError is returned when the platform responds with 429.
// The orchestrator uses it to enter a fetch cooldown window.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("platform rate limited, retry after %s", e.RetryAfter)
	}
	return "platform rate limited"
}
