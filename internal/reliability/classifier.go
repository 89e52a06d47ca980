package reliability

import (
	"strconv"
	"time"
)

// IsRetryableHTTPStatus classifies HTTP status codes a caller could safely retry.
// Nothing in the chat flow retries; the classification only feeds metrics and logs.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// StatusLabel buckets an upstream HTTP status for metric labels.
func StatusLabel(code int) string {
	switch {
	case code <= 0:
		return "transport"
	case code == 429:
		return "rate_limited"
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return strconv.Itoa(code)
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
