package reliability

// IsRetryableHTTPStatus classifies HTTP status codes a client could retry.
// The turn pipeline never retries on its own; the flag is surfaced to the
// user so they know resubmitting the utterance may succeed.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
